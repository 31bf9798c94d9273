package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

const (
	labelLoadedBy  = "loaded_by"
	labelWarehouse = "warehouse"
	maxLabelLen    = 63
	maxColumnLen   = 300
	maxDatasetLen  = 1024
)

// BigQueryLoader is the warehouse loader backed by BigQuery load jobs. Tables
// live in the client's project; a Target's Database and Schema name the
// dataset (see DatasetID) and Table the table.
type BigQueryLoader struct {
	client *bigquery.Client
}

// NewBigQueryLoader creates a loader with a shared BigQuery client for
// projectID, which owns the target datasets and is billed for load jobs. location may be empty to let BigQuery pick the dataset location.
func NewBigQueryLoader(ctx context.Context, projectID, location string, opts ...option.ClientOption) (*BigQueryLoader, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryLoader: creating client: %w", err)
	}
	client.Location = location
	return &BigQueryLoader{client: client}, nil
}

// Close closes the BigQuery client connection.
func (l *BigQueryLoader) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// Insert appends table to the target table with a load job and waits for it
// to finish. Tables without rows are skipped.
func (l *BigQueryLoader) Insert(ctx context.Context, table *domain.Table, target domain.Target, opts domain.LoadOptions) error {
	if table.Len() == 0 {
		return nil
	}

	loader, err := l.newLoader(table, target, opts)
	if err != nil {
		return err
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("Insert: running load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("Insert: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("Insert: job error: %w", err)
	}

	return nil
}

func (l *BigQueryLoader) newLoader(table *domain.Table, target domain.Target, opts domain.LoadOptions) (*bigquery.Loader, error) {
	columns := ColumnNames(table.Columns)

	data, err := encodeRows(columns, table.Rows)
	if err != nil {
		return nil, err
	}

	schema := make(bigquery.Schema, 0, len(columns))
	for _, c := range columns {
		schema = append(schema, &bigquery.FieldSchema{Name: c, Type: bigquery.StringFieldType})
	}

	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.JSON
	src.Schema = schema

	loader := l.client.DatasetInProject(l.client.Project(), DatasetID(target)).Table(target.Table).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend
	loader.Labels = Labels(opts)
	if opts.SchemaEvolution {
		loader.SchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION"}
	}

	return loader, nil
}

// DatasetID joins a target's Database and Schema into one BigQuery dataset
// name, e.g. TR_TEST and NT give TR_TEST_NT.
func DatasetID(target domain.Target) string {
	return sanitize(target.Database+"_"+target.Schema, maxDatasetLen, false)
}

// encodeRows renders rows as newline-delimited JSON keyed by column. Empty
// cells are left out so they load as NULL.
func encodeRows(columns []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, row := range rows {
		obj := make(map[string]string, len(columns))
		for j, c := range columns {
			if j < len(row) && row[j] != "" {
				obj[c] = row[j]
			}
		}
		if err := enc.Encode(obj); err != nil {
			return nil, fmt.Errorf("encodeRows: row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// ColumnNames maps table columns to valid BigQuery column names: characters
// other than letters, digits and underscores become underscores, a leading
// digit gets an underscore prefix and duplicates get a numeric suffix.
func ColumnNames(columns []string) []string {
	out := make([]string, 0, len(columns))
	seen := make(map[string]int, len(columns))
	for _, c := range columns {
		name := sanitize(c, maxColumnLen, false)
		if name == "" {
			name = "_"
		}
		if name[0] >= '0' && name[0] <= '9' {
			name = "_" + name
		}
		if base := strings.ToLower(name); seen[base] > 0 {
			for n := seen[base] + 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d", name, n)
				if seen[strings.ToLower(candidate)] == 0 {
					seen[base] = n
					name = candidate
					break
				}
			}
		}
		seen[strings.ToLower(name)]++
		out = append(out, name)
	}
	return out
}

// Labels builds job labels from the load options. Values are lowercased and
// restricted to the BigQuery label alphabet.
func Labels(opts domain.LoadOptions) map[string]string {
	labels := make(map[string]string)
	if v := sanitize(opts.Username, maxLabelLen, true); v != "" {
		labels[labelLoadedBy] = v
	}
	if v := sanitize(opts.Warehouse, maxLabelLen, true); v != "" {
		labels[labelWarehouse] = v
	}
	return labels
}

func sanitize(s string, maxLen int, label bool) string {
	if label {
		s = strings.ToLower(s)
	}
	var sb strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '_':
			sb.WriteRune(r)
		case label && r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
		if sb.Len() >= maxLen {
			break
		}
	}
	return sb.String()
}
