package bigquery

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

func newTestLoader(t *testing.T) *BigQueryLoader {
	t.Helper()
	l, err := NewBigQueryLoader(context.Background(), "nt-accruals-prod", "EU",
		option.WithoutAuthentication(),
		option.WithEndpoint("http://127.0.0.1:1/bigquery/v2/"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestNewLoader_Config(t *testing.T) {
	l := newTestLoader(t)
	table := &domain.Table{
		Columns: []string{"id", "fund.code", "Upload_Date", "Account"},
		Rows:    [][]string{{"1", "F1", "2026-10-16", "TIR34"}},
	}
	target := domain.Target{Database: "TR_TEST", Schema: "NT", Table: "ACCRUALS"}

	t.Run("schema evolution on", func(t *testing.T) {
		loader, err := l.newLoader(table, target, domain.LoadOptions{Username: "SLoader", Warehouse: "COMPUTE_WH", SchemaEvolution: true})
		require.NoError(t, err)

		assert.Equal(t, "nt-accruals-prod", loader.Dst.ProjectID)
		assert.Equal(t, "TR_TEST_NT", loader.Dst.DatasetID)
		assert.Equal(t, "ACCRUALS", loader.Dst.TableID)
		assert.Equal(t, bigquery.WriteAppend, loader.WriteDisposition)
		assert.Equal(t, bigquery.CreateIfNeeded, loader.CreateDisposition)
		assert.Equal(t, []string{"ALLOW_FIELD_ADDITION"}, loader.SchemaUpdateOptions)
		assert.Equal(t, map[string]string{"loaded_by": "sloader", "warehouse": "compute_wh"}, loader.Labels)

		src, ok := loader.Src.(*bigquery.ReaderSource)
		require.True(t, ok)
		assert.Equal(t, bigquery.JSON, src.SourceFormat)

		var names []string
		for _, f := range src.Schema {
			names = append(names, f.Name)
			assert.Equal(t, bigquery.StringFieldType, f.Type)
		}
		assert.Equal(t, []string{"id", "fund_code", "Upload_Date", "Account"}, names)
	})

	t.Run("schema evolution off", func(t *testing.T) {
		loader, err := l.newLoader(table, target, domain.LoadOptions{})
		require.NoError(t, err)

		assert.Empty(t, loader.SchemaUpdateOptions)
		assert.Empty(t, loader.Labels)
	})
}

func TestInsert_SkipsEmptyTable(t *testing.T) {
	l := newTestLoader(t)

	err := l.Insert(context.Background(), &domain.Table{Columns: []string{"Upload_Date", "Account"}},
		domain.Target{Database: "p", Schema: "d", Table: "t"}, domain.LoadOptions{})

	require.NoError(t, err)
}

func TestEncodeRows(t *testing.T) {
	data, err := encodeRows([]string{"id", "memo"}, [][]string{{"1", "a \"b\""}, {"2", ""}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{`{"id":"1","memo":"a \"b\""}`, `{"id":"2"}`}, lines)
}

func TestColumnNames(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    []string
	}{
		{
			name:    "sanitised and suffixed",
			columns: []string{"id", "fund.code", "1st", "fund_code", "", "amount (usd)", "ID"},
			want:    []string{"id", "fund_code", "_1st", "fund_code_2", "_", "amount__usd_", "ID_2"},
		},
		{
			name:    "suffix collides with a later column",
			columns: []string{"a_b", "a.b", "a_b_2"},
			want:    []string{"a_b", "a_b_2", "a_b_2_2"},
		},
		{
			name:    "suffix collides with an earlier column",
			columns: []string{"a_b_2", "a_b", "a.b"},
			want:    []string{"a_b_2", "a_b", "a_b_3"},
		},
		{
			name:    "repeated duplicates",
			columns: []string{"x", "x", "x", "X"},
			want:    []string{"x", "x_2", "x_3", "X_4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ColumnNames(tt.columns)
			assert.Equal(t, tt.want, got)

			unique := make(map[string]bool, len(got))
			for _, name := range got {
				assert.False(t, unique[strings.ToLower(name)], "duplicate column %s", name)
				unique[strings.ToLower(name)] = true
			}
		})
	}
}

func TestDatasetID(t *testing.T) {
	assert.Equal(t, "TR_TEST_NT", DatasetID(domain.Target{Database: "TR_TEST", Schema: "NT"}))
	assert.Equal(t, "tr_prod_funds_eu", DatasetID(domain.Target{Database: "tr-prod", Schema: "funds.eu"}))
}

func TestLabels(t *testing.T) {
	tests := []struct {
		name string
		opts domain.LoadOptions
		want map[string]string
	}{
		{name: "empty", opts: domain.LoadOptions{}, want: map[string]string{}},
		{name: "lowercased", opts: domain.LoadOptions{Username: "SLEDESMA", Warehouse: "COMPUTE_WH"}, want: map[string]string{"loaded_by": "sledesma", "warehouse": "compute_wh"}},
		{name: "invalid characters", opts: domain.LoadOptions{Username: "ops.team@corp"}, want: map[string]string{"loaded_by": "ops_team_corp"}},
		{name: "truncated", opts: domain.LoadOptions{Warehouse: strings.Repeat("w", 80)}, want: map[string]string{"warehouse": strings.Repeat("w", 63)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Labels(tt.opts))
		})
	}
}
