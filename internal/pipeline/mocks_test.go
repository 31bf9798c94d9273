package pipeline_test

import (
	"context"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/nt-accruals/internal/domain"
	"github.com/dvloznov/nt-accruals/internal/jobs"
	"github.com/dvloznov/nt-accruals/internal/jobs/inmemory"
)

type fetchCall struct {
	Date    civil.Date
	Account string
}

// MockFetcher is a mock implementation of pipeline.TransactionFetcher.
type MockFetcher struct {
	AcquireTokenFunc      func(ctx context.Context) (string, error)
	FetchTransactionsFunc func(ctx context.Context, date civil.Date, account string) (*domain.Table, error)

	mu         sync.Mutex
	TokenCalls int
	FetchCalls []fetchCall
}

func (m *MockFetcher) AcquireToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.TokenCalls++
	m.mu.Unlock()
	if m.AcquireTokenFunc != nil {
		return m.AcquireTokenFunc(ctx)
	}
	return "token", nil
}

func (m *MockFetcher) FetchTransactions(ctx context.Context, date civil.Date, account string) (*domain.Table, error) {
	m.mu.Lock()
	m.FetchCalls = append(m.FetchCalls, fetchCall{Date: date, Account: account})
	m.mu.Unlock()
	if m.FetchTransactionsFunc != nil {
		return m.FetchTransactionsFunc(ctx, date, account)
	}
	table := &domain.Table{Columns: []string{"id"}, Rows: [][]string{{"1"}}}
	table.Set(domain.ColumnUploadDate, "2026-10-16")
	table.Set(domain.ColumnAccount, account)
	return table, nil
}

// MockWriter is a mock implementation of rawstore.Writer.
type MockWriter struct {
	WriteFunc func(table *domain.Table, account string, date civil.Date) (string, error)
	Paths     []string
}

func (m *MockWriter) Write(table *domain.Table, account string, date civil.Date) (string, error) {
	path := "/out/" + account + "_" + date.String() + ".csv"
	if m.WriteFunc != nil {
		var err error
		if path, err = m.WriteFunc(table, account, date); err != nil {
			return "", err
		}
	}
	m.Paths = append(m.Paths, path)
	return path, nil
}

// MockArchiver is a mock implementation of pipeline.Archiver.
type MockArchiver struct {
	UploadFileFunc func(ctx context.Context, filePath string) (string, error)
	Uploaded       []string
}

func (m *MockArchiver) UploadFile(ctx context.Context, filePath string) (string, error) {
	if m.UploadFileFunc != nil {
		if uri, err := m.UploadFileFunc(ctx, filePath); err != nil {
			return uri, err
		}
	}
	m.Uploaded = append(m.Uploaded, filePath)
	return "gs://bucket/" + filePath, nil
}

// MockLoader is a mock implementation of pipeline.Loader.
type MockLoader struct {
	InsertFunc func(ctx context.Context, table *domain.Table, target domain.Target, opts domain.LoadOptions) error
	Tables     []*domain.Table
	Targets    []domain.Target
	Options    []domain.LoadOptions
}

func (m *MockLoader) Insert(ctx context.Context, table *domain.Table, target domain.Target, opts domain.LoadOptions) error {
	m.Tables = append(m.Tables, table)
	m.Targets = append(m.Targets, target)
	m.Options = append(m.Options, opts)
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, table, target, opts)
	}
	return nil
}

// RecordingJobStore wraps the in-memory store and records status updates.
type RecordingJobStore struct {
	*inmemory.Store
	Updates []jobs.JobStatus
}

func (m *RecordingJobStore) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	m.Updates = append(m.Updates, status)
	return m.Store.UpdateJobStatus(ctx, jobID, status, errorMsg)
}
