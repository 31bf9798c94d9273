package pipeline

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

// TransactionFetcher provides access to the fund-accounting API.
// AcquireToken is called once per run before any FetchTransactions call.
type TransactionFetcher interface {
	AcquireToken(ctx context.Context) (string, error)
	FetchTransactions(ctx context.Context, date civil.Date, account string) (*domain.Table, error)
}

// Archiver copies a local file to remote storage and returns its URI.
type Archiver interface {
	UploadFile(ctx context.Context, filePath string) (string, error)
}

// Loader appends a table to a warehouse table.
type Loader interface {
	Insert(ctx context.Context, table *domain.Table, target domain.Target, opts domain.LoadOptions) error
}
