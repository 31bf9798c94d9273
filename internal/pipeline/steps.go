package pipeline

import (
	"context"

	"github.com/dvloznov/nt-accruals/internal/domain"
	"github.com/dvloznov/nt-accruals/internal/logger"
	"github.com/dvloznov/nt-accruals/internal/rawstore"
)

// FetchStep retrieves the unit's table from the API.
type FetchStep struct {
	Fetcher TransactionFetcher
}

func (s *FetchStep) Name() string { return "fetch" }

func (s *FetchStep) Execute(ctx context.Context, state *UnitState) error {
	table, err := s.Fetcher.FetchTransactions(ctx, state.Unit.Date, state.Unit.Account)
	if err != nil {
		return err
	}
	state.Table = table
	return nil
}

// WriteStep saves the raw table to disk and, when an Archiver is set, copies
// the file to remote storage. An archive failure fails the step.
type WriteStep struct {
	Writer   rawstore.Writer
	Archiver Archiver
}

func (s *WriteStep) Name() string { return "write" }

func (s *WriteStep) Execute(ctx context.Context, state *UnitState) error {
	log := logger.FromContext(ctx)

	path, err := s.Writer.Write(state.Table, state.Unit.Account, state.Unit.Date)
	if err != nil {
		return err
	}
	state.RawPath = path
	log.Info().Str("path", path).Int("rows", state.Table.Len()).Msg("Raw data saved")

	if s.Archiver == nil {
		return nil
	}

	uri, err := s.Archiver.UploadFile(ctx, path)
	if err != nil {
		return err
	}
	state.ArchiveURI = uri
	log.Info().Str("uri", uri).Msg("Raw data archived")
	return nil
}

// LoadStep appends the unit's table to the warehouse. Failures are logged and
// kept on the state; they only fail the step when Promote is set.
type LoadStep struct {
	Loader  Loader
	Target  domain.Target
	Options domain.LoadOptions
	Promote bool
}

func (s *LoadStep) Name() string { return "load" }

func (s *LoadStep) Execute(ctx context.Context, state *UnitState) error {
	log := logger.FromContext(ctx)

	err := s.Loader.Insert(ctx, state.Table, s.Target, s.Options)
	if err == nil {
		log.Info().
			Str("table", s.Target.Table).
			Int("rows", state.Table.Len()).
			Msg("Data inserted into warehouse")
		return nil
	}

	log.Error().Err(err).Str("table", s.Target.Table).Msg("Warehouse load failed")
	if s.Promote {
		return err
	}
	state.LoadErr = err
	return nil
}
