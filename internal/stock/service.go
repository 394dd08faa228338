package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockd/internal/shared"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Total(ctx context.Context, productID int64, m Measure) (int64, error)
	Summaries(ctx context.Context, productIDs []int64) (map[int64]Summary, error)
	InsertIgnore(ctx context.Context, batch []Candidate) (int, error)
}

// LedgerConfig groups optional settings.
type LedgerConfig struct {
	BatchSize   int
	Concurrency int
}

// Ledger records stock movements and answers aggregate queries.
type Ledger struct {
	repo        RepositoryPort
	logger      *slog.Logger
	batchSize   int
	concurrency int
}

// NewLedger builds Ledger.
func NewLedger(repo RepositoryPort, logger *slog.Logger, cfg LedgerConfig) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Ledger{repo: repo, logger: logger, batchSize: cfg.BatchSize, concurrency: cfg.Concurrency}
}

// AddEntries appends entries for one product.
func (l *Ledger) AddEntries(ctx context.Context, productID int64, entries []EntryInput) error {
	if productID <= 0 {
		return shared.NewValidationError("product_id", "must be positive")
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %w", shared.ErrValidation, ErrNoEntries)
	}
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertEntries(ctx, productID, entries)
	})
	if err != nil {
		return fmt.Errorf("stock: add entries: %w", err)
	}
	return nil
}

// OnHandTotal sums positive on-hand quantities of a product.
func (l *Ledger) OnHandTotal(ctx context.Context, productID int64) (int64, error) {
	return l.total(ctx, productID, MeasureOnHand)
}

// TakenTotal sums positive taken quantities of a product.
func (l *Ledger) TakenTotal(ctx context.Context, productID int64) (int64, error) {
	return l.total(ctx, productID, MeasureTaken)
}

// NetStock sums on-hand minus taken over every entry of a product.
func (l *Ledger) NetStock(ctx context.Context, productID int64) (int64, error) {
	return l.total(ctx, productID, MeasureNet)
}

func (l *Ledger) total(ctx context.Context, productID int64, m Measure) (int64, error) {
	v, err := l.repo.Total(ctx, productID, m)
	if err != nil {
		return 0, fmt.Errorf("stock: %s total for product %d: %w", m, productID, err)
	}
	return v, nil
}

// Summary returns every aggregate of one product.
func (l *Ledger) Summary(ctx context.Context, productID int64) (Summary, error) {
	all, err := l.Summaries(ctx, []int64{productID})
	if err != nil {
		return Summary{}, err
	}
	return all[productID], nil
}

// Summaries returns the aggregates of several products. Products without
// entries map to a zero Summary.
func (l *Ledger) Summaries(ctx context.Context, productIDs []int64) (map[int64]Summary, error) {
	found, err := l.repo.Summaries(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("stock: summaries: %w", err)
	}
	out := make(map[int64]Summary, len(productIDs))
	for _, id := range productIDs {
		out[id] = found[id]
	}
	return out, nil
}

type batchResult struct {
	inserted int
	err      error
}

// BulkInsert writes candidates in fixed-size batches with insert-or-ignore
// semantics. A batch failing at the storage level is skipped and reported;
// the remaining batches still run. Only ErrStorageUnavailable and context
// cancellation abort the whole call.
func (l *Ledger) BulkInsert(ctx context.Context, candidates []Candidate) (BulkInsertReport, error) {
	report := BulkInsertReport{Errors: []BatchError{}}
	if len(candidates) == 0 {
		return report, nil
	}
	batches := chunk(candidates, l.batchSize)
	results := make([]batchResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			inserted, err := l.repo.InsertIgnore(gctx, batch)
			if err != nil {
				if errors.Is(err, ErrStorageUnavailable) {
					return err
				}
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.logger.Warn("stock batch insert failed",
					slog.Int("batch", i),
					slog.Int("size", len(batch)),
					slog.Any("error", err))
				results[i] = batchResult{err: err}
				return nil
			}
			results[i] = batchResult{inserted: inserted}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("stock: bulk insert: %w", err)
	}

	offset := 0
	for i, batch := range batches {
		res := results[i]
		if res.err != nil {
			report.Errors = append(report.Errors, BatchError{
				Batch:   i,
				Offset:  offset,
				Size:    len(batch),
				Message: res.err.Error(),
				Err:     res.err,
			})
		} else {
			report.Inserted += res.inserted
			report.Skipped += len(batch) - res.inserted
		}
		offset += len(batch)
	}
	l.logger.Info("stock bulk insert finished",
		slog.Int("batches", len(batches)),
		slog.Int("inserted", report.Inserted),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed_batches", len(report.Errors)))
	return report, nil
}

func chunk(items []Candidate, size int) [][]Candidate {
	out := make([][]Candidate, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
