package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/odyssey-erp/stockd/internal/catalog"
	jobmetrics "github.com/odyssey-erp/stockd/internal/jobs"
	"github.com/odyssey-erp/stockd/internal/shared"
	"github.com/odyssey-erp/stockd/internal/stock"
)

// ProductUpserter reconciles one product row with the catalog.
type ProductUpserter interface {
	UpsertByIDOrCode(ctx context.Context, c catalog.Candidate) (catalog.Product, catalog.UpsertOutcome, error)
}

// StockInserter bulk-inserts stock rows with insert-or-ignore semantics.
type StockInserter interface {
	BulkInsert(ctx context.Context, candidates []stock.Candidate) (stock.BulkInsertReport, error)
}

// Report summarises one import run. Row and batch failures never abort the
// run; they are listed here.
type Report struct {
	Kind        Kind               `json:"kind"`
	Rows        int                `json:"rows"`
	Created     int                `json:"created"`
	Updated     int                `json:"updated"`
	Unchanged   int                `json:"unchanged"`
	Inserted    int                `json:"inserted"`
	Skipped     int                `json:"skipped"`
	RowErrors   []RowError         `json:"row_errors"`
	BatchErrors []stock.BatchError `json:"batch_errors"`
}

func newReport(kind Kind) Report {
	return Report{Kind: kind, RowErrors: []RowError{}, BatchErrors: []stock.BatchError{}}
}

// Reconciler writes parsed rows through the catalog and the ledger.
type Reconciler struct {
	products ProductUpserter
	stocks   StockInserter
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewReconciler builds Reconciler. metrics may be nil.
func NewReconciler(products ProductUpserter, stocks StockInserter, logger *slog.Logger, metrics *jobmetrics.Metrics) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{products: products, stocks: stocks, logger: logger, metrics: metrics}
}

// ImportProducts upserts candidates in file order. Validation and conflict
// failures are recorded per row; any other error aborts the run.
func (r *Reconciler) ImportProducts(ctx context.Context, candidates []ProductCandidate) (Report, error) {
	report := newReport(KindProducts)
	report.Rows = len(candidates)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, outcome, err := r.products.UpsertByIDOrCode(ctx, c.Candidate)
		if err != nil {
			if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConflict) {
				report.RowErrors = append(report.RowErrors, RowError{Row: c.Row, Message: err.Error(), Err: err})
				continue
			}
			return report, fmt.Errorf("importer: product row %d: %w", c.Row, err)
		}
		switch outcome {
		case catalog.OutcomeCreated:
			report.Created++
		case catalog.OutcomeUpdated:
			report.Updated++
		default:
			report.Unchanged++
		}
	}
	r.metrics.AddImportRows(string(KindProducts), "created", report.Created)
	r.metrics.AddImportRows(string(KindProducts), "updated", report.Updated)
	r.metrics.AddImportRows(string(KindProducts), "unchanged", report.Unchanged)
	return report, nil
}

// ImportStocks bulk-inserts candidates through the ledger.
func (r *Reconciler) ImportStocks(ctx context.Context, candidates []stock.Candidate) (Report, error) {
	report := newReport(KindStocks)
	report.Rows = len(candidates)
	res, err := r.stocks.BulkInsert(ctx, candidates)
	if err != nil {
		return report, fmt.Errorf("importer: stocks: %w", err)
	}
	report.Inserted = res.Inserted
	report.Skipped = res.Skipped
	report.BatchErrors = append(report.BatchErrors, res.Errors...)
	r.metrics.AddImportRows(string(KindStocks), "inserted", report.Inserted)
	r.metrics.AddImportRows(string(KindStocks), "skipped", report.Skipped)
	r.metrics.AddFailedBatches(len(report.BatchErrors))
	return report, nil
}

// Run parses rows of the given kind and imports them, merging parse errors
// into the report.
func (r *Reconciler) Run(ctx context.Context, kind Kind, rows [][]string) (Report, error) {
	if len(rows) == 0 {
		return newReport(kind), ErrEmptyFile
	}
	var (
		report    Report
		parseErrs []RowError
		err       error
	)
	switch kind {
	case KindProducts:
		var candidates []ProductCandidate
		candidates, parseErrs = ParseProductRows(rows)
		report, err = r.ImportProducts(ctx, candidates)
	case KindStocks:
		var candidates []stock.Candidate
		candidates, parseErrs = ParseStockRows(rows)
		report, err = r.ImportStocks(ctx, candidates)
	default:
		return newReport(kind), fmt.Errorf("importer: unknown kind %q", kind)
	}
	report.Rows += len(parseErrs)
	report.RowErrors = append(report.RowErrors, parseErrs...)
	slices.SortStableFunc(report.RowErrors, func(a, b RowError) int { return a.Row - b.Row })
	r.metrics.AddImportRows(string(kind), "rejected", len(report.RowErrors))
	if err != nil {
		return report, err
	}
	r.logger.Info("import finished",
		slog.String("kind", string(kind)),
		slog.Int("rows", report.Rows),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("inserted", report.Inserted),
		slog.Int("skipped", report.Skipped),
		slog.Int("row_errors", len(report.RowErrors)),
		slog.Int("batch_errors", len(report.BatchErrors)))
	return report, nil
}
