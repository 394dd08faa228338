package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockd/internal/platform/db"
	"github.com/odyssey-erp/stockd/internal/shared"
)

// Repository persists stock entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional writes used by the ledger.
type TxRepository interface {
	InsertEntries(ctx context.Context, productID int64, entries []EntryInput) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) InsertEntries(ctx context.Context, productID int64, entries []EntryInput) error {
	for _, e := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO stock_entries (product_id, on_hand, taken, production_date, created_at)
VALUES ($1,$2,$3,$4,NOW())`, productID, e.OnHand, e.Taken, toDate(e.ProductionDate))
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return fmt.Errorf("stock: product %d: %w", productID, shared.ErrNotFound)
			}
			return err
		}
	}
	return nil
}

// Total computes one aggregate for a product in a single query.
func (r *Repository) Total(ctx context.Context, productID int64, m Measure) (int64, error) {
	var query string
	switch m {
	case MeasureOnHand:
		query = `SELECT COALESCE(SUM(on_hand), 0) FROM stock_entries WHERE product_id=$1 AND on_hand > 0`
	case MeasureTaken:
		query = `SELECT COALESCE(SUM(taken), 0) FROM stock_entries WHERE product_id=$1 AND taken > 0`
	case MeasureNet:
		query = `SELECT COALESCE(SUM(on_hand - taken), 0) FROM stock_entries WHERE product_id=$1`
	default:
		return 0, fmt.Errorf("stock: unknown measure %s", m)
	}
	var total int64
	if err := r.pool.QueryRow(ctx, query, productID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Summaries computes all aggregates for the given products in one grouped
// query. Products without entries are absent from the result.
func (r *Repository) Summaries(ctx context.Context, productIDs []int64) (map[int64]Summary, error) {
	out := make(map[int64]Summary, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id,
	COALESCE(SUM(on_hand) FILTER (WHERE on_hand > 0), 0),
	COALESCE(SUM(taken) FILTER (WHERE taken > 0), 0),
	COALESCE(SUM(on_hand - taken), 0)
FROM stock_entries
WHERE product_id = ANY($1)
GROUP BY product_id`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var s Summary
		if err := rows.Scan(&id, &s.OnHand, &s.Taken, &s.Net); err != nil {
			return nil, err
		}
		out[id] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertIgnore writes one batch with insert-or-ignore semantics. Rows whose
// import key already exists, or whose product is missing or deleted, are
// dropped silently. It returns the number of rows actually inserted.
func (r *Repository) InsertIgnore(ctx context.Context, batch []Candidate) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer conn.Release()

	productIDs := make([]int64, len(batch))
	onHand := make([]int64, len(batch))
	taken := make([]int64, len(batch))
	dates := make([]pgtype.Date, len(batch))
	keys := make([]pgtype.Text, len(batch))
	for i, c := range batch {
		productIDs[i] = c.ProductID
		onHand[i] = c.OnHand
		taken[i] = c.Taken
		dates[i] = toDate(c.ProductionDate)
		keys[i] = pgtype.Text{String: c.ImportKey, Valid: c.ImportKey != ""}
	}

	tag, err := conn.Exec(ctx, `INSERT INTO stock_entries (product_id, on_hand, taken, production_date, import_key, created_at)
SELECT v.product_id, v.on_hand, v.taken, v.production_date, v.import_key, NOW()
FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::date[], $5::text[])
	AS v(product_id, on_hand, taken, production_date, import_key)
JOIN products p ON p.id = v.product_id AND p.deleted_at IS NULL
ON CONFLICT (import_key) DO NOTHING`, productIDs, onHand, taken, dates, keys)
	if err != nil {
		if !db.IsServerError(err) && conn.Conn().IsClosed() {
			return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func toDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}
