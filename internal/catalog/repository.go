package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockd/internal/platform/db"
	"github.com/odyssey-erp/stockd/internal/shared"
)

// Repository provides pgx backed persistence for products.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, code, name, description, deleted_at, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	if p.DeletedAt != nil {
		p.Status = StatusDeleted
	}
	return p, nil
}

// List returns active products ordered by id.
func (r *Repository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get loads an active product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFound(scanProduct(row))
}

// GetByCode loads an active product by code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1 AND deleted_at IS NULL`, code)
	return notFound(scanProduct(row))
}

const primaryKeyConstraint = "products_pkey"

// Insert creates a product. An explicit id is written as is and the id
// sequence is moved past the table maximum so generated ids cannot collide.
func (r *Repository) Insert(ctx context.Context, in ProductInput) (Product, error) {
	var p Product
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var row pgx.Row
		if in.ID > 0 {
			row = tx.QueryRow(ctx, `INSERT INTO products (id, code, name, description)
VALUES ($1, $2, $3, $4) RETURNING `+productColumns, in.ID, in.Code, in.Name, in.Description)
		} else {
			row = tx.QueryRow(ctx, `INSERT INTO products (code, name, description)
VALUES ($1, $2, $3) RETURNING `+productColumns, in.Code, in.Name, in.Description)
		}
		created, err := scanProduct(row)
		if err != nil {
			return err
		}
		p = created
		if in.ID > 0 {
			_, err = tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT MAX(id) FROM products))`)
		}
		return err
	})
	if err != nil {
		return Product{}, insertError(err, in)
	}
	return p, nil
}

// insertError maps unique violations to ErrConflict. Ids of soft-deleted
// products stay reserved, so an explicit id can collide on the primary key.
func insertError(err error, in ProductInput) error {
	if !db.IsUniqueViolation(err) {
		return err
	}
	if db.ConstraintName(err) == primaryKeyConstraint {
		return fmt.Errorf("catalog: product id %d is held by a deleted product: %w", in.ID, shared.ErrConflict)
	}
	return fmt.Errorf("catalog: product %q: %w", in.Code, shared.ErrConflict)
}

// Update rewrites the mutable fields of an active product.
func (r *Repository) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	row := r.pool.QueryRow(ctx, `UPDATE products SET code = $1, name = $2, description = $3, updated_at = NOW()
WHERE id = $4 AND deleted_at IS NULL RETURNING `+productColumns, in.Code, in.Name, in.Description, id)
	p, err := notFound(scanProduct(row))
	if err != nil && db.IsUniqueViolation(err) {
		return Product{}, fmt.Errorf("catalog: product %q: %w", in.Code, shared.ErrConflict)
	}
	return p, err
}

// SoftDelete stamps deleted_at on an active product.
func (r *Repository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func notFound(p Product, err error) (Product, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}
