package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockd/internal/shared"
	"github.com/odyssey-erp/stockd/internal/stock"
)

// RepositoryPort abstracts product persistence.
type RepositoryPort interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetByCode(ctx context.Context, code string) (Product, error)
	Insert(ctx context.Context, in ProductInput) (Product, error)
	Update(ctx context.Context, id int64, in ProductInput) (Product, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) error
}

// StockReader exposes the ledger aggregates used to decorate listings.
type StockReader interface {
	Summaries(ctx context.Context, productIDs []int64) (map[int64]stock.Summary, error)
}

// Service implements product catalog use-cases.
type Service struct {
	repo     RepositoryPort
	stock    StockReader
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs catalog service.
func NewService(repo RepositoryPort, stock StockReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, logger: logger, validate: newValidator(), now: time.Now}
}

// List returns active products. Stock aggregates are fetched in one grouped
// query and only when an option needs them; sorting, filtering and paging
// are applied in that order.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Listing, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	listings := make([]Listing, 0, len(products))
	if !opts.needsStock() {
		for _, p := range products {
			listings = append(listings, Listing{Product: p})
		}
		return page(listings, opts.Page), nil
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	summaries, err := s.stock.Summaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	for _, p := range products {
		sum := summaries[p.ID]
		if opts.Available && sum.OnHand <= 0 {
			continue
		}
		listings = append(listings, Listing{Product: p, Stock: &sum})
	}
	if opts.SortByStock != SortNone {
		slices.SortStableFunc(listings, func(a, b Listing) int {
			c := cmp.Compare(a.Stock.OnHand, b.Stock.OnHand)
			if opts.SortByStock == SortDesc {
				c = -c
			}
			if c != 0 {
				return c
			}
			return cmp.Compare(a.Product.ID, b.Product.ID)
		})
	}
	return page(listings, opts.Page), nil
}

func page(listings []Listing, n int) []Listing {
	if n <= 0 {
		return listings
	}
	start, end := shared.NewPagination(n, PageSize, len(listings)).Bounds()
	return listings[start:end]
}

// Get returns one active product, decorated with stock when asked.
func (s *Service) Get(ctx context.Context, id int64, withStock bool) (Listing, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Listing{}, fmt.Errorf("catalog: get %d: %w", id, err)
	}
	listing := Listing{Product: p}
	if withStock {
		summaries, err := s.stock.Summaries(ctx, []int64{id})
		if err != nil {
			return Listing{}, fmt.Errorf("catalog: get %d: %w", id, err)
		}
		sum := summaries[id]
		listing.Stock = &sum
	}
	return listing, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	in = trimInput(in)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, validationError(err)
	}
	p, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: create: %w", err)
	}
	s.logger.Info("product created", slog.Int64("id", p.ID), slog.String("code", p.Code))
	return p, nil
}

// Update replaces the mutable fields of an active product.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Product{}, fmt.Errorf("catalog: update %d: %w", id, err)
	}
	in = trimInput(in)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, validationError(err)
	}
	p, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: update %d: %w", id, err)
	}
	return p, nil
}

// SoftDelete hides a product from every default query.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("catalog: delete %d: %w", id, err)
	}
	s.logger.Info("product deleted", slog.Int64("id", id))
	return nil
}

// UpsertByIDOrCode reconciles an imported row with the catalog. An active
// product is looked up by id, then by code; when none exists it is created
// from the supplied fields, otherwise only differing supplied fields are
// written. A product matched by id keeps its code.
func (s *Service) UpsertByIDOrCode(ctx context.Context, c Candidate) (Product, UpsertOutcome, error) {
	existing, byID, err := s.lookup(ctx, c)
	if errors.Is(err, shared.ErrNotFound) {
		in := ProductInput{
			ID:          deref(c.ID),
			Code:        deref(c.Code),
			Name:        deref(c.Name),
			Description: deref(c.Description),
		}
		if in.Code == "" && in.ID > 0 {
			in.Code = strconv.FormatInt(in.ID, 10)
		}
		p, err := s.Create(ctx, in)
		if err != nil {
			return Product{}, OutcomeUnchanged, err
		}
		return p, OutcomeCreated, nil
	}
	if err != nil {
		return Product{}, OutcomeUnchanged, err
	}

	in := existing.input()
	changed := false
	if !byID {
		changed = assign(&in.Code, c.Code)
	}
	changed = assign(&in.Name, c.Name) || changed
	changed = assign(&in.Description, c.Description) || changed
	if !changed {
		return existing, OutcomeUnchanged, nil
	}
	p, err := s.Update(ctx, existing.ID, in)
	if err != nil {
		return Product{}, OutcomeUnchanged, err
	}
	return p, OutcomeUpdated, nil
}

// lookup reports whether the match came from the id.
func (s *Service) lookup(ctx context.Context, c Candidate) (Product, bool, error) {
	if c.ID != nil && *c.ID > 0 {
		p, err := s.repo.Get(ctx, *c.ID)
		if !errors.Is(err, shared.ErrNotFound) {
			return p, err == nil, err
		}
	}
	if c.Code != nil && *c.Code != "" {
		p, err := s.repo.GetByCode(ctx, *c.Code)
		return p, false, err
	}
	return Product{}, false, shared.ErrNotFound
}

func assign(dst *string, src *string) bool {
	if src == nil || *src == *dst {
		return false
	}
	*dst = *src
	return true
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
