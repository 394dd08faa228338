package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockd/internal/shared"
	"github.com/odyssey-erp/stockd/internal/stock"
)

type memoryRepo struct {
	products map[int64]Product
	nextID   int64
	listed   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) List(ctx context.Context) ([]Product, error) {
	r.listed++
	var out []Product
	for _, p := range r.products {
		if p.Status == StatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.Status != StatusActive {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (Product, error) {
	for _, p := range r.products {
		if p.Status == StatusActive && p.Code == code {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) codeTaken(code string, except int64) bool {
	for _, p := range r.products {
		if p.Status == StatusActive && p.Code == code && p.ID != except {
			return true
		}
	}
	return false
}

func (r *memoryRepo) Insert(ctx context.Context, in ProductInput) (Product, error) {
	if r.codeTaken(in.Code, 0) {
		return Product{}, shared.ErrConflict
	}
	id := in.ID
	if id == 0 {
		r.nextID++
		id = r.nextID
	} else if _, exists := r.products[id]; exists {
		return Product{}, shared.ErrConflict
	}
	r.nextID = max(r.nextID, id)
	now := time.Now()
	p := Product{ID: id, Code: in.Code, Name: in.Name, Description: in.Description, CreatedAt: now, UpdatedAt: now}
	r.products[id] = p
	return p, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if r.codeTaken(in.Code, id) {
		return Product{}, shared.ErrConflict
	}
	p.Code, p.Name, p.Description = in.Code, in.Name, in.Description
	p.UpdatedAt = time.Now()
	r.products[id] = p
	return p, nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Status = StatusDeleted
	p.DeletedAt = &at
	r.products[id] = p
	return nil
}

type fakeStock struct {
	summaries map[int64]stock.Summary
	calls     int
	added     map[int64][]stock.EntryInput
}

func (f *fakeStock) Summaries(ctx context.Context, ids []int64) (map[int64]stock.Summary, error) {
	f.calls++
	out := make(map[int64]stock.Summary)
	for _, id := range ids {
		if s, ok := f.summaries[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeStock) AddEntries(ctx context.Context, productID int64, entries []stock.EntryInput) error {
	if f.added == nil {
		f.added = make(map[int64][]stock.EntryInput)
	}
	f.added[productID] = append(f.added[productID], entries...)
	return nil
}

func input(code string) ProductInput {
	return ProductInput{Code: code, Name: "Name " + code, Description: "Desc " + code}
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, svc *Service, codes ...string) []Product {
	t.Helper()
	out := make([]Product, 0, len(codes))
	for _, c := range codes {
		p, err := svc.Create(context.Background(), input(c))
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestCreateValidatesAndRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, ProductInput{Code: "A1", Name: "  "})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")
	require.Contains(t, verr.Fields, "description")

	_, err = svc.Create(ctx, ProductInput{Code: strings.Repeat("x", 256), Name: "n", Description: "d"})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "code")

	_, err = svc.Create(ctx, input("A1"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, input("A1"))
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSoftDeleteHidesProductAndFreesCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	ctx := context.Background()
	p := seed(t, svc, "A1")[0]

	require.NoError(t, svc.SoftDelete(ctx, p.ID))
	require.ErrorIs(t, svc.SoftDelete(ctx, p.ID), shared.ErrNotFound)

	_, err := svc.Get(ctx, p.ID, false)
	require.ErrorIs(t, err, shared.ErrNotFound)

	listings, err := svc.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Empty(t, listings)

	_, err = svc.Create(ctx, input("A1"))
	require.NoError(t, err)
}

func TestUpdateConflictsWithOtherActiveProduct(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	ctx := context.Background()
	ps := seed(t, svc, "A1", "B2")

	_, err := svc.Update(ctx, ps[1].ID, input("A1"))
	require.ErrorIs(t, err, shared.ErrConflict)

	updated, err := svc.Update(ctx, ps[1].ID, ProductInput{Code: "B2", Name: "Renamed", Description: "d"})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)

	_, err = svc.Update(ctx, 999, input("C3"))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListWithoutOptionsSkipsAggregates(t *testing.T) {
	fs := &fakeStock{}
	svc := NewService(newMemoryRepo(), fs, nil)
	seed(t, svc, "A", "B", "C")

	listings, err := svc.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, listings, 3)
	require.Zero(t, fs.calls)
	for i, l := range listings {
		require.Nil(t, l.Stock)
		require.Equal(t, int64(i+1), l.Product.ID)
	}
}

func TestListSortsByOnHandWithIDTieBreak(t *testing.T) {
	fs := &fakeStock{summaries: map[int64]stock.Summary{
		1: {OnHand: 5, Taken: 1, Net: 4},
		2: {OnHand: 0, Taken: 0, Net: -3},
		3: {OnHand: 5, Taken: 2, Net: 3},
		4: {OnHand: 9},
	}}
	svc := NewService(newMemoryRepo(), fs, nil)
	seed(t, svc, "A", "B", "C", "D")
	ctx := context.Background()

	ids := func(ls []Listing) []int64 {
		out := make([]int64, len(ls))
		for i, l := range ls {
			out[i] = l.Product.ID
		}
		return out
	}

	asc, err := svc.List(ctx, ListOptions{SortByStock: SortAsc})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1, 3, 4}, ids(asc))
	require.NotNil(t, asc[0].Stock)

	desc, err := svc.List(ctx, ListOptions{SortByStock: SortDesc})
	require.NoError(t, err)
	require.Equal(t, []int64{4, 1, 3, 2}, ids(desc))

	available, err := svc.List(ctx, ListOptions{Available: true, SortByStock: SortDesc})
	require.NoError(t, err)
	require.Equal(t, []int64{4, 1, 3}, ids(available))

	withStock, err := svc.List(ctx, ListOptions{WithStock: true})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4}, ids(withStock))
	require.Equal(t, int64(2), withStock[2].Stock.Taken)
}

func TestListPaging(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	codes := make([]string, PageSize+5)
	for i := range codes {
		codes[i] = fmt.Sprintf("P%03d", i)
	}
	seed(t, svc, codes...)
	ctx := context.Background()

	all, err := svc.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, PageSize+5)

	first, err := svc.List(ctx, ListOptions{Page: 1})
	require.NoError(t, err)
	require.Len(t, first, PageSize)

	second, err := svc.List(ctx, ListOptions{Page: 2})
	require.NoError(t, err)
	require.Len(t, second, 5)
	require.Equal(t, int64(PageSize+1), second[0].Product.ID)

	beyond, err := svc.List(ctx, ListOptions{Page: 3})
	require.NoError(t, err)
	require.Empty(t, beyond)
}

func TestGetWithStockAttachesZeroSummary(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	p := seed(t, svc, "A")[0]

	l, err := svc.Get(context.Background(), p.ID, true)
	require.NoError(t, err)
	require.NotNil(t, l.Stock)
	require.Equal(t, stock.Summary{}, *l.Stock)
}

func TestUpsertByIDOrCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeStock{}, nil)
	ctx := context.Background()

	c := Candidate{ID: ptr(int64(42)), Code: ptr("42"), Name: ptr("Widget"), Description: ptr("Blue")}
	p, outcome, err := svc.UpsertByIDOrCode(ctx, c)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)
	require.Equal(t, int64(42), p.ID)

	_, outcome, err = svc.UpsertByIDOrCode(ctx, c)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)

	// nil fields are not compared
	_, outcome, err = svc.UpsertByIDOrCode(ctx, Candidate{ID: ptr(int64(42)), Code: ptr("42")})
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)

	p, outcome, err = svc.UpsertByIDOrCode(ctx, Candidate{ID: ptr(int64(42)), Code: ptr("42"), Description: ptr("Red")})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.Equal(t, "Red", p.Description)
	require.Equal(t, "Widget", p.Name)

	// generated ids continue past the explicit one
	next, err := svc.Create(ctx, input("N1"))
	require.NoError(t, err)
	require.Equal(t, int64(43), next.ID)
}

func TestUpsertFallsBackToCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	ctx := context.Background()
	existing := seed(t, svc, "SKU-1")[0]

	p, outcome, err := svc.UpsertByIDOrCode(ctx, Candidate{ID: ptr(int64(77)), Code: ptr("SKU-1"), Name: ptr("New name")})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.Equal(t, existing.ID, p.ID)
}

func TestUpsertCreateRequiresNameAndDescription(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)

	_, _, err := svc.UpsertByIDOrCode(context.Background(), Candidate{ID: ptr(int64(5)), Code: ptr("5")})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")
	require.Contains(t, verr.Fields, "description")
}

func TestUpsertMatchedByIDKeepsCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, ProductInput{ID: 1, Code: "A", Name: "Widget", Description: "desc"})
	require.NoError(t, err)

	p, outcome, err := svc.UpsertByIDOrCode(ctx, Candidate{ID: ptr(int64(1)), Code: ptr("1"), Name: ptr("Widget2"), Description: ptr("desc")})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.Equal(t, int64(1), p.ID)
	require.Equal(t, "A", p.Code)
	require.Equal(t, "Widget2", p.Name)

	// the id string colliding with another product's code is irrelevant
	_, err = svc.Create(ctx, ProductInput{ID: 2, Code: "1", Name: "Gadget", Description: "desc"})
	require.NoError(t, err)
	p, outcome, err = svc.UpsertByIDOrCode(ctx, Candidate{ID: ptr(int64(1)), Code: ptr("1"), Name: ptr("Widget3")})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.Equal(t, "A", p.Code)
	require.Equal(t, "Widget3", p.Name)
}

func TestUpsertIDHeldByDeletedProductConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeStock{}, nil)
	ctx := context.Background()
	old := seed(t, svc, "OLD")[0]
	require.NoError(t, svc.SoftDelete(ctx, old.ID))

	_, _, err := svc.UpsertByIDOrCode(ctx, Candidate{ID: ptr(old.ID), Code: ptr("NEW"), Name: ptr("n"), Description: ptr("d")})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, StatusDeleted, repo.products[old.ID].Status)
	require.Equal(t, "OLD", repo.products[old.ID].Code)
}

func TestListAvailableDropsNonPositiveOnHand(t *testing.T) {
	fs := &fakeStock{summaries: map[int64]stock.Summary{
		1: {OnHand: 5},
		2: {OnHand: 0},
		3: {OnHand: -1},
		4: {OnHand: 3},
	}}
	svc := NewService(newMemoryRepo(), fs, nil)
	seed(t, svc, "A", "B", "C", "D")

	listings, err := svc.List(context.Background(), ListOptions{Available: true})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	require.Equal(t, int64(1), listings[0].Product.ID)
	require.Equal(t, int64(4), listings[1].Product.ID)
}

func TestGetUnknownIDOnEmptyCatalog(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)

	_, err := svc.Get(context.Background(), 999, false)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateMissingProductBeforeValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)

	_, err := svc.Update(context.Background(), 999, ProductInput{})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NotErrorIs(t, err, shared.ErrValidation)
}

func TestListHugePageIsEmpty(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeStock{}, nil)
	seed(t, svc, "A", "B")

	listings, err := svc.List(context.Background(), ListOptions{Page: MaxPage})
	require.NoError(t, err)
	require.Empty(t, listings)
}
