package importer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odyssey-erp/stockd/internal/catalog"
	"github.com/odyssey-erp/stockd/internal/shared"
	"github.com/odyssey-erp/stockd/internal/stock"
)

// memoryCatalog implements catalog.RepositoryPort.
type memoryCatalog struct {
	mu       sync.Mutex
	products map[int64]catalog.Product
	nextID   int64
	writes   int
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{products: make(map[int64]catalog.Product)}
}

func (r *memoryCatalog) List(ctx context.Context) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryCatalog) Get(ctx context.Context, id int64) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		return p, nil
	}
	return catalog.Product{}, shared.ErrNotFound
}

func (r *memoryCatalog) GetByCode(ctx context.Context, code string) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.Code == code {
			return p, nil
		}
	}
	return catalog.Product{}, shared.ErrNotFound
}

func (r *memoryCatalog) Insert(ctx context.Context, in catalog.ProductInput) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.Code == in.Code {
			return catalog.Product{}, shared.ErrConflict
		}
	}
	id := in.ID
	if id == 0 {
		id = r.nextID + 1
	}
	r.nextID = max(r.nextID, id)
	r.writes++
	p := catalog.Product{ID: id, Code: in.Code, Name: in.Name, Description: in.Description, CreatedAt: time.Now()}
	r.products[id] = p
	return p, nil
}

func (r *memoryCatalog) Update(ctx context.Context, id int64, in catalog.ProductInput) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	for other, q := range r.products {
		if other != id && q.Code == in.Code {
			return catalog.Product{}, shared.ErrConflict
		}
	}
	r.writes++
	p.Code, p.Name, p.Description = in.Code, in.Name, in.Description
	r.products[id] = p
	return p, nil
}

func (r *memoryCatalog) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
	return nil
}

// memoryLedger implements stock.RepositoryPort on top of memoryCatalog.
type memoryLedger struct {
	mu       sync.Mutex
	catalog  *memoryCatalog
	entries  []stock.Entry
	keys     map[string]bool
	failWith error
}

func newMemoryLedger(c *memoryCatalog) *memoryLedger {
	return &memoryLedger{catalog: c, keys: make(map[string]bool)}
}

func (l *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error {
	return errors.New("not supported")
}

func (l *memoryLedger) Total(ctx context.Context, productID int64, m stock.Measure) (int64, error) {
	sums, _ := l.Summaries(ctx, []int64{productID})
	return sums[productID].Pick(m), nil
}

func (l *memoryLedger) Summaries(ctx context.Context, ids []int64) (map[int64]stock.Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byProduct := make(map[int64][]stock.Entry)
	for _, e := range l.entries {
		byProduct[e.ProductID] = append(byProduct[e.ProductID], e)
	}
	out := make(map[int64]stock.Summary)
	for _, id := range ids {
		out[id] = stock.Summarize(byProduct[id])
	}
	return out, nil
}

func (l *memoryLedger) InsertIgnore(ctx context.Context, batch []stock.Candidate) (int, error) {
	if l.failWith != nil {
		return 0, l.failWith
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	inserted := 0
	for _, c := range batch {
		if _, err := l.catalog.Get(ctx, c.ProductID); err != nil || l.keys[c.ImportKey] {
			continue
		}
		l.keys[c.ImportKey] = true
		l.entries = append(l.entries, stock.Entry{ProductID: c.ProductID, OnHand: c.OnHand, Taken: c.Taken, ProductionDate: c.ProductionDate, ImportKey: c.ImportKey})
		inserted++
	}
	return inserted, nil
}

type fixture struct {
	catalog    *memoryCatalog
	ledgerRepo *memoryLedger
	products   *catalog.Service
	ledger     *stock.Ledger
	reconciler *Reconciler
}

func newFixture() *fixture {
	cat := newMemoryCatalog()
	lr := newMemoryLedger(cat)
	ledger := stock.NewLedger(lr, nil, stock.LedgerConfig{})
	products := catalog.NewService(cat, ledger, nil)
	return &fixture{
		catalog:    cat,
		ledgerRepo: lr,
		products:   products,
		ledger:     ledger,
		reconciler: NewReconciler(products, ledger, nil, nil),
	}
}
