package catalog

import (
	"time"

	"github.com/odyssey-erp/stockd/internal/stock"
)

// PageSize is the fixed number of products per listing page.
const PageSize = 100

// Status tags the lifecycle of a product.
type Status int

const (
	StatusActive Status = iota
	StatusDeleted
)

func (s Status) String() string {
	if s == StatusDeleted {
		return "deleted"
	}
	return "active"
}

// Product is a catalog record. DeletedAt is set only when Status is StatusDeleted.
type Product struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Status      Status
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductInput is the writable part of a product. ID is honoured on create
// only and stays zero for generated ids.
type ProductInput struct {
	ID          int64  `json:"-"`
	Code        string `json:"code" validate:"required,max=255"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"required,max=255"`
}

func (p Product) input() ProductInput {
	return ProductInput{Code: p.Code, Name: p.Name, Description: p.Description}
}

// Candidate is a product row coming from an import. Nil fields were not
// supplied by the source and are never compared or written.
type Candidate struct {
	ID          *int64
	Code        *string
	Name        *string
	Description *string
}

// UpsertOutcome reports what UpsertByIDOrCode did.
type UpsertOutcome int

const (
	OutcomeUnchanged UpsertOutcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// SortOrder orders listings by on-hand stock.
type SortOrder int

const (
	SortNone SortOrder = iota
	SortAsc
	SortDesc
)

// ListOptions narrows and decorates a product listing. Page is 1-based;
// zero disables paging.
type ListOptions struct {
	WithStock   bool
	SortByStock SortOrder
	Available   bool
	Page        int
}

func (o ListOptions) needsStock() bool {
	return o.WithStock || o.SortByStock != SortNone || o.Available
}

// Listing is a product optionally decorated with its stock aggregates.
type Listing struct {
	Product Product
	Stock   *stock.Summary
}
