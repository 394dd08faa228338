package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockd/internal/shared"
)

// BatchSize is the number of candidates written per bulk insert statement.
const BatchSize = 2000

// DateLayout is the canonical production date format (year-month-day).
const DateLayout = "2006-01-02"

// Entry is a single append-only stock movement owned by one product.
type Entry struct {
	ID             int64
	ProductID      int64
	OnHand         int64
	Taken          int64
	ProductionDate *time.Time
	ImportKey      string
	CreatedAt      time.Time
}

// EntryInput describes a manually added movement.
type EntryInput struct {
	OnHand         int64
	Taken          int64
	ProductionDate *time.Time
}

// Candidate is a typed row ready for bulk insertion. ImportKey is the
// insert-or-ignore conflict target; Row points back at the source row.
type Candidate struct {
	ProductID      int64
	OnHand         int64
	Taken          int64
	ProductionDate *time.Time
	ImportKey      string
	Row            int
}

// Summary holds the derived aggregates of a product's entries.
type Summary struct {
	OnHand int64
	Taken  int64
	Net    int64
}

// Summarize computes the aggregates over entries. On-hand and taken totals
// only count positive values; net stock counts every entry.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		if e.OnHand > 0 {
			s.OnHand += e.OnHand
		}
		if e.Taken > 0 {
			s.Taken += e.Taken
		}
		s.Net += e.OnHand - e.Taken
	}
	return s
}

// Measure selects one aggregate.
type Measure int

const (
	// MeasureOnHand sums positive on-hand quantities.
	MeasureOnHand Measure = iota
	// MeasureTaken sums positive taken quantities.
	MeasureTaken
	// MeasureNet sums on-hand minus taken over all entries.
	MeasureNet
)

func (m Measure) String() string {
	switch m {
	case MeasureOnHand:
		return "on_hand"
	case MeasureTaken:
		return "taken"
	case MeasureNet:
		return "net"
	default:
		return fmt.Sprintf("measure(%d)", int(m))
	}
}

// Pick returns the aggregate selected by m.
func (s Summary) Pick(m Measure) int64 {
	switch m {
	case MeasureTaken:
		return s.Taken
	case MeasureNet:
		return s.Net
	default:
		return s.OnHand
	}
}

// BatchError records a bulk insert batch that failed at the storage level.
type BatchError struct {
	Batch   int    `json:"batch"`
	Offset  int    `json:"offset"`
	Size    int    `json:"size"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e BatchError) Error() string {
	return fmt.Sprintf("stock: batch %d (rows %d-%d): %s", e.Batch, e.Offset, e.Offset+e.Size-1, e.Message)
}

func (e BatchError) Unwrap() []error {
	return []error{shared.ErrBatchInsert, e.Err}
}

// BulkInsertReport summarises a bulk insert. An empty Errors slice means every
// batch reached storage.
type BulkInsertReport struct {
	Inserted int          `json:"inserted"`
	Skipped  int          `json:"skipped"`
	Errors   []BatchError `json:"errors"`
}

// ErrStorageUnavailable marks failures that make further batches pointless,
// such as being unable to obtain a connection.
var ErrStorageUnavailable = errors.New("stock: storage unavailable")

// ErrNoEntries indicates an AddEntries call without entries.
var ErrNoEntries = errors.New("stock: at least one entry required")
