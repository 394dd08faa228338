package importer

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/odyssey-erp/stockd/internal/catalog"
	"github.com/odyssey-erp/stockd/internal/shared"
	"github.com/odyssey-erp/stockd/internal/stock"
)

// SourceDateLayout is the day/month/year layout of stock files.
const SourceDateLayout = "2/1/2006"

// Kind selects how an uploaded table is interpreted.
type Kind string

const (
	KindProducts Kind = "products"
	KindStocks   Kind = "stocks"
)

// ParseKind validates a kind coming from a request or flag.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindProducts, KindStocks:
		return k, nil
	default:
		return "", fmt.Errorf("importer: unknown import type %q", s)
	}
}

// RowError records why one source row was not imported. Row is the 1-based
// line of the source table, the header being line 1.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

func (e RowError) Unwrap() error {
	return e.Err
}

func parseError(row int, format string, args ...any) RowError {
	msg := fmt.Sprintf(format, args...)
	return RowError{Row: row, Message: msg, Err: fmt.Errorf("%w: %s", shared.ErrParse, msg)}
}

// ProductCandidate is a parsed product row.
type ProductCandidate struct {
	Row int
	catalog.Candidate
}

// ParseProductRows maps rows laid out as [id/code, name, reserved,
// description]. The first column is both the product id and its code.
func ParseProductRows(rows [][]string) ([]ProductCandidate, []RowError) {
	var (
		out  []ProductCandidate
		errs []RowError
	)
	for i, row := range dataRows(rows) {
		line := i + 2
		if blank(row) {
			continue
		}
		key := cell(row, 0)
		if key == nil {
			errs = append(errs, parseError(line, "product id is empty"))
			continue
		}
		id, err := strconv.ParseInt(*key, 10, 64)
		if err != nil || id <= 0 {
			errs = append(errs, parseError(line, "product id %q is not a positive integer", *key))
			continue
		}
		out = append(out, ProductCandidate{
			Row: line,
			Candidate: catalog.Candidate{
				ID:          &id,
				Code:        key,
				Name:        cell(row, 1),
				Description: cell(row, 3),
			},
		})
	}
	return out, errs
}

// ParseStockRows maps rows laid out as [product id, on hand, production
// date]. Dates are read as day/month/year; a blank date is nil.
func ParseStockRows(rows [][]string) ([]stock.Candidate, []RowError) {
	var (
		out  []stock.Candidate
		errs []RowError
	)
	for i, row := range dataRows(rows) {
		line := i + 2
		if blank(row) {
			continue
		}
		rawID := deref(cell(row, 0))
		productID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || productID <= 0 {
			errs = append(errs, parseError(line, "product id %q is not a positive integer", rawID))
			continue
		}
		rawQty := deref(cell(row, 1))
		onHand, err := strconv.ParseInt(rawQty, 10, 64)
		if err != nil {
			errs = append(errs, parseError(line, "on hand %q is not an integer", rawQty))
			continue
		}
		var date *time.Time
		if raw := cell(row, 2); raw != nil {
			d, err := time.Parse(SourceDateLayout, *raw)
			if err != nil {
				errs = append(errs, parseError(line, "production date %q is not day/month/year", *raw))
				continue
			}
			date = &d
		}
		c := stock.Candidate{ProductID: productID, OnHand: onHand, ProductionDate: date, Row: line}
		c.ImportKey = ImportKey(c)
		out = append(out, c)
	}
	return out, errs
}

// ImportKey fingerprints a stock row so that importing the same file twice
// inserts it once.
func ImportKey(c stock.Candidate) string {
	date := ""
	if c.ProductionDate != nil {
		date = c.ProductionDate.Format(stock.DateLayout)
	}
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%d|%d|%d|%s|%d", c.ProductID, c.OnHand, c.Taken, date, c.Row)))
	return hex.EncodeToString(sum[:])
}

func dataRows(rows [][]string) [][]string {
	if len(rows) <= 1 {
		return nil
	}
	return rows[1:]
}

// cell returns the trimmed value at col, or nil when the column is missing
// or blank.
func cell(row []string, col int) *string {
	if col >= len(row) {
		return nil
	}
	v := strings.TrimSpace(row[col])
	if v == "" {
		return nil
	}
	return &v
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
