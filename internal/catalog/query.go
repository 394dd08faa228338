package catalog

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/odyssey-erp/stockd/internal/platform/httpx"
)

// MaxPage is the largest page whose offset fits in an int.
const MaxPage = math.MaxInt / PageSize

// ParseListOptions translates listing query parameters. Flags accept the
// usual truthy spellings ("1", "true", "t"); an empty value is false.
func ParseListOptions(q url.Values) (ListOptions, error) {
	var opts ListOptions
	var err error
	if opts.WithStock, err = flag(q, "withStock"); err != nil {
		return ListOptions{}, err
	}
	if opts.Available, err = flag(q, "available"); err != nil {
		return ListOptions{}, err
	}
	switch strings.ToUpper(strings.TrimSpace(q.Get("sortByStock"))) {
	case "":
	case "ASC":
		opts.SortByStock = SortAsc
	case "DESC":
		opts.SortByStock = SortDesc
	default:
		return ListOptions{}, fmt.Errorf("%w: sortByStock must be ASC or DESC", httpx.ErrBadRequest)
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 0 || page > MaxPage {
			return ListOptions{}, fmt.Errorf("%w: page must be an integer between 0 and %d", httpx.ErrBadRequest, MaxPage)
		}
		opts.Page = page
	}
	return opts, nil
}

// WithStockFlag reads the withStock flag of a single product request.
func WithStockFlag(q url.Values) (bool, error) {
	return flag(q, "withStock")
}

func flag(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", httpx.ErrBadRequest, name)
	}
	return v, nil
}
