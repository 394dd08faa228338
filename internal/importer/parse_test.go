package importer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockd/internal/shared"
	"github.com/odyssey-erp/stockd/internal/stock"
)

func TestParseProductRows(t *testing.T) {
	rows := [][]string{
		{"id", "name", "reserved", "description"},
		{"1", "Apple", "x", "Fruit"},
		{"2", "Pear"},
		{"", "Nameless"},
		{"abc", "Bad id"},
		{"", "", "", ""},
		{" 3 ", " Plum ", "", " "},
	}
	candidates, errs := ParseProductRows(rows)
	require.Len(t, candidates, 3)

	require.Equal(t, 2, candidates[0].Row)
	require.Equal(t, int64(1), *candidates[0].ID)
	require.Equal(t, "1", *candidates[0].Code)
	require.Equal(t, "Apple", *candidates[0].Name)
	require.Equal(t, "Fruit", *candidates[0].Description)

	require.Nil(t, candidates[1].Description)

	require.Equal(t, "3", *candidates[2].Code)
	require.Equal(t, "Plum", *candidates[2].Name)
	require.Nil(t, candidates[2].Description)

	require.Len(t, errs, 2)
	require.Equal(t, 4, errs[0].Row)
	require.Equal(t, 5, errs[1].Row)
	require.ErrorIs(t, errs[1], shared.ErrParse)
}

func TestParseStockRowsNormalisesDates(t *testing.T) {
	rows := [][]string{
		{"product_id", "on_hand", "production_date"},
		{"7", "10", "01/02/2020"},
		{"7", "-3"},
		{"8", "5", "31/12/2019"},
		{"9", "5", "2020-02-01"},
		{"x", "5", "01/02/2020"},
		{"9", "ten", "01/02/2020"},
	}
	candidates, errs := ParseStockRows(rows)
	require.Len(t, candidates, 3)

	require.Equal(t, "2020-02-01", candidates[0].ProductionDate.Format(stock.DateLayout))
	require.Equal(t, int64(10), candidates[0].OnHand)
	require.Zero(t, candidates[0].Taken)
	require.NotEmpty(t, candidates[0].ImportKey)

	require.Nil(t, candidates[1].ProductionDate)
	require.Equal(t, int64(-3), candidates[1].OnHand)

	require.Equal(t, "2019-12-31", candidates[2].ProductionDate.Format(stock.DateLayout))

	require.Len(t, errs, 3)
	require.Equal(t, []int{5, 6, 7}, []int{errs[0].Row, errs[1].Row, errs[2].Row})
	for _, e := range errs {
		require.ErrorIs(t, e, shared.ErrParse)
	}
}

func TestImportKeyIsDeterministic(t *testing.T) {
	rows := [][]string{{"h"}, {"7", "10", "01/02/2020"}, {"7", "10", "01/02/2020"}}
	first, _ := ParseStockRows(rows)
	second, _ := ParseStockRows(rows)
	require.Equal(t, first[0].ImportKey, second[0].ImportKey)
	// identical rows on different lines are distinct entries
	require.NotEqual(t, first[0].ImportKey, first[1].ImportKey)
}

func TestParseHeaderOnly(t *testing.T) {
	candidates, errs := ParseStockRows([][]string{{"product_id", "on_hand"}})
	require.Empty(t, candidates)
	require.Empty(t, errs)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Stocks ")
	require.NoError(t, err)
	require.Equal(t, KindStocks, k)

	_, err = ParseKind("orders")
	require.Error(t, err)
}
