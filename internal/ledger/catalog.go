package ledger

import "github.com/shopspring/decimal"

// Catalog lists the face values issued per denomination type. A nil
// Catalog accepts any positive face value.
type Catalog map[DenominationType][]decimal.Decimal

// Allows reports whether value is an issued face value of type t.
func (c Catalog) Allows(t DenominationType, value decimal.Decimal) bool {
	if c == nil {
		return true
	}
	for _, v := range c[t] {
		if v.Equal(value) {
			return true
		}
	}
	return false
}

// TND is the Tunisian dinar series.
var TND = Catalog{
	Bill: decimals("5", "10", "20", "30", "50"),
	Coin: decimals("0.005", "0.01", "0.02", "0.05", "0.1", "0.2", "0.5", "1", "2", "5"),
}

// CatalogFor returns the catalog for an ISO currency code, or nil when the
// currency has no registered series.
func CatalogFor(currency string) Catalog {
	if currency == "TND" {
		return TND
	}
	return nil
}

func decimals(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}
