package zakat

import (
	"github.com/shopspring/decimal"

	"zakat/internal/calendar"
	"zakat/internal/methodology"
	"zakat/internal/money"
	"zakat/internal/nisab"
	"zakat/internal/wealth"
)

// Request describes one calculation. Exactly one of Wealth or Assets supplies
// the holdings; Wealth is trusted as already aggregated and zakatable.
type Request struct {
	CalculationDate calendar.Date
	CalendarType    calendar.Type
	Methodology     methodology.Name
	Custom          *methodology.CustomRules
	Currency        money.Currency

	Wealth      *decimal.Decimal
	Assets      []wealth.Asset
	Liabilities decimal.Decimal

	// Prices skips the price source when set.
	Prices *nisab.Prices
}

// NisabSnapshot is the threshold picture at calculation time.
type NisabSnapshot struct {
	GoldNisab          decimal.Decimal  `json:"gold_nisab"`
	SilverNisab        decimal.Decimal  `json:"silver_nisab"`
	EffectiveNisab     decimal.Decimal  `json:"effective_nisab"`
	Basis              nisab.Metal      `json:"basis"`
	Methodology        methodology.Name `json:"methodology"`
	GoldPricePerGram   decimal.Decimal  `json:"gold_price_per_gram"`
	SilverPricePerGram decimal.Decimal  `json:"silver_price_per_gram"`
	Currency           money.Currency   `json:"currency"`
	AsOf               calendar.Date    `json:"as_of"`
}

// CategoryBreakdown is one category's share. ZakatDue is computed before
// liabilities, so per-category amounts can exceed their share of the total.
type CategoryBreakdown struct {
	Value          decimal.Decimal `json:"value"`
	ZakatableValue decimal.Decimal `json:"zakatable_value"`
	ZakatDue       decimal.Decimal `json:"zakat_due"`
}

// Result is the immutable outcome of one calculation.
type Result struct {
	TotalWealth     decimal.Decimal                       `json:"total_wealth"`
	Liabilities     decimal.Decimal                       `json:"liabilities"`
	ZakatableWealth decimal.Decimal                       `json:"zakatable_wealth"`
	Nisab           NisabSnapshot                         `json:"nisab"`
	ZakatDue        decimal.Decimal                       `json:"zakat_due"`
	MeetsNisab      bool                                  `json:"meets_nisab"`
	Methodology     methodology.Name                      `json:"methodology"`
	Rate            decimal.Decimal                       `json:"rate"`
	CalendarType    calendar.Type                         `json:"calendar_type"`
	Currency        money.Currency                        `json:"currency"`
	AssetBreakdown  map[wealth.Category]CategoryBreakdown `json:"asset_breakdown,omitempty"`
	// SolarEquivalentDue is set for lunar calculations only and is a
	// comparison figure, never the amount owed.
	SolarEquivalentDue *decimal.Decimal `json:"solar_equivalent_due,omitempty"`
}
