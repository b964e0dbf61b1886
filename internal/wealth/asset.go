package wealth

import (
	"github.com/shopspring/decimal"

	"zakat/internal/money"
	id "zakat/pkg/domain"
)

// Category classifies an asset for methodology rules.
type Category string

const (
	CategoryCash            Category = "cash"
	CategoryBankAccount     Category = "bank_account"
	CategoryGold            Category = "gold"
	CategorySilver          Category = "silver"
	CategoryCrypto          Category = "crypto"
	CategoryBusiness        Category = "business"
	CategoryInvestment      Category = "investment"
	CategoryReceivable      Category = "receivable"
	CategoryRetirement      Category = "retirement"
	CategoryPersonalJewelry Category = "personal_jewelry"
	CategoryRealEstate      Category = "real_estate"
	CategoryOther           Category = "other"
)

// KnownCategories lists every category with explicit methodology treatment.
var KnownCategories = []Category{
	CategoryCash, CategoryBankAccount, CategoryGold, CategorySilver,
	CategoryCrypto, CategoryBusiness, CategoryInvestment, CategoryReceivable,
	CategoryRetirement, CategoryPersonalJewelry, CategoryRealEstate, CategoryOther,
}

// Asset is a user holding as read from the asset store. The core never writes
// assets.
type Asset struct {
	ID            id.AssetID      `json:"id"`
	Name          string          `json:"name,omitempty"`
	Category      Category        `json:"category"`
	Value         decimal.Decimal `json:"value"`
	Currency      money.Currency  `json:"currency"`
	ZakatEligible bool            `json:"zakat_eligible"`
}

// Countable reports whether the asset enters aggregation at all. Negative
// rows (debts modeled as assets) are dropped, never netted.
func (a Asset) Countable() bool {
	return a.ZakatEligible && a.Value.IsPositive()
}
