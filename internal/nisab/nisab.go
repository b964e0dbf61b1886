// Package nisab converts precious-metal spot prices into currency-denominated
// Nisab thresholds.
//
// A non-positive price is accepted and yields a zero threshold. When the price
// feed degrades, every holding meets a zero Nisab, so the system leans towards
// reporting an obligation rather than silently dropping one.
package nisab

import (
	"github.com/shopspring/decimal"

	"zakat/internal/money"
	dErrors "zakat/pkg/domain-errors"
)

type Metal string

const (
	MetalGold   Metal = "gold"
	MetalSilver Metal = "silver"
)

func (m Metal) IsValid() bool {
	return m == MetalGold || m == MetalSilver
}

// Weights is the metal weight, in grams, that defines Nisab.
type Weights struct {
	GoldGrams   decimal.Decimal `json:"gold_grams"`
	SilverGrams decimal.Decimal `json:"silver_grams"`
}

var (
	// StandardWeights are the default 87.48 g gold / 612.36 g silver.
	StandardWeights = Weights{
		GoldGrams:   decimal.RequireFromString("87.48"),
		SilverGrams: decimal.RequireFromString("612.36"),
	}
	// AlternateWeights are the rounded 85 g / 595 g scholarly values.
	AlternateWeights = Weights{
		GoldGrams:   decimal.NewFromInt(85),
		SilverGrams: decimal.NewFromInt(595),
	}
)

// Validate rejects zero or negative weights.
func (w Weights) Validate() error {
	if !w.GoldGrams.IsPositive() || !w.SilverGrams.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "nisab weights must be positive")
	}
	return nil
}

// Grams returns the Nisab weight for the metal.
func (w Weights) Grams(metal Metal) (decimal.Decimal, error) {
	switch metal {
	case MetalGold:
		return w.GoldGrams, nil
	case MetalSilver:
		return w.SilverGrams, nil
	default:
		return decimal.Zero, dErrors.Newf(dErrors.CodeValidation, "unknown metal %q", metal)
	}
}

// Threshold returns weight * pricePerGram rounded to cents.
func (w Weights) Threshold(metal Metal, pricePerGram decimal.Decimal) (decimal.Decimal, error) {
	grams, err := w.Grams(metal)
	if err != nil {
		return decimal.Zero, err
	}
	if !pricePerGram.IsPositive() {
		return decimal.Zero, nil
	}
	return money.Round2(grams.Mul(pricePerGram)), nil
}

// CalculateThreshold computes the threshold with StandardWeights.
func CalculateThreshold(metal Metal, pricePerGram decimal.Decimal) (decimal.Decimal, error) {
	return StandardWeights.Threshold(metal, pricePerGram)
}

// Prices is a gold/silver spot quote in one currency.
type Prices struct {
	GoldPerGram   decimal.Decimal
	SilverPerGram decimal.Decimal
	Currency      money.Currency
}

// Thresholds computes both metal thresholds for a quote.
func (w Weights) Thresholds(p Prices) (gold, silver decimal.Decimal) {
	// metals are fixed here, so Threshold cannot fail
	gold, _ = w.Threshold(MetalGold, p.GoldPerGram)
	silver, _ = w.Threshold(MetalSilver, p.SilverPerGram)
	return gold, silver
}
