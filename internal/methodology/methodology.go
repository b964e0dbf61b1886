// Package methodology maps each school of thought to its Nisab basis, rate and
// asset treatment.
//
// All rows live in one table. Adding a methodology is one entry in rulesTable;
// no call site switches on the methodology name.
package methodology

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"zakat/internal/money"
	"zakat/internal/nisab"
	"zakat/internal/wealth"
	dErrors "zakat/pkg/domain-errors"
)

type Name string

const (
	Standard Name = "standard"
	Hanafi   Name = "hanafi"
	Shafii   Name = "shafii"
	Custom   Name = "custom"
)

// Parse accepts the canonical names plus common spellings.
func Parse(s string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "aaoifi":
		return Standard, nil
	case "hanafi":
		return Hanafi, nil
	case "shafii", "shafi'i", "shafi":
		return Shafii, nil
	case "custom":
		return Custom, nil
	}
	return "", dErrors.Newf(dErrors.CodeUnsupportedMethodology, "unsupported methodology %q", s)
}

// Basis selects which metal threshold becomes the effective Nisab.
type Basis string

const (
	BasisGold   Basis = "gold"
	BasisSilver Basis = "silver"
	// BasisLower takes the smaller threshold, so zakat falls due more often.
	BasisLower  Basis = "lower"
	BasisHigher Basis = "higher"
)

func (b Basis) IsValid() bool {
	switch b {
	case BasisGold, BasisSilver, BasisLower, BasisHigher:
		return true
	}
	return false
}

// Rules is one row of the methodology table.
type Rules struct {
	Name        Name
	Description string
	Basis       Basis
	Rate        decimal.Decimal
	Weights     nisab.Weights
	// CategoryWeights is the zakatable fraction per category; 0 excludes it.
	CategoryWeights map[wealth.Category]decimal.Decimal
	// DefaultWeight applies to categories absent from CategoryWeights.
	DefaultWeight decimal.Decimal
}

// Resolution is the outcome of applying a basis to both thresholds.
type Resolution struct {
	EffectiveNisab decimal.Decimal
	Basis          nisab.Metal
}

// Resolve picks the effective Nisab. For BasisLower a tie resolves to gold.
func (r Rules) Resolve(goldNisab, silverNisab decimal.Decimal) Resolution {
	switch r.Basis {
	case BasisSilver:
		return Resolution{EffectiveNisab: silverNisab, Basis: nisab.MetalSilver}
	case BasisGold:
		return Resolution{EffectiveNisab: goldNisab, Basis: nisab.MetalGold}
	case BasisHigher:
		if silverNisab.GreaterThan(goldNisab) {
			return Resolution{EffectiveNisab: silverNisab, Basis: nisab.MetalSilver}
		}
		return Resolution{EffectiveNisab: goldNisab, Basis: nisab.MetalGold}
	default:
		if silverNisab.LessThan(goldNisab) {
			return Resolution{EffectiveNisab: silverNisab, Basis: nisab.MetalSilver}
		}
		return Resolution{EffectiveNisab: goldNisab, Basis: nisab.MetalGold}
	}
}

// CategoryWeight returns the zakatable fraction of a category.
func (r Rules) CategoryWeight(c wealth.Category) decimal.Decimal {
	if w, ok := r.CategoryWeights[c]; ok {
		return w
	}
	return r.DefaultWeight
}

// Includes reports whether any part of the category is zakatable.
func (r Rules) Includes(c wealth.Category) bool {
	return r.CategoryWeight(c).IsPositive()
}

// IncludedCategories lists the known categories this row counts, sorted.
func (r Rules) IncludedCategories() []wealth.Category {
	var out []wealth.Category
	for _, c := range wealth.KnownCategories {
		if r.Includes(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CustomRules is the user-configured row for the Custom methodology.
type CustomRules struct {
	Basis              Basis             `json:"basis"`
	Rate               decimal.Decimal   `json:"rate"`
	IncludedCategories []wealth.Category `json:"included_categories"`
	Weights            *nisab.Weights    `json:"weights,omitempty"`
}

// Validate enforces a known basis, a rate in (0, 1], and a non-empty
// inclusion set.
func (c CustomRules) Validate() error {
	if !c.Basis.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid custom basis %q", c.Basis)
	}
	if !c.Rate.IsPositive() || c.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return dErrors.New(dErrors.CodeValidation, "custom rate must be in (0, 1]")
	}
	if len(c.IncludedCategories) == 0 {
		return dErrors.New(dErrors.CodeValidation, "custom methodology must include at least one category")
	}
	if c.Weights != nil {
		return c.Weights.Validate()
	}
	return nil
}

var (
	one  = decimal.NewFromInt(1)
	zero = decimal.Zero
)

func broadInclusion(overrides map[wealth.Category]decimal.Decimal) map[wealth.Category]decimal.Decimal {
	m := map[wealth.Category]decimal.Decimal{
		wealth.CategoryCash:            one,
		wealth.CategoryBankAccount:     one,
		wealth.CategoryGold:            one,
		wealth.CategorySilver:          one,
		wealth.CategoryCrypto:          one,
		wealth.CategoryBusiness:        one,
		wealth.CategoryInvestment:      one,
		wealth.CategoryReceivable:      one,
		wealth.CategoryRetirement:      zero,
		wealth.CategoryPersonalJewelry: zero,
		wealth.CategoryRealEstate:      zero,
	}
	for c, w := range overrides {
		m[c] = w
	}
	return m
}

var rulesTable = map[Name]Rules{
	Standard: {
		Name:            Standard,
		Description:     "AAOIFI: lower of gold and silver Nisab; liquid, business and investment assets",
		Basis:           BasisLower,
		Rate:            money.ZakatRate,
		Weights:         nisab.StandardWeights,
		CategoryWeights: broadInclusion(nil),
		DefaultWeight:   one,
	},
	Hanafi: {
		Name:        Hanafi,
		Description: "Hanafi: silver Nisab; personal jewelry is zakatable",
		Basis:       BasisSilver,
		Rate:        money.ZakatRate,
		Weights:     nisab.StandardWeights,
		CategoryWeights: broadInclusion(map[wealth.Category]decimal.Decimal{
			wealth.CategoryPersonalJewelry: one,
		}),
		DefaultWeight: one,
	},
	Shafii: {
		Name:        Shafii,
		Description: "Shafi'i: gold Nisab; business receivables counted only once collected",
		Basis:       BasisGold,
		Rate:        money.ZakatRate,
		Weights:     nisab.StandardWeights,
		CategoryWeights: broadInclusion(map[wealth.Category]decimal.Decimal{
			wealth.CategoryReceivable: zero,
		}),
		DefaultWeight: one,
	},
}

// Lookup returns the rules row for name. Custom requires its configuration.
func Lookup(name Name, custom *CustomRules) (Rules, error) {
	if name == Custom {
		if custom == nil {
			return Rules{}, dErrors.New(dErrors.CodeValidation, "custom methodology requires custom rules")
		}
		if err := custom.Validate(); err != nil {
			return Rules{}, err
		}
		return customRules(*custom), nil
	}
	r, ok := rulesTable[name]
	if !ok {
		return Rules{}, dErrors.Newf(dErrors.CodeUnsupportedMethodology, "unsupported methodology %q", name)
	}
	return r, nil
}

// Resolve is Lookup followed by Rules.Resolve for the table methodologies.
func Resolve(name Name, goldNisab, silverNisab decimal.Decimal) (Resolution, error) {
	r, err := Lookup(name, nil)
	if err != nil {
		return Resolution{}, err
	}
	return r.Resolve(goldNisab, silverNisab), nil
}

// Names lists the table methodologies plus Custom, sorted.
func Names() []Name {
	out := make([]Name, 0, len(rulesTable)+1)
	for n := range rulesTable {
		out = append(out, n)
	}
	out = append(out, Custom)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func customRules(c CustomRules) Rules {
	weights := make(map[wealth.Category]decimal.Decimal, len(c.IncludedCategories))
	for _, cat := range c.IncludedCategories {
		weights[cat] = one
	}
	w := nisab.StandardWeights
	if c.Weights != nil {
		w = *c.Weights
	}
	return Rules{
		Name:            Custom,
		Description:     "user-configured basis, rate and inclusion set",
		Basis:           c.Basis,
		Rate:            c.Rate,
		Weights:         w,
		CategoryWeights: weights,
		DefaultWeight:   zero,
	}
}
