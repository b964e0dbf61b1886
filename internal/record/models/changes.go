package models

import (
	"slices"
	"strings"
	"time"

	"zakat/internal/audit"
	"zakat/internal/calendar"
	"zakat/internal/methodology"
	"zakat/internal/money"
	dErrors "zakat/pkg/domain-errors"
)

// Changes is a partial edit. Nil fields are left untouched.
type Changes struct {
	UserNotes    *string                  `json:"user_notes,omitempty"`
	Methodology  *methodology.Name        `json:"methodology,omitempty"`
	Custom       *methodology.CustomRules `json:"custom,omitempty"`
	CalendarType *calendar.Type           `json:"calendar_type,omitempty"`
	Currency     *money.Currency          `json:"currency,omitempty"`
}

// Diff validates c against r and returns the field-level summary. An edit
// that changes nothing is rejected.
func (r *Record) Diff(c Changes) (*audit.ChangesSummary, error) {
	sum := &audit.ChangesSummary{
		OldValues: map[string]string{},
		NewValues: map[string]string{},
	}
	add := func(field, oldV, newV string) {
		if oldV == newV {
			return
		}
		sum.FieldsChanged = append(sum.FieldsChanged, field)
		sum.OldValues[field] = oldV
		sum.NewValues[field] = newV
	}

	if c.UserNotes != nil {
		if err := validText("notes", *c.UserNotes); err != nil {
			return nil, err
		}
		add("user_notes", r.UserNotes, strings.TrimSpace(*c.UserNotes))
	}

	target := r.Methodology
	if c.Methodology != nil {
		target = *c.Methodology
	}
	custom := r.Custom
	if c.Custom != nil {
		custom = c.Custom
	}
	if target != methodology.Custom {
		custom = nil
	}
	if c.Methodology != nil || c.Custom != nil {
		if _, err := methodology.Lookup(target, custom); err != nil {
			return nil, err
		}
		add("methodology", string(r.Methodology), string(target))
		switch {
		case c.Custom != nil && target == methodology.Custom:
			add("custom", describeCustom(r.Custom), describeCustom(custom))
		case r.Custom != nil && target != methodology.Custom:
			// leaving custom drops the stored rules
			add("custom", describeCustom(r.Custom), "")
		}
	}
	if c.CalendarType != nil {
		if !c.CalendarType.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "invalid calendar type %q", *c.CalendarType)
		}
		add("calendar_type", string(r.CalendarType), string(*c.CalendarType))
	}
	if c.Currency != nil {
		cur, err := money.ParseCurrency(string(*c.Currency))
		if err != nil {
			return nil, err
		}
		add("currency", string(r.Currency), string(cur))
	}

	if len(sum.FieldsChanged) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "edit changes nothing")
	}
	if r.Result != nil && invalidatesResult(sum.FieldsChanged) {
		sum.FieldsChanged = append(sum.FieldsChanged, "result")
		sum.OldValues["result"] = "zakat_due=" + r.Result.ZakatDue.StringFixed(2)
		sum.NewValues["result"] = ""
	}
	return sum, nil
}

// ApplyEdit mutates r. Call CanEdit and Diff first. Changing a calculation
// input clears the stored result so a stale figure can never be finalized.
func (r *Record) ApplyEdit(c Changes, now time.Time) {
	sum, _ := r.Diff(c)
	if c.UserNotes != nil {
		r.UserNotes = strings.TrimSpace(*c.UserNotes)
	}
	if c.Methodology != nil {
		r.Methodology = *c.Methodology
	}
	if c.Custom != nil && r.Methodology == methodology.Custom {
		r.Custom = c.Custom
	}
	if r.Methodology != methodology.Custom {
		r.Custom = nil
	}
	if c.CalendarType != nil {
		r.CalendarType = *c.CalendarType
	}
	if c.Currency != nil {
		cur, _ := money.ParseCurrency(string(*c.Currency))
		r.Currency = cur
	}
	if sum != nil && slices.Contains(sum.FieldsChanged, "result") {
		r.Result = nil
	}
	r.UpdatedAt = now
}

func invalidatesResult(fields []string) bool {
	for _, f := range fields {
		switch f {
		case "methodology", "custom", "calendar_type", "currency":
			return true
		}
	}
	return false
}

func describeCustom(c *methodology.CustomRules) string {
	if c == nil {
		return ""
	}
	cats := make([]string, len(c.IncludedCategories))
	for i, cat := range c.IncludedCategories {
		cats[i] = string(cat)
	}
	return "basis=" + string(c.Basis) + " rate=" + c.Rate.String() + " categories=" + strings.Join(cats, ",")
}
