package calendar

import (
	"fmt"
	"time"
)

// Date is a civil day expressed in both calendars. Values are computed once
// from a Gregorian day and never mutated.
type Date struct {
	Gregorian GregorianDate `json:"gregorian"`
	Hijri     HijriDate     `json:"hijri"`
}

// FromTime builds a Date from the civil day of t in t's own location.
// Time-of-day is discarded. Dates before the Hijri epoch are rejected.
func FromTime(t time.Time) (Date, error) {
	y, m, d := t.Date()
	return NewDate(GregorianDate{Year: y, Month: int(m), Day: d})
}

// MustFromTime is FromTime for dates known to be after the Hijri epoch.
func MustFromTime(t time.Time) Date {
	d, err := FromTime(t)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDate validates g and attaches its Hijri equivalent.
func NewDate(g GregorianDate) (Date, error) {
	h, err := ToHijri(g)
	if err != nil {
		return Date{}, err
	}
	return Date{Gregorian: g, Hijri: h}, nil
}

// FromHijri builds a Date from a Hijri day.
func FromHijri(h HijriDate) (Date, error) {
	g, err := ToGregorian(h)
	if err != nil {
		return Date{}, err
	}
	return Date{Gregorian: g, Hijri: h}, nil
}

// Time returns midnight UTC of the Gregorian day.
func (d Date) Time() time.Time {
	return time.Date(d.Gregorian.Year, time.Month(d.Gregorian.Month), d.Gregorian.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%s / %s", d.Gregorian, d.Hijri)
}

func (d Date) IsZero() bool {
	return d.Gregorian == GregorianDate{}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.jdn() < other.jdn()
}

func (d Date) Equal(other Date) bool {
	return d.Gregorian == other.Gregorian
}

// AddDays moves d by n civil days.
func (d Date) AddDays(n int) Date {
	jdn := d.jdn() + n
	return Date{Gregorian: jdnToGregorian(jdn), Hijri: jdnToHijri(jdn)}
}

// DaysBetween returns the signed number of days from a to b.
func DaysBetween(a, b Date) int {
	return b.jdn() - a.jdn()
}

func (d Date) jdn() int {
	return gregorianToJDN(d.Gregorian)
}

// Boundary is a half-open observance period [Start, End).
type Boundary struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Days is the fixed period length.
func (b Boundary) Days() int {
	return DaysBetween(b.Start, b.End)
}

// Contains reports whether d falls inside the period.
func (b Boundary) Contains(d Date) bool {
	return !d.Before(b.Start) && d.Before(b.End)
}

// LunarYearBoundary returns the 354-day period starting at ref.
func LunarYearBoundary(ref Date) Boundary {
	return Boundary{Start: ref, End: ref.AddDays(LunarYearDays)}
}

// SolarYearBoundary returns the 365-day period starting at ref.
func SolarYearBoundary(ref Date) Boundary {
	return Boundary{Start: ref, End: ref.AddDays(SolarYearDays)}
}

// YearBoundary picks the lunar or solar boundary for the calendar type.
func YearBoundary(t Type, ref Date) Boundary {
	if t == TypeSolar {
		return SolarYearBoundary(ref)
	}
	return LunarYearBoundary(ref)
}
