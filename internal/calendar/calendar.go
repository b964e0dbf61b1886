// Package calendar converts between Gregorian and Hijri dates and performs the
// fixed-length year arithmetic used by hawl tracking.
//
// Hijri dates use the tabular (arithmetical) Islamic calendar: a 30-year cycle
// with 11 leap years, anchored at 1 Muharram 1 AH = Julian Day Number 1948440.
// Conversion goes through Julian Day Numbers and is exact in both directions;
// observed (moon-sighting) calendars may differ from it by a day.
//
// Year boundaries deliberately use a fixed 354-day lunar year and 365-day solar
// year. Finalized records were computed with these constants and must stay
// reproducible.
package calendar

import (
	"fmt"
	"math"
	"time"

	dErrors "zakat/pkg/domain-errors"
)

const (
	// LunarYearDays is the hawl length.
	LunarYearDays = 354
	SolarYearDays = 365
	// SolarYearLength is the mean Gregorian year used for lunar/solar ratios.
	SolarYearLength = 365.25

	islamicEpochJDN = 1948440
)

// Type selects the calendar a calculation period is expressed in.
type Type string

const (
	TypeLunar Type = "lunar"
	TypeSolar Type = "solar"
)

func (t Type) IsValid() bool {
	return t == TypeLunar || t == TypeSolar
}

type GregorianDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (g GregorianDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", g.Year, g.Month, g.Day)
}

type HijriDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (h HijriDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d AH", h.Year, h.Month, h.Day)
}

// MonthName returns the transliterated Hijri month name.
func (h HijriDate) MonthName() string {
	if h.Month < 1 || h.Month > 12 {
		return ""
	}
	return hijriMonths[h.Month-1]
}

var hijriMonths = [12]string{
	"Muharram", "Safar", "Rabi al-Awwal", "Rabi al-Thani",
	"Jumada al-Awwal", "Jumada al-Thani", "Rajab", "Shaban",
	"Ramadan", "Shawwal", "Dhu al-Qadah", "Dhu al-Hijjah",
}

// ToHijri converts a Gregorian date to the tabular Hijri calendar.
func ToHijri(g GregorianDate) (HijriDate, error) {
	if err := validateGregorian(g); err != nil {
		return HijriDate{}, err
	}
	jdn := gregorianToJDN(g)
	if jdn < islamicEpochJDN {
		return HijriDate{}, dErrors.Newf(dErrors.CodeInvalidDate, "%s precedes the Hijri epoch", g)
	}
	return jdnToHijri(jdn), nil
}

// ToGregorian converts a tabular Hijri date to the proleptic Gregorian calendar.
func ToGregorian(h HijriDate) (GregorianDate, error) {
	if err := validateHijri(h); err != nil {
		return GregorianDate{}, err
	}
	return jdnToGregorian(hijriToJDN(h)), nil
}

// IsHijriLeapYear reports whether Dhu al-Hijjah has 30 days in year y.
func IsHijriLeapYear(y int) bool {
	return mod(14+11*y, 30) < 11
}

// HijriMonthLength returns 30 for odd months, 29 for even months, and 30 for
// Dhu al-Hijjah in leap years.
func HijriMonthLength(year, month int) int {
	if month == 12 && IsHijriLeapYear(year) {
		return 30
	}
	if month%2 == 1 {
		return 30
	}
	return 29
}

func validateGregorian(g GregorianDate) error {
	if g.Year < 1 || g.Year > 9999 {
		return dErrors.Newf(dErrors.CodeInvalidDate, "gregorian year %d out of range", g.Year)
	}
	if g.Month < 1 || g.Month > 12 {
		return dErrors.Newf(dErrors.CodeInvalidDate, "gregorian month %d out of range", g.Month)
	}
	if g.Day < 1 || g.Day > gregorianMonthLength(g.Year, g.Month) {
		return dErrors.Newf(dErrors.CodeInvalidDate, "gregorian day %d out of range for %04d-%02d", g.Day, g.Year, g.Month)
	}
	return nil
}

func validateHijri(h HijriDate) error {
	if h.Year < 1 || h.Year > 9999 {
		return dErrors.Newf(dErrors.CodeInvalidDate, "hijri year %d out of range", h.Year)
	}
	if h.Month < 1 || h.Month > 12 {
		return dErrors.Newf(dErrors.CodeInvalidDate, "hijri month %d out of range", h.Month)
	}
	if h.Day < 1 || h.Day > HijriMonthLength(h.Year, h.Month) {
		return dErrors.Newf(dErrors.CodeInvalidDate, "hijri day %d out of range for %04d-%02d", h.Day, h.Year, h.Month)
	}
	return nil
}

func gregorianMonthLength(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func gregorianToJDN(g GregorianDate) int {
	a := (14 - g.Month) / 12
	y := g.Year + 4800 - a
	m := g.Month + 12*a - 3
	return g.Day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

func jdnToGregorian(jdn int) GregorianDate {
	a := jdn + 32044
	b := (4*a + 3) / 146097
	c := a - 146097*b/4
	d := (4*c + 3) / 1461
	e := c - 1461*d/4
	m := (5*e + 2) / 153
	return GregorianDate{
		Year:  100*b + d - 4800 + m/10,
		Month: m + 3 - 12*(m/10),
		Day:   e - (153*m+2)/5 + 1,
	}
}

func hijriToJDN(h HijriDate) int {
	k := h.Month - 1
	// ceil(29.5 * k)
	monthDays := 29*k + (k+1)/2
	return h.Day + monthDays + (h.Year-1)*354 + (3+11*h.Year)/30 + islamicEpochJDN - 1
}

func jdnToHijri(jdn int) HijriDate {
	year := (30*(jdn-islamicEpochJDN) + 10646) / 10631
	first := hijriToJDN(HijriDate{Year: year, Month: 1, Day: 1})
	if jdn < first {
		year--
		first = hijriToJDN(HijriDate{Year: year, Month: 1, Day: 1})
	} else if next := hijriToJDN(HijriDate{Year: year + 1, Month: 1, Day: 1}); jdn >= next {
		year++
		first = next
	}
	month := int(math.Ceil(float64(jdn-29-first)/29.5)) + 1
	if month > 12 {
		month = 12
	}
	if month < 1 {
		month = 1
	}
	day := jdn - hijriToJDN(HijriDate{Year: year, Month: month, Day: 1}) + 1
	return HijriDate{Year: year, Month: month, Day: day}
}

func mod(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
