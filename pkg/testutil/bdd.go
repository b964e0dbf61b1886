package testutil

import (
	"context"
	"testing"
	"time"

	"zakat/pkg/requestcontext"
)

// Given, When and Then name nested subtests so scenario output reads as a
// sentence in `go test -v`.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}

// WhenAt runs a When step whose context reports at as the request time, so
// hawl dates and audit timestamps in the step are fixed.
func WhenAt(t *testing.T, desc string, at time.Time, fn func(t *testing.T, ctx context.Context)) {
	t.Helper()
	t.Run("When "+desc+" on "+at.UTC().Format(time.DateOnly), func(t *testing.T) {
		fn(t, requestcontext.WithTime(t.Context(), at))
	})
}
