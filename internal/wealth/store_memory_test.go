package wealth

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "zakat/pkg/domain"
)

func TestInMemoryAssets(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryAssets()
	user := id.UserID(id.NewRecordID())

	got, err := s.ListEligibleAssets(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, got)

	s.Replace(ctx, user, []Asset{
		{Category: CategoryCash, Value: decimal.NewFromInt(100), Currency: "USD", ZakatEligible: true},
		{Category: CategoryRealEstate, Value: decimal.NewFromInt(900), Currency: "USD", ZakatEligible: false},
	})
	got, err = s.ListEligibleAssets(ctx, user)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryCash, got[0].Category)
}
