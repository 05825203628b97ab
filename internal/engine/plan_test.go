package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

func restingOrder(side models.Side, price, remaining int64, age time.Duration) models.Order {
	return models.Order{
		ID:        uuid.New(),
		Wallet:    "maker",
		Kind:      models.KindIce,
		Side:      side,
		Remaining: remaining,
		Price:     price,
		Status:    models.OrderActive,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestPlanFills_BetterPriceBeatsEarlierTime(t *testing.T) {
	// S1 is older but worse priced; the cheaper S2 must fill first.
	s1 := restingOrder(models.SideSell, 6, 1, 2*time.Second)
	s2 := restingOrder(models.SideSell, 5, 1, 1*time.Second)

	fills, remaining := planFills(models.SideBuy, 6, 1, []models.Order{s1, s2})

	require.Len(t, fills, 1)
	assert.Equal(t, int64(0), remaining)
	assert.Equal(t, int64(5), fills[0].Price)
}

func TestPlanFills_TimeBreaksPriceTies(t *testing.T) {
	older := restingOrder(models.SideSell, 5, 3, 2*time.Second)
	newer := restingOrder(models.SideSell, 5, 3, 1*time.Second)
	candidates := []models.Order{newer, older}

	fills, remaining := planFills(models.SideBuy, 5, 3, candidates)

	require.Len(t, fills, 1)
	assert.Equal(t, int64(0), remaining)
	assert.Equal(t, older.ID, candidates[fills[0].OrderIndex].ID)
}

func TestPlanFills_ExecutesAtMakerPrice(t *testing.T) {
	resting := restingOrder(models.SideSell, 5, 10, time.Second)

	fills, _ := planFills(models.SideBuy, 9, 4, []models.Order{resting})

	require.Len(t, fills, 1)
	assert.Equal(t, int64(5), fills[0].Price, "trade must execute at the resting price, not the incoming price")
	assert.Equal(t, int64(4), fills[0].Quantity)
}

func TestPlanFills_PartialFillLeavesRemainder(t *testing.T) {
	resting := restingOrder(models.SideSell, 5, 4, time.Second)

	fills, remaining := planFills(models.SideBuy, 5, 10, []models.Order{resting})

	require.Len(t, fills, 1)
	assert.Equal(t, int64(4), fills[0].Quantity)
	assert.Equal(t, int64(6), remaining)
}

func TestPlanFills_SkipsIncompatiblePrices(t *testing.T) {
	expensive := restingOrder(models.SideSell, 12, 5, time.Second)

	fills, remaining := planFills(models.SideBuy, 10, 5, []models.Order{expensive})

	assert.Empty(t, fills)
	assert.Equal(t, int64(5), remaining)
}

func TestPlanFills_IncomingSellMatchesHighestBidFirst(t *testing.T) {
	low := restingOrder(models.SideBuy, 8, 2, 3*time.Second)
	high := restingOrder(models.SideBuy, 11, 2, time.Second)
	candidates := []models.Order{low, high}

	fills, remaining := planFills(models.SideSell, 8, 3, candidates)

	require.Len(t, fills, 2)
	assert.Equal(t, int64(0), remaining)
	assert.Equal(t, int64(11), fills[0].Price)
	assert.Equal(t, int64(2), fills[0].Quantity)
	assert.Equal(t, int64(8), fills[1].Price)
	assert.Equal(t, int64(1), fills[1].Quantity)
}

func TestPlanFills_SkipsInactiveOrders(t *testing.T) {
	cancelled := restingOrder(models.SideSell, 5, 5, time.Second)
	cancelled.Status = models.OrderCancelled

	fills, remaining := planFills(models.SideBuy, 5, 5, []models.Order{cancelled})

	assert.Empty(t, fills)
	assert.Equal(t, int64(5), remaining)
}

func TestPlanFills_ConservesQuantity(t *testing.T) {
	candidates := []models.Order{
		restingOrder(models.SideSell, 4, 3, 5*time.Second),
		restingOrder(models.SideSell, 5, 7, 4*time.Second),
		restingOrder(models.SideSell, 6, 2, 3*time.Second),
		restingOrder(models.SideSell, 7, 9, 2*time.Second),
	}

	fills, remaining := planFills(models.SideBuy, 6, 11, candidates)

	var filled int64
	for _, f := range fills {
		assert.LessOrEqual(t, f.Quantity, candidates[f.OrderIndex].Remaining)
		assert.Positive(t, f.Quantity)
		filled += f.Quantity
	}
	assert.Equal(t, int64(11), filled+remaining)
	// Only the 4, 5 and 6 priced sells are compatible: 3+7+2 = 12 > 11.
	assert.Equal(t, int64(0), remaining)
}
