package engine

import (
	"sort"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// fill is one planned execution of an incoming order against a resting
// candidate. Price is the maker's, which is always the execution price.
type fill struct {
	OrderIndex int
	Quantity   int64
	Price      int64
}

// compatible reports whether a resting order can fill an incoming order at
// the given limit price.
func compatible(incoming models.Side, limit int64, resting *models.Order) bool {
	if resting.Status != models.OrderActive || resting.Remaining <= 0 {
		return false
	}
	if incoming == models.SideBuy {
		return resting.Side == models.SideSell && resting.Price <= limit
	}
	return resting.Side == models.SideBuy && resting.Price >= limit
}

// rankCandidates sorts resting orders into matching priority for the
// incoming side: best price first (lowest sells for a buy, highest buys for
// a sell), ties broken by earliest creation.
func rankCandidates(incoming models.Side, candidates []models.Order) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Price == candidates[j].Price {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		if incoming == models.SideBuy {
			return candidates[i].Price < candidates[j].Price
		}
		return candidates[i].Price > candidates[j].Price
	})
}

// planFills computes the fills an incoming order takes from the candidates
// in price-time priority. It mutates no order state; the second return value
// is the unmatched remainder that rests at the incoming order's own price.
func planFills(incoming models.Side, limit, quantity int64, candidates []models.Order) ([]fill, int64) {
	rankCandidates(incoming, candidates)

	remaining := quantity
	var fills []fill
	for i := range candidates {
		if remaining == 0 {
			break
		}
		if !compatible(incoming, limit, &candidates[i]) {
			continue
		}
		qty := remaining
		if candidates[i].Remaining < qty {
			qty = candidates[i].Remaining
		}
		fills = append(fills, fill{OrderIndex: i, Quantity: qty, Price: candidates[i].Price})
		remaining -= qty
	}
	return fills, remaining
}
