package mana

import "fmt"

// CalculateRemainingPool returns what is left of pool after paying request
// from it. Coloured requirements take their own colour; generic cost uses
// generic-only mana first, then colorless, then colours. Shortfalls clamp at
// zero.
func CalculateRemainingPool(pool ManaPool, request ManaPaymentRequest) ManaPool {
	for _, c := range PaymentOrder {
		pool, _ = pool.Spend(c, request.Required(c))
	}
	pool, _ = pool.spendGeneric(request.GenericCost)
	return pool
}

// CanAffordMana reports whether pool alone covers request.
func CanAffordMana(pool ManaPool, request ManaPaymentRequest) bool {
	for _, c := range PaymentOrder {
		need := request.Required(c)
		if pool.Get(c) < need {
			return false
		}
		pool, _ = pool.Spend(c, need)
	}
	return pool.Total() >= request.GenericCost
}

// SelectionResult reports whether manually chosen sources pay a cost.
type SelectionResult struct {
	Valid       bool   `json:"valid"`
	Explanation string `json:"explanation"`
	// Excess is how many selected sources the cost does not need.
	Excess int `json:"excess,omitempty"`
}

// ValidateManaSelection checks that selected sources satisfy request on
// their own. Each coloured requirement is matched to a distinct source;
// when no assignment covers them all, the first unmatched colour in WUBRG
// order is reported. The generic amount is checked last.
func ValidateManaSelection(selected []ManaSource, request ManaPaymentRequest) SelectionResult {
	var slots []Color
	for _, c := range PaymentOrder {
		for i := 0; i < request.Required(c); i++ {
			slots = append(slots, c)
		}
	}

	// owner[i] is the slot source i pays, or -1.
	owner := make([]int, len(selected))
	for i := range owner {
		owner[i] = -1
	}
	unmatched := make(map[Color]int)
	for slot := range slots {
		if !augment(slot, slots, selected, owner, make([]bool, len(selected))) {
			unmatched[slots[slot]]++
		}
	}
	for _, c := range PaymentOrder {
		if n := unmatched[c]; n > 0 {
			return SelectionResult{
				Valid:       false,
				Explanation: fmt.Sprintf("Selected lands are missing %d %s mana", n, c),
			}
		}
	}

	free := 0
	for i := range selected {
		if owner[i] < 0 {
			free++
		}
	}
	if free < request.GenericCost {
		return SelectionResult{
			Valid:       false,
			Explanation: fmt.Sprintf("Selected lands are short %d generic mana", request.GenericCost-free),
		}
	}
	return SelectionResult{
		Valid:       true,
		Explanation: "Selection pays the full cost",
		Excess:      free - request.GenericCost,
	}
}

// augment finds a source for slot, moving earlier assignments along an
// alternating path when the direct candidates are taken.
func augment(slot int, slots []Color, selected []ManaSource, owner []int, seen []bool) bool {
	for i, source := range selected {
		if seen[i] || source.Unknown || !source.Produces(slots[slot]) {
			continue
		}
		seen[i] = true
		if owner[i] < 0 || augment(owner[i], slots, selected, owner, seen) {
			owner[i] = slot
			return true
		}
	}
	return false
}
