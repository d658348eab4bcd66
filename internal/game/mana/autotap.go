package mana

import (
	"fmt"
	"sort"
	"strings"
)

// AutoTapResult is the outcome of an automatic payment attempt. On failure
// Sources is nil and Explanation describes the shortfall.
type AutoTapResult struct {
	Sources       []ManaSource `json:"sources"`
	CanPay        bool         `json:"canPay"`
	Explanation   string       `json:"explanation"`
	ManaFromPool  ManaPool     `json:"manaFromPool"`
	RemainingPool ManaPool     `json:"remainingPool"`
}

// AutoTapLands chooses lands to tap for request. Coloured requirements are
// met first, from pool mana of that colour and then from the first unused
// source producing it. Generic cost is then paid from the pool and finally
// from the leftover sources, colorless-only lands first, then unknown lands,
// then lands producing the fewest colours.
func AutoTapLands(pool ManaPool, sources []ManaSource, request ManaPaymentRequest) AutoTapResult {
	return autoTap(pool, sources, request, nil)
}

// SmartAutoTap is AutoTapLands with the caller's preferred lands tried
// first, in the order given, before the greedy ordering applies.
func SmartAutoTap(pool ManaPool, sources []ManaSource, request ManaPaymentRequest, preferred []string) AutoTapResult {
	rank := make(map[string]int, len(preferred))
	for i, id := range preferred {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	return autoTap(pool, sources, request, rank)
}

func autoTap(pool ManaPool, sources []ManaSource, request ManaPaymentRequest, preferred map[string]int) AutoTapResult {
	candidates := orderByPreference(sources, preferred)
	used := make([]bool, len(candidates))
	var tapped []ManaSource
	work := pool

	var missing []string
	for _, c := range PaymentOrder {
		need := request.Required(c)
		if need == 0 {
			continue
		}
		var spent int
		work, spent = work.Spend(c, need)
		need -= spent
		for ; need > 0; need-- {
			idx := firstProducer(candidates, used, c)
			if idx < 0 {
				break
			}
			used[idx] = true
			tapped = append(tapped, candidates[idx])
		}
		if need > 0 {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		return AutoTapResult{
			CanPay:        false,
			Explanation:   "Missing required colors: " + strings.Join(missing, ", "),
			RemainingPool: pool,
		}
	}

	work, generic := work.spendGeneric(request.GenericCost)
	if generic > 0 {
		leftover := make([]int, 0, len(candidates))
		for i := range candidates {
			if !used[i] {
				leftover = append(leftover, i)
			}
		}
		sort.SliceStable(leftover, func(a, b int) bool {
			return genericLess(candidates[leftover[a]], candidates[leftover[b]], preferred)
		})
		for _, idx := range leftover {
			if generic == 0 {
				break
			}
			used[idx] = true
			tapped = append(tapped, candidates[idx])
			generic--
		}
	}
	if generic > 0 {
		return AutoTapResult{
			CanPay:        false,
			Explanation:   fmt.Sprintf("Not enough mana: %d generic mana unpaid", generic),
			RemainingPool: pool,
		}
	}

	return AutoTapResult{
		Sources:       tapped,
		CanPay:        true,
		Explanation:   describeTaps(tapped),
		ManaFromPool:  poolDifference(pool, work),
		RemainingPool: work,
	}
}

func orderByPreference(sources []ManaSource, preferred map[string]int) []ManaSource {
	ordered := make([]ManaSource, len(sources))
	copy(ordered, sources)
	if len(preferred) == 0 {
		return ordered
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		ra, okA := preferred[ordered[a].CardID]
		rb, okB := preferred[ordered[b].CardID]
		switch {
		case okA && okB:
			return ra < rb
		default:
			return okA && !okB
		}
	})
	return ordered
}

func firstProducer(candidates []ManaSource, used []bool, c Color) int {
	for i, source := range candidates {
		if !used[i] && !source.Unknown && source.Produces(c) {
			return i
		}
	}
	return -1
}

// genericLess orders leftover sources for generic payment.
func genericLess(a, b ManaSource, preferred map[string]int) bool {
	ra, okA := preferred[a.CardID]
	rb, okB := preferred[b.CardID]
	if okA != okB {
		return okA
	}
	if okA && ra != rb {
		return ra < rb
	}
	if a.ColorlessOnly != b.ColorlessOnly {
		return a.ColorlessOnly
	}
	if a.Unknown != b.Unknown {
		return a.Unknown
	}
	return len(a.Colors) < len(b.Colors)
}

func describeTaps(tapped []ManaSource) string {
	if len(tapped) == 0 {
		return "Paid from mana pool"
	}
	names := make([]string, len(tapped))
	for i, source := range tapped {
		names[i] = source.Name
	}
	return "Tap " + strings.Join(names, ", ")
}

func poolDifference(before, after ManaPool) ManaPool {
	return ManaPool{
		White:     before.White - after.White,
		Blue:      before.Blue - after.Blue,
		Black:     before.Black - after.Black,
		Red:       before.Red - after.Red,
		Green:     before.Green - after.Green,
		Colorless: before.Colorless - after.Colorless,
		Generic:   before.Generic - after.Generic,
	}
}
