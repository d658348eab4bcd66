package mana

// CommanderTaxPerCast is the generic surcharge added for each previous cast
// of a commander from the command zone.
const CommanderTaxPerCast = 2

// CostReduction represents a cost reduction effect.
type CostReduction struct {
	ID               string
	GenericReduction int
	ColoredReduction map[Color]int
	AppliesTo        func(cardName string) bool // nil applies to every spell
}

// CostReductionManager manages cost reduction effects for one player.
type CostReductionManager struct {
	reductions []CostReduction
}

// NewCostReductionManager creates a new cost reduction manager.
func NewCostReductionManager() *CostReductionManager {
	return &CostReductionManager{}
}

// AddReduction adds a cost reduction effect.
func (crm *CostReductionManager) AddReduction(reduction CostReduction) {
	crm.reductions = append(crm.reductions, reduction)
}

// RemoveReduction removes a cost reduction effect by ID.
func (crm *CostReductionManager) RemoveReduction(id string) {
	for i, red := range crm.reductions {
		if red.ID == id {
			crm.reductions = append(crm.reductions[:i], crm.reductions[i+1:]...)
			return
		}
	}
}

// Len returns the number of active reductions.
func (crm *CostReductionManager) Len() int {
	return len(crm.reductions)
}

// ApplyReductions applies every matching reduction to req. Reductions never
// push a requirement below zero.
func (crm *CostReductionManager) ApplyReductions(cardName string, req ManaPaymentRequest) ManaPaymentRequest {
	generic := 0
	colored := make(map[Color]int)
	for _, reduction := range crm.reductions {
		if reduction.AppliesTo != nil && !reduction.AppliesTo(cardName) {
			continue
		}
		generic += reduction.GenericReduction
		for c, amount := range reduction.ColoredReduction {
			colored[c] += amount
		}
	}
	return reduceRequest(req, generic, colored)
}

// ApplyCommanderTax adds the commander tax for previousCasts earlier casts.
func ApplyCommanderTax(req ManaPaymentRequest, previousCasts int) ManaPaymentRequest {
	if previousCasts <= 0 {
		return req
	}
	return req.WithGeneric(req.GenericCost + CommanderTaxPerCast*previousCasts)
}

func reduceRequest(req ManaPaymentRequest, generic int, colored map[Color]int) ManaPaymentRequest {
	out := ManaPaymentRequest{
		GenericCost:    req.GenericCost - generic,
		RequiredColors: make(map[Color]int, len(req.RequiredColors)),
		HasXCost:       req.HasXCost,
		IsSnowCost:     req.IsSnowCost,
	}
	if out.GenericCost < 0 {
		out.GenericCost = 0
	}
	out.TotalCost = out.GenericCost
	for c, amount := range req.RequiredColors {
		left := amount - colored[c]
		if left > 0 {
			out.RequiredColors[c] = left
			out.TotalCost += left
		}
	}
	return out
}
