package mana

import "fmt"

// Color represents a type of mana.
type Color string

const (
	ColorWhite     Color = "white"
	ColorBlue      Color = "blue"
	ColorBlack     Color = "black"
	ColorRed       Color = "red"
	ColorGreen     Color = "green"
	ColorColorless Color = "colorless"
	// ColorGeneric is mana that can only pay generic costs.
	ColorGeneric Color = "generic"
)

// PaymentOrder is the order colour requirements are checked and reported in.
var PaymentOrder = []Color{ColorWhite, ColorBlue, ColorBlack, ColorRed, ColorGreen, ColorColorless}

// Symbol returns the single letter used in cost strings for c.
func (c Color) Symbol() string {
	switch c {
	case ColorWhite:
		return "W"
	case ColorBlue:
		return "U"
	case ColorBlack:
		return "B"
	case ColorRed:
		return "R"
	case ColorGreen:
		return "G"
	case ColorColorless:
		return "C"
	default:
		return ""
	}
}

// ManaPool represents a player's mana pool. It is a value type: every
// operation returns a new pool and no quantity ever drops below zero.
type ManaPool struct {
	White     int `json:"white"`
	Blue      int `json:"blue"`
	Black     int `json:"black"`
	Red       int `json:"red"`
	Green     int `json:"green"`
	Colorless int `json:"colorless"`
	Generic   int `json:"generic"`
}

// Get returns the amount of mana of type c.
func (p ManaPool) Get(c Color) int {
	switch c {
	case ColorWhite:
		return p.White
	case ColorBlue:
		return p.Blue
	case ColorBlack:
		return p.Black
	case ColorRed:
		return p.Red
	case ColorGreen:
		return p.Green
	case ColorColorless:
		return p.Colorless
	case ColorGeneric:
		return p.Generic
	default:
		return 0
	}
}

func (p ManaPool) with(c Color, amount int) ManaPool {
	if amount < 0 {
		amount = 0
	}
	switch c {
	case ColorWhite:
		p.White = amount
	case ColorBlue:
		p.Blue = amount
	case ColorBlack:
		p.Black = amount
	case ColorRed:
		p.Red = amount
	case ColorGreen:
		p.Green = amount
	case ColorColorless:
		p.Colorless = amount
	case ColorGeneric:
		p.Generic = amount
	}
	return p
}

// Add returns a pool with amount mana of type c added. Non-positive amounts
// are ignored.
func (p ManaPool) Add(c Color, amount int) ManaPool {
	if amount <= 0 {
		return p
	}
	return p.with(c, p.Get(c)+amount)
}

// Spend returns a pool with up to amount mana of type c removed, clamped at
// zero, and how much was actually removed.
func (p ManaPool) Spend(c Color, amount int) (ManaPool, int) {
	if amount <= 0 {
		return p, 0
	}
	have := p.Get(c)
	spent := amount
	if spent > have {
		spent = have
	}
	return p.with(c, have-spent), spent
}

// Total returns the total mana in the pool.
func (p ManaPool) Total() int {
	return p.White + p.Blue + p.Black + p.Red + p.Green + p.Colorless + p.Generic
}

// Empty returns an empty pool. Pools empty between steps.
func (p ManaPool) Empty() ManaPool {
	return ManaPool{}
}

// IsEmpty reports whether the pool holds no mana.
func (p ManaPool) IsEmpty() bool {
	return p.Total() == 0
}

// spendGeneric pays amount of generic cost, drawing generic-only mana first,
// then colorless, then colours in payment order. It returns the new pool and
// the shortfall.
func (p ManaPool) spendGeneric(amount int) (ManaPool, int) {
	order := []Color{ColorGeneric, ColorColorless, ColorWhite, ColorBlue, ColorBlack, ColorRed, ColorGreen}
	for _, c := range order {
		if amount == 0 {
			break
		}
		var spent int
		p, spent = p.Spend(c, amount)
		amount -= spent
	}
	return p, amount
}

func (p ManaPool) String() string {
	return fmt.Sprintf("W:%d U:%d B:%d R:%d G:%d C:%d generic:%d",
		p.White, p.Blue, p.Black, p.Red, p.Green, p.Colorless, p.Generic)
}
