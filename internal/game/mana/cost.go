package mana

import (
	"regexp"
	"strconv"
	"strings"
)

// ManaPaymentRequest is the decomposition of a mana cost string.
type ManaPaymentRequest struct {
	GenericCost    int           `json:"genericCost"`
	RequiredColors map[Color]int `json:"requiredColors"`
	TotalCost      int           `json:"totalCost"`
	HasXCost       bool          `json:"hasXCost"`
	IsSnowCost     bool          `json:"isSnowCost"`
}

// Required returns how much mana of colour c the request needs.
func (r ManaPaymentRequest) Required(c Color) int {
	return r.RequiredColors[c]
}

// WithX returns the request with x added to the generic cost. Requests
// without an X symbol are returned unchanged.
func (r ManaPaymentRequest) WithX(x int) ManaPaymentRequest {
	if !r.HasXCost || x <= 0 {
		return r
	}
	return r.WithGeneric(r.GenericCost + x)
}

// WithGeneric returns the request with its generic cost replaced, clamped
// at zero.
func (r ManaPaymentRequest) WithGeneric(generic int) ManaPaymentRequest {
	if generic < 0 {
		generic = 0
	}
	r.TotalCost += generic - r.GenericCost
	r.GenericCost = generic
	return r
}

var (
	bracedSymbol = regexp.MustCompile(`\{([^}]*)\}`)
	bareToken    = regexp.MustCompile(`\d+|[A-Za-z]`)
)

// ParseManaCost parses a cost such as "{2}{W}{W}", "{X}{R}" or "2WW".
// Parsing is lenient: unknown symbols contribute nothing. Hybrid symbols
// count as one generic mana and X contributes zero to the total.
func ParseManaCost(cost string) ManaPaymentRequest {
	req := ManaPaymentRequest{RequiredColors: make(map[Color]int)}

	cost = strings.TrimSpace(cost)
	if cost == "" {
		return req
	}

	var symbols []string
	if strings.Contains(cost, "{") {
		for _, match := range bracedSymbol.FindAllStringSubmatch(cost, -1) {
			symbols = append(symbols, match[1])
		}
	} else {
		symbols = bareToken.FindAllString(cost, -1)
	}

	for _, raw := range symbols {
		applySymbol(&req, strings.ToUpper(strings.TrimSpace(raw)))
	}

	req.TotalCost = req.GenericCost
	for _, amount := range req.RequiredColors {
		req.TotalCost += amount
	}
	return req
}

func applySymbol(req *ManaPaymentRequest, symbol string) {
	if color, ok := colorForSymbol(symbol); ok {
		req.RequiredColors[color]++
		return
	}
	switch {
	case symbol == "X":
		req.HasXCost = true
	case symbol == "S":
		req.IsSnowCost = true
	case strings.Contains(symbol, "/"):
		req.GenericCost++
	default:
		if n, err := strconv.Atoi(symbol); err == nil && n > 0 {
			req.GenericCost += n
		}
	}
}

func colorForSymbol(symbol string) (Color, bool) {
	switch symbol {
	case "W":
		return ColorWhite, true
	case "U":
		return ColorBlue, true
	case "B":
		return ColorBlack, true
	case "R":
		return ColorRed, true
	case "G":
		return ColorGreen, true
	case "C":
		return ColorColorless, true
	}
	return "", false
}

// FormatManaCost renders a request back into braced symbols, generic first.
func FormatManaCost(req ManaPaymentRequest) string {
	var b strings.Builder
	if req.HasXCost {
		b.WriteString("{X}")
	}
	if req.GenericCost > 0 {
		b.WriteString("{" + strconv.Itoa(req.GenericCost) + "}")
	}
	for _, c := range PaymentOrder {
		for i := 0; i < req.RequiredColors[c]; i++ {
			b.WriteString("{" + c.Symbol() + "}")
		}
	}
	if req.IsSnowCost {
		b.WriteString("{S}")
	}
	return b.String()
}
