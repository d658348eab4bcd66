package mana

import (
	"strings"
	"unicode"
)

// CardData is the subset of card provider data the mana engine consumes.
type CardData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TypeLine string `json:"type_line"`
	ManaCost string `json:"mana_cost"`
}

// Permanent is a card on the battlefield.
type Permanent struct {
	CardID       string `json:"cardId"`
	ControllerID string `json:"controllerId"`
	Tapped       bool   `json:"tapped"`
}

// ManaSource is an untapped land able to produce one mana.
type ManaSource struct {
	CardID        string  `json:"cardId"`
	Name          string  `json:"name"`
	Colors        []Color `json:"colors"`
	ColorlessOnly bool    `json:"colorlessOnly,omitempty"`
	// Unknown marks a land whose colours could not be resolved. It is only
	// used for generic costs.
	Unknown bool `json:"unknown,omitempty"`
}

// Produces reports whether the source can make mana of colour c.
func (s ManaSource) Produces(c Color) bool {
	for _, have := range s.Colors {
		if have == c {
			return true
		}
	}
	return false
}

// LandTable maps canonical land names to the colours they produce.
type LandTable map[string][]Color

// Lookup resolves name through the table.
func (t LandTable) Lookup(name string) ([]Color, bool) {
	colors, ok := t[CanonicalName(name)]
	return colors, ok
}

// Set registers the colours produced by the land called name.
func (t LandTable) Set(name string, colors ...Color) {
	t[CanonicalName(name)] = colors
}

// CanonicalName normalises a card name for table lookups: lower case,
// punctuation dropped, whitespace collapsed.
func CanonicalName(name string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			space = true
		}
	}
	return b.String()
}

// DefaultLandTable returns the built-in table of common non-basic lands.
func DefaultLandTable() LandTable {
	t := LandTable{}
	pairs := []struct {
		a, b  Color
		names []string
	}{
		{ColorWhite, ColorBlue, []string{"Tundra", "Hallowed Fountain", "Glacial Fortress", "Adarkar Wastes"}},
		{ColorBlue, ColorBlack, []string{"Underground Sea", "Watery Grave", "Drowned Catacomb", "Underground River"}},
		{ColorBlack, ColorRed, []string{"Badlands", "Blood Crypt", "Dragonskull Summit", "Sulfurous Springs"}},
		{ColorRed, ColorGreen, []string{"Taiga", "Stomping Ground", "Rootbound Crag", "Karplusan Forest"}},
		{ColorGreen, ColorWhite, []string{"Savannah", "Temple Garden", "Sunpetal Grove", "Brushland"}},
		{ColorWhite, ColorBlack, []string{"Scrubland", "Godless Shrine", "Isolated Chapel", "Caves of Koilos"}},
		{ColorBlue, ColorRed, []string{"Volcanic Island", "Steam Vents", "Sulfur Falls", "Shivan Reef"}},
		{ColorBlack, ColorGreen, []string{"Bayou", "Overgrown Tomb", "Woodland Cemetery", "Llanowar Wastes"}},
		{ColorRed, ColorWhite, []string{"Plateau", "Sacred Foundry", "Clifftop Retreat", "Battlefield Forge"}},
		{ColorGreen, ColorBlue, []string{"Tropical Island", "Breeding Pool", "Hinterland Harbor", "Yavimaya Coast"}},
	}
	for _, pair := range pairs {
		for _, name := range pair.names {
			t.Set(name, pair.a, pair.b)
		}
	}

	all := []Color{ColorWhite, ColorBlue, ColorBlack, ColorRed, ColorGreen}
	for _, name := range []string{"City of Brass", "Mana Confluence", "Exotic Orchard", "Reflecting Pool"} {
		t.Set(name, all...)
	}
	for _, name := range []string{"Reliquary Tower", "Rogue's Passage", "Ancient Tomb", "Temple of the False God", "Wastes"} {
		t.Set(name, ColorColorless)
	}
	return t
}

var basicLandTypes = []struct {
	subtype string
	color   Color
}{
	{"Plains", ColorWhite},
	{"Island", ColorBlue},
	{"Swamp", ColorBlack},
	{"Mountain", ColorRed},
	{"Forest", ColorGreen},
}

// ColorsFromTypeLine infers colours from basic land types in a type line.
func ColorsFromTypeLine(typeLine string) []Color {
	var colors []Color
	for _, basic := range basicLandTypes {
		if strings.Contains(typeLine, basic.subtype) {
			colors = append(colors, basic.color)
		}
	}
	return colors
}

// IsLand reports whether a type line describes a land.
func IsLand(typeLine string) bool {
	return strings.Contains(typeLine, "Land")
}

// ResolveSource describes what card can tap for. The table is consulted
// first, then basic land types; anything else is an unknown-colour source.
func ResolveSource(card CardData, table LandTable) ManaSource {
	source := ManaSource{CardID: card.ID, Name: card.Name}
	if colors, ok := table.Lookup(card.Name); ok {
		source.Colors = colors
	} else if CanonicalName(card.Name) == "wastes" {
		source.Colors = []Color{ColorColorless}
	} else {
		source.Colors = ColorsFromTypeLine(card.TypeLine)
	}
	if len(source.Colors) == 0 {
		source.Unknown = true
	}
	source.ColorlessOnly = len(source.Colors) == 1 && source.Colors[0] == ColorColorless
	return source
}

// GetManaSources returns the untapped lands among battlefield. Permanents
// without card data are skipped and tapped permanents are excluded. A nil
// table uses DefaultLandTable.
func GetManaSources(battlefield []Permanent, cards map[string]CardData, table LandTable) []ManaSource {
	if table == nil {
		table = DefaultLandTable()
	}
	sources := make([]ManaSource, 0, len(battlefield))
	for _, perm := range battlefield {
		if perm.Tapped {
			continue
		}
		card, ok := cards[perm.CardID]
		if !ok || !IsLand(card.TypeLine) {
			continue
		}
		source := ResolveSource(card, table)
		source.CardID = perm.CardID
		sources = append(sources, source)
	}
	return sources
}
