package mana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCards() map[string]CardData {
	return map[string]CardData{
		"island-1":  {ID: "island-1", Name: "Island", TypeLine: "Basic Land — Island"},
		"plains-1":  {ID: "plains-1", Name: "Plains", TypeLine: "Basic Land — Plains"},
		"swamp-1":   {ID: "swamp-1", Name: "Swamp", TypeLine: "Basic Land — Swamp"},
		"wastes-1":  {ID: "wastes-1", Name: "Wastes", TypeLine: "Basic Land"},
		"fountain":  {ID: "fountain", Name: "Hallowed Fountain", TypeLine: "Land — Plains Island"},
		"tower":     {ID: "tower", Name: "Reliquary Tower", TypeLine: "Land"},
		"mystery":   {ID: "mystery", Name: "Homebrew Nexus", TypeLine: "Land"},
		"bears":     {ID: "bears", Name: "Grizzly Bears", TypeLine: "Creature — Bear", ManaCost: "{1}{G}"},
		"volcanic":  {ID: "volcanic", Name: "Volcanic Island", TypeLine: "Land"},
		"snow-isle": {ID: "snow-isle", Name: "Snow-Covered Island", TypeLine: "Basic Snow Land — Island"},
	}
}

func TestGetManaSources(t *testing.T) {
	battlefield := []Permanent{
		{CardID: "island-1"},
		{CardID: "plains-1", Tapped: true},
		{CardID: "wastes-1"},
		{CardID: "fountain"},
		{CardID: "mystery"},
		{CardID: "bears"},
		{CardID: "volcanic"},
		{CardID: "snow-isle"},
		{CardID: "not-in-card-data"},
	}

	sources := GetManaSources(battlefield, testCards(), nil)
	require.Len(t, sources, 6)

	byID := map[string]ManaSource{}
	for _, s := range sources {
		byID[s.CardID] = s
	}
	assert.NotContains(t, byID, "plains-1", "tapped lands are excluded")
	assert.NotContains(t, byID, "bears", "non-lands are excluded")
	assert.Equal(t, []Color{ColorBlue}, byID["island-1"].Colors)
	assert.True(t, byID["wastes-1"].ColorlessOnly)
	assert.Equal(t, []Color{ColorWhite, ColorBlue}, byID["fountain"].Colors)
	assert.Equal(t, []Color{ColorBlue, ColorRed}, byID["volcanic"].Colors)
	assert.Equal(t, []Color{ColorBlue}, byID["snow-isle"].Colors)
	assert.True(t, byID["mystery"].Unknown)
	assert.Empty(t, byID["mystery"].Colors)
}

func TestLandTableCanonicalLookup(t *testing.T) {
	table := LandTable{}
	table.Set("Rogue's  Passage", ColorColorless)
	colors, ok := table.Lookup("rogue's passage")
	require.True(t, ok)
	assert.Equal(t, []Color{ColorColorless}, colors)
	assert.Equal(t, "snow covered island", CanonicalName("  Snow-Covered Island "))
}

func TestAutoTapLandsSpellWithGeneric(t *testing.T) {
	island := ManaSource{CardID: "island-1", Name: "Island", Colors: []Color{ColorBlue}}
	plains := ManaSource{CardID: "plains-1", Name: "Plains", Colors: []Color{ColorWhite}}

	result := AutoTapLands(ManaPool{}, []ManaSource{island, plains}, ParseManaCost("{1}{U}"))
	require.True(t, result.CanPay, result.Explanation)
	assert.Equal(t, []ManaSource{island, plains}, result.Sources)

	// source order in the input does not change which land pays for blue
	result = AutoTapLands(ManaPool{}, []ManaSource{plains, island}, ParseManaCost("{1}{U}"))
	require.True(t, result.CanPay)
	assert.Equal(t, []ManaSource{island, plains}, result.Sources)
}

func TestAutoTapLandsMissingColor(t *testing.T) {
	sources := []ManaSource{
		{CardID: "island-1", Name: "Island", Colors: []Color{ColorBlue}},
		{CardID: "plains-1", Name: "Plains", Colors: []Color{ColorWhite}},
	}

	result := AutoTapLands(ManaPool{Blue: 2}, sources, ParseManaCost("{B}"))
	assert.False(t, result.CanPay)
	assert.Nil(t, result.Sources)
	assert.Contains(t, result.Explanation, "black")
	assert.Equal(t, ManaPool{Blue: 2}, result.RemainingPool)

	result = AutoTapLands(ManaPool{}, sources, ParseManaCost("{B}{R}{U}"))
	assert.Equal(t, "Missing required colors: black, red", result.Explanation)
}

func TestAutoTapLandsUsesPoolFirst(t *testing.T) {
	sources := []ManaSource{{CardID: "island-1", Name: "Island", Colors: []Color{ColorBlue}}}

	result := AutoTapLands(ManaPool{Blue: 1, Generic: 1}, sources, ParseManaCost("{1}{U}"))
	require.True(t, result.CanPay)
	assert.Empty(t, result.Sources)
	assert.Equal(t, ManaPool{}, result.RemainingPool)
	assert.Equal(t, ManaPool{Blue: 1, Generic: 1}, result.ManaFromPool)
	assert.Equal(t, "Paid from mana pool", result.Explanation)
}

func TestAutoTapLandsGenericPreference(t *testing.T) {
	dual := ManaSource{CardID: "fountain", Name: "Hallowed Fountain", Colors: []Color{ColorWhite, ColorBlue}}
	basic := ManaSource{CardID: "island-1", Name: "Island", Colors: []Color{ColorBlue}}
	unknown := ManaSource{CardID: "mystery", Name: "Homebrew Nexus", Unknown: true}
	wastes := ManaSource{CardID: "wastes-1", Name: "Wastes", Colors: []Color{ColorColorless}, ColorlessOnly: true}

	sources := []ManaSource{dual, basic, unknown, wastes}
	result := AutoTapLands(ManaPool{}, sources, ParseManaCost("{3}"))
	require.True(t, result.CanPay)
	assert.Equal(t, []ManaSource{wastes, unknown, basic}, result.Sources)
	assert.Equal(t, "Tap Wastes, Homebrew Nexus, Island", result.Explanation)

	result = AutoTapLands(ManaPool{}, sources, ParseManaCost("{5}"))
	assert.False(t, result.CanPay)
	assert.Nil(t, result.Sources)
	assert.Contains(t, result.Explanation, "1 generic")
}

func TestAutoTapLandsUnknownNeverPaysColor(t *testing.T) {
	unknown := ManaSource{CardID: "mystery", Name: "Homebrew Nexus", Unknown: true}
	result := AutoTapLands(ManaPool{}, []ManaSource{unknown}, ParseManaCost("{G}"))
	assert.False(t, result.CanPay)
	assert.Contains(t, result.Explanation, "green")
}

func TestSmartAutoTapHonoursPreference(t *testing.T) {
	islandA := ManaSource{CardID: "island-a", Name: "Island", Colors: []Color{ColorBlue}}
	islandB := ManaSource{CardID: "island-b", Name: "Island", Colors: []Color{ColorBlue}}
	wastes := ManaSource{CardID: "wastes-1", Name: "Wastes", Colors: []Color{ColorColorless}, ColorlessOnly: true}

	sources := []ManaSource{islandA, wastes, islandB}

	greedy := AutoTapLands(ManaPool{}, sources, ParseManaCost("{1}{U}"))
	require.True(t, greedy.CanPay)
	assert.Equal(t, []ManaSource{islandA, wastes}, greedy.Sources)

	smart := SmartAutoTap(ManaPool{}, sources, ParseManaCost("{1}{U}"), []string{"island-b", "island-a"})
	require.True(t, smart.CanPay)
	assert.Equal(t, []ManaSource{islandB, islandA}, smart.Sources)
}

func TestCalculateRemainingPoolAndAfford(t *testing.T) {
	pool := ManaPool{White: 2, Blue: 1, Green: 1}
	req := ParseManaCost("{1}{G}")

	assert.True(t, CanAffordMana(pool, req))
	assert.Equal(t, ManaPool{White: 1, Blue: 1}, CalculateRemainingPool(pool, req))

	assert.False(t, CanAffordMana(ManaPool{Green: 1}, ParseManaCost("{3}{G}")))
	assert.False(t, CanAffordMana(ManaPool{Green: 5}, ParseManaCost("{B}")))
	assert.Equal(t, ManaPool{}, CalculateRemainingPool(ManaPool{Green: 1}, ParseManaCost("{3}{G}")))
}

func TestValidateManaSelection(t *testing.T) {
	island := ManaSource{CardID: "i", Name: "Island", Colors: []Color{ColorBlue}}
	dual := ManaSource{CardID: "d", Name: "Underground Sea", Colors: []Color{ColorBlue, ColorBlack}}
	plains := ManaSource{CardID: "p", Name: "Plains", Colors: []Color{ColorWhite}}
	unknown := ManaSource{CardID: "u", Name: "Homebrew Nexus", Unknown: true}
	tundra := ManaSource{CardID: "t", Name: "Tundra", Colors: []Color{ColorWhite, ColorBlue}}
	scrubland := ManaSource{CardID: "s", Name: "Scrubland", Colors: []Color{ColorWhite, ColorBlack}}

	cases := []struct {
		name     string
		selected []ManaSource
		cost     string
		valid    bool
		explain  string
	}{
		{"exact payment", []ManaSource{dual, island}, "{U}{B}", true, "Selection pays the full cost"},
		{"dual kept for black", []ManaSource{dual, island, plains}, "{1}{U}{B}", true, "Selection pays the full cost"},
		{"missing colour reported first", []ManaSource{plains, unknown}, "{1}{B}", false, "Selected lands are missing 1 black mana"},
		{"short on generic", []ManaSource{island}, "{2}{U}", false, "Selected lands are short 2 generic mana"},
		{"unknown pays generic", []ManaSource{island, unknown}, "{1}{U}", true, "Selection pays the full cost"},
		{"duals reassigned", []ManaSource{tundra, scrubland}, "{W}{U}", true, "Selection pays the full cost"},
		{"duals in either order", []ManaSource{scrubland, tundra}, "{W}{U}", true, "Selection pays the full cost"},
		{"duals cover three colours", []ManaSource{tundra, scrubland, dual}, "{W}{U}{B}", true, "Selection pays the full cost"},
		{"duals cannot share", []ManaSource{tundra, scrubland}, "{W}{U}{B}", false, "Selected lands are missing 1 black mana"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateManaSelection(tc.selected, ParseManaCost(tc.cost))
			assert.Equal(t, tc.valid, result.Valid)
			assert.Equal(t, tc.explain, result.Explanation)
		})
	}

	over := ValidateManaSelection([]ManaSource{island, plains, unknown}, ParseManaCost("{U}"))
	assert.True(t, over.Valid)
	assert.Equal(t, 2, over.Excess)
}
