// Package orders implements the cart and order model behind the voice
// agent's tools: menu validation, per-call carts, checkout with a
// per-phone active-drink limit, and the committed-order store feeding
// the dashboard.
package orders

import "strings"

// Menu. One standard size, no pricing.
var (
	Flavors  = []string{"taro milk tea", "black milk tea"}
	Toppings = []string{"boba", "egg pudding", "crystal agar boba", "vanilla cream"}
	Addons   = []string{"matcha stencil on top"}
)

const (
	// MaxDrinksPerOrder caps a single call's cart.
	MaxDrinksPerOrder = 5

	// MaxActiveDrinksPerPhone caps un-ready drinks across all orders
	// for one phone number.
	MaxActiveDrinksPerPhone = 5
)

var toppingAliases = map[string][]string{
	"boba":              {"boba", "tapioca", "tapioca pearls"},
	"egg pudding":       {"egg pudding", "pudding"},
	"crystal agar boba": {"crystal agar", "agar", "crystal agar boba"},
	"vanilla cream":     {"vanilla cream", "cream", "vanilla foam", "vanilla cold foam", "foam"},
}

var addonAliases = map[string][]string{
	"matcha stencil on top": {
		"matcha stencil", "matcha stencil on top", "matcha",
		"matcha art", "matcha design", "stencil", "matcha stencil top",
	},
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// matchWithAliases resolves a caller-spoken value to a canonical menu
// entry, tolerating partial matches either direction.
func matchWithAliases(value string, canonical []string, aliases map[string][]string) string {
	for _, c := range canonical {
		if value == c {
			return c
		}
	}
	for c, set := range aliases {
		if value == c {
			return c
		}
		for _, a := range set {
			if value == a {
				return c
			}
		}
		for _, a := range set {
			if value != "" && (strings.Contains(a, value) || strings.Contains(value, a)) {
				return c
			}
		}
	}
	for _, c := range canonical {
		if value != "" && (strings.Contains(c, value) || strings.Contains(value, c)) {
			return c
		}
	}
	return ""
}

// MenuSummary returns a spoken-friendly menu overview.
func MenuSummary() map[string]any {
	return map[string]any{
		"summary": "We have Taro Milk Tea and Black Milk Tea. " +
			"Toppings: boba, egg pudding, crystal agar boba, vanilla cream. " +
			"Optional add-on: matcha stencil on top (requires vanilla cream foam).",
		"flavors":  Flavors,
		"toppings": Toppings,
		"addons":   Addons,
	}
}
