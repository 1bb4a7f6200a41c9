// Package categorize assigns spending categories to stored transactions
// with an LLM.
package categorize

// Category names of the fixed taxonomy.
const (
	Dining         = "Dining"
	Transportation = "Transportation"
	Utilities      = "Utilities"
	Entertainment  = "Entertainment"
	Shopping       = "Shopping"
	Healthcare     = "Healthcare"
	Housing        = "Housing"
	Income         = "Income"
	Savings        = "Savings"
	Other          = "Other"
)

// Categories lists the taxonomy in prompt order.
var Categories = []string{
	Dining, Transportation, Utilities, Entertainment, Shopping,
	Healthcare, Housing, Income, Savings, Other,
}

var definitions = map[string]string{
	Dining:         "Restaurants, cafes, food delivery, bars",
	Transportation: "Fuel, public transit, ride-sharing, parking, car maintenance",
	Utilities:      "Electricity, water, gas, internet, phone bills",
	Entertainment:  "Movies, concerts, streaming services, games, hobbies",
	Shopping:       "Retail purchases, online shopping, clothing, electronics",
	Healthcare:     "Doctor visits, pharmacy, medical bills, insurance",
	Housing:        "Rent, mortgage, property tax, home maintenance",
	Income:         "Salary, wages, bonuses, refunds, transfers in",
	Savings:        "Transfers to savings, investments",
	Other:          "Anything that doesn't fit the above categories",
}

// IsValid reports whether name is one of the taxonomy categories.
func IsValid(name string) bool {
	_, ok := definitions[name]
	return ok
}
