package tier

// Tier is a discrete loyalty level derived purely from a points balance.
type Tier string

const (
	Bronze   Tier = "BRONZE"
	Silver   Tier = "SILVER"
	Gold     Tier = "GOLD"
	Platinum Tier = "PLATINUM"
	Diamond  Tier = "DIAMOND"
)

func (t Tier) String() string {
	return string(t)
}

type level struct {
	MinBalance int64
	Tier       Tier
	Discount   int
}

// levels is ordered ascending by MinBalance. Thresholds live only here;
// call sites never hardcode them.
var levels = []level{
	{MinBalance: 0, Tier: Bronze, Discount: 0},
	{MinBalance: 100, Tier: Silver, Discount: 5},
	{MinBalance: 500, Tier: Gold, Discount: 10},
	{MinBalance: 1000, Tier: Platinum, Discount: 15},
	{MinBalance: 5000, Tier: Diamond, Discount: 20},
}

// Of maps a balance to its tier. Negative balances never occur in the
// ledger but map to the lowest tier anyway.
func Of(balance int64) Tier {
	current := levels[0].Tier
	for _, l := range levels {
		if balance < l.MinBalance {
			break
		}
		current = l.Tier
	}
	return current
}

// DiscountOf maps a tier to its discount percentage. Unknown tiers get the
// base discount.
func DiscountOf(t Tier) int {
	for _, l := range levels {
		if l.Tier == t {
			return l.Discount
		}
	}
	return levels[0].Discount
}

// Progress returns the next tier above the given balance and how many points
// are missing to reach it. At the top tier it returns ("", 0).
func Progress(balance int64) (Tier, int64) {
	for _, l := range levels {
		if balance < l.MinBalance {
			return l.Tier, l.MinBalance - balance
		}
	}
	return "", 0
}
