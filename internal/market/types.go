package market

// Coin is one record from the markets endpoint. Numeric fields are pointers
// because the provider omits or nulls them for thinly traded assets; the
// formatter degrades them to "N/A" instead of failing.
type Coin struct {
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	CurrentPrice *float64 `json:"current_price"`
	MarketCap    *float64 `json:"market_cap"`
	ChangePct24h *float64 `json:"price_change_percentage_24h"`
}

// Snapshot is one fresh pull of market data. It is never cached.
type Snapshot struct {
	Top10     []Coin
	TopGainer *Coin // nil when the gainer universe came back empty
}

// TopGainer picks the record with the highest 24h percent change.
// A missing change value never wins; an empty universe yields nil.
func TopGainer(universe []Coin) *Coin {
	if len(universe) == 0 {
		return nil
	}
	best := 0
	bestPct := changeOrNegInf(&universe[0])
	for i := 1; i < len(universe); i++ {
		if p := changeOrNegInf(&universe[i]); p > bestPct {
			best = i
			bestPct = p
		}
	}
	return &universe[best]
}

func changeOrNegInf(c *Coin) float64 {
	if c.ChangePct24h == nil {
		return negInf
	}
	return *c.ChangePct24h
}
