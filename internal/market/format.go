package market

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const notAvailable = "N/A"

// Format renders a snapshot as the user-facing report. It is total: missing
// numeric fields render as N/A and an absent gainer gets an explicit line,
// so the scheduled path can always deliver whatever the fetcher returned.
func Format(top10 []Coin, gainer *Coin, currencyLabel string) string {
	lines := make([]string, 0, len(top10)+6)
	lines = append(lines, fmt.Sprintf("Market Snapshot — Top 10 by Market Capitalization (%s)\n", currencyLabel))

	for i, c := range top10 {
		lines = append(lines, fmt.Sprintf("%d. %s (%s) — Price: %s | 24h Change: %s | Market Cap: %s",
			i+1, nameOrUnknown(c.Name), strings.ToUpper(c.Symbol),
			priceText(c.CurrentPrice), changeText(c.ChangePct24h), capText(c.MarketCap)))
	}

	lines = append(lines, "\nTop Gainer (24h) — Highlight\n")
	if gainer != nil {
		lines = append(lines, fmt.Sprintf("%s (%s) — Price: %s | 24h Change: %s",
			nameOrUnknown(gainer.Name), strings.ToUpper(gainer.Symbol),
			priceText(gainer.CurrentPrice), changeText(gainer.ChangePct24h)))
	} else {
		lines = append(lines, "No gainer data is available at the moment.")
	}

	lines = append(lines, "\nPrices are indicative and may change rapidly due to live market conditions.")
	return strings.Join(lines, "\n")
}

func nameOrUnknown(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown"
	}
	return name
}

func priceText(p *float64) string {
	if p == nil {
		return notAvailable
	}
	return "$" + humanize.FormatFloat("#,###.####", *p)
}

func changeText(c *float64) string {
	if c == nil {
		return notAvailable
	}
	return fmt.Sprintf("%+.2f%%", *c)
}

func capText(m *float64) string {
	if m == nil {
		return notAvailable
	}
	return "$" + humanize.FormatFloat("#,###.", *m)
}
