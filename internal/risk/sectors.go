package risk

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"smartbot/internal/market"
)

// Sectors maps a sector name to its member tickers (base symbols).
type Sectors map[string][]string

func DefaultSectors() Sectors {
	return Sectors{
		"TECH":      {"AAPL", "MSFT", "GOOGL", "META", "NVDA", "AMD", "NFLX"},
		"AUTO":      {"TSLA", "RIVN", "LCID"},
		"ECOMMERCE": {"AMZN", "SHOP", "BABA"},
		"FINTECH":   {"COIN", "SQ", "SOFI", "HOOD"},
		"CRYPTO":    {"MARA", "RIOT", "MSTR"},
		"GAMING":    {"RBLX", "DKNG"},
		"SERVICES":  {"PLTR", "ZM", "SNAP", "UPST", "ROKU", "DASH", "CLOV", "WISH"},
	}
}

// Of returns the sector of ticker. Broker suffixes are ignored.
func (s Sectors) Of(ticker string) (string, bool) {
	base := market.BaseTicker(ticker)
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, t := range s[name] {
			if market.BaseTicker(t) == base {
				return name, true
			}
		}
	}
	return "", false
}

// LoadSectors reads a YAML document of the form `SECTOR: [TICKER, ...]`.
func LoadSectors(path string) (Sectors, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sectors: %w", err)
	}
	var out Sectors
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse sectors %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sectors file %s is empty", path)
	}
	return out, nil
}
