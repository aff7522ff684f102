package tickers

import (
	"fmt"
	"os"
	"regexp"
)

var (
	symbolsArrayPattern = regexp.MustCompile(`(?s)COIN_SYMBOLS\s*=\s*\[(.*?)\]`)
	usdtPairPattern     = regexp.MustCompile(`['"]([A-Z0-9]+USDT)['"]`)
	validTickerPattern  = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
)

// Load reads the instrument list from a COIN_SYMBOLS definition file. Pairs
// are quoted *USDT symbols; the quote suffix is stripped so the rest of the
// system works with base tickers. Order is preserved, duplicates dropped.
func Load(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tickers file: %w", err)
	}

	arr := symbolsArrayPattern.FindSubmatch(content)
	if arr == nil {
		return nil, fmt.Errorf("no COIN_SYMBOLS array in %s", path)
	}

	matches := usdtPairPattern.FindAllSubmatch(arr[1], -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no *USDT pairs in %s", path)
	}

	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		base := string(m[1][:len(m[1])-len("USDT")])
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
	}
	return out, nil
}

// Valid reports whether a ticker looks like a base symbol the upstream API
// would accept.
func Valid(ticker string) bool {
	return validTickerPattern.MatchString(ticker)
}
