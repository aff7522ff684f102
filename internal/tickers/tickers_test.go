package tickers

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTickersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickers.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write tickers file: %v", err)
	}
	return path
}

func TestLoadStripsQuoteSuffixAndPreservesOrder(t *testing.T) {
	path := writeTickersFile(t, `
# watchlist
COIN_SYMBOLS = [
    "BTCUSDT",
    "ETHUSDT",
    'AVAXUSDT',
]
`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"BTC", "ETH", "AVAX"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLoadDropsDuplicates(t *testing.T) {
	path := writeTickersFile(t, `COIN_SYMBOLS = ["BTCUSDT", "BTCUSDT", "ETHUSDT"]`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Fatalf("unexpected tickers: %v", got)
	}
}

func TestLoadIgnoresNonUSDTPairs(t *testing.T) {
	path := writeTickersFile(t, `COIN_SYMBOLS = ["BTCUSDT", "ETHBTC"]`)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "BTC" {
		t.Fatalf("unexpected tickers: %v", got)
	}
}

func TestLoadErrorsWithoutSymbolsArray(t *testing.T) {
	path := writeTickersFile(t, `WATCHLIST = ["BTCUSDT"]`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when COIN_SYMBOLS is missing")
	}
}

func TestLoadErrorsOnMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"BTC":         true,
		"AVAX":        true,
		"1INCH":       true,
		"btc":         false,
		"B":           false,
		"TOOLONGNAME": false,
		"":            false,
	}
	for ticker, want := range cases {
		if got := Valid(ticker); got != want {
			t.Errorf("Valid(%q) = %v, want %v", ticker, got, want)
		}
	}
}
