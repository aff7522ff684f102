package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"hydra-signals/internal/domain"
)

type Config struct {
	TelegramBotToken string
	TelegramAdminID  int64
	DatabaseURL      string
	RedisURL         string

	SignalAPIURL   string
	APITimeoutSecs int
	APIRetries     int
	Timeframes     []string

	TickersFile          string
	FetchIntervalMinutes int
	FetchDelayMillis     int
	NotifyDelayMillis    int

	FreshnessWindowMins int
	StopWaitSecs        int

	HighConfidenceThreshold float64
	LowConfidenceThreshold  float64
	TrendConflictThreshold  float64
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_ADMIN_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramAdminID = n
		}
	}

	cfg.SignalAPIURL = strings.TrimSpace(os.Getenv("SIGNAL_API_URL"))
	if cfg.SignalAPIURL == "" {
		log.Println("Warning: SIGNAL_API_URL not set, defaulting to http://localhost:8001")
		cfg.SignalAPIURL = "http://localhost:8001"
	}
	cfg.SignalAPIURL = strings.TrimRight(cfg.SignalAPIURL, "/")

	cfg.APITimeoutSecs = 30
	if v := strings.TrimSpace(os.Getenv("API_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.APITimeoutSecs = n
		}
	}

	cfg.APIRetries = 2
	if v := strings.TrimSpace(os.Getenv("API_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.APIRetries = n
		}
	}

	cfg.Timeframes = parseTimeframes(strings.TrimSpace(os.Getenv("TIMEFRAMES")))

	cfg.TickersFile = strings.TrimSpace(os.Getenv("TICKERS_FILE"))
	if cfg.TickersFile == "" {
		cfg.TickersFile = "tickers.txt"
	}

	cfg.FetchIntervalMinutes = 15
	if v := strings.TrimSpace(os.Getenv("FETCH_INTERVAL_MINUTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchIntervalMinutes = n
		}
	}

	cfg.FetchDelayMillis = 100
	if v := strings.TrimSpace(os.Getenv("FETCH_DELAY_MILLIS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.FetchDelayMillis = n
		}
	}

	cfg.NotifyDelayMillis = 100
	if v := strings.TrimSpace(os.Getenv("NOTIFY_DELAY_MILLIS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.NotifyDelayMillis = n
		}
	}

	cfg.FreshnessWindowMins = 30
	if v := strings.TrimSpace(os.Getenv("FRESHNESS_WINDOW_MINS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FreshnessWindowMins = n
		}
	}

	cfg.StopWaitSecs = 240
	if v := strings.TrimSpace(os.Getenv("STOP_WAIT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StopWaitSecs = n
		}
	}

	cfg.HighConfidenceThreshold = 90
	if v := strings.TrimSpace(os.Getenv("HIGH_CONFIDENCE_THRESHOLD")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n <= 100 {
			cfg.HighConfidenceThreshold = n
		}
	}

	cfg.LowConfidenceThreshold = 50
	if v := strings.TrimSpace(os.Getenv("LOW_CONFIDENCE_THRESHOLD")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n <= 100 {
			cfg.LowConfidenceThreshold = n
		}
	}

	cfg.TrendConflictThreshold = 95
	if v := strings.TrimSpace(os.Getenv("TREND_CONFLICT_THRESHOLD")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n <= 100 {
			cfg.TrendConflictThreshold = n
		}
	}

	return cfg
}

func parseTimeframes(raw string) []string {
	if raw == "" {
		return append([]string(nil), domain.SupportedTimeframes...)
	}

	supported := make(map[string]struct{}, len(domain.SupportedTimeframes))
	for _, tf := range domain.SupportedTimeframes {
		supported[tf] = struct{}{}
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		tf := strings.TrimSpace(part)
		if tf == "" {
			continue
		}
		if _, ok := supported[tf]; !ok {
			log.Printf("Warning: unsupported timeframe %q ignored", tf)
			continue
		}
		if _, ok := seen[tf]; ok {
			continue
		}
		seen[tf] = struct{}{}
		out = append(out, tf)
	}
	if len(out) == 0 {
		return append([]string(nil), domain.SupportedTimeframes...)
	}
	return out
}
