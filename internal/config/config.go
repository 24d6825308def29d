package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"

    "github.com/joho/godotenv"
)

type Server struct {
    Port              string `json:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Finnhub struct {
    APIKey                string `json:"api_key"`
    BaseURL               string `json:"base_url"`
    MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
    MinRequestIntervalSec int    `json:"min_request_interval_sec"`
    Burst                 int    `json:"burst"`
}

type Cache struct {
    QuoteTTLSec   int `json:"quote_ttl_sec"`
    HistoryTTLSec int `json:"history_ttl_sec"`
    MaxEntries    int `json:"max_entries"`
}

type Batch struct {
    MaxConcurrency int `json:"max_concurrency"`
    MaxSymbols     int `json:"max_symbols"`
}

type Config struct {
    Server  Server  `json:"server"`
    Finnhub Finnhub `json:"finnhub"`
    Cache   Cache   `json:"cache"`
    Batch   Batch   `json:"batch"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 10},
        Finnhub: Finnhub{
            BaseURL:              "https://finnhub.io/api/v1",
            MaxRequestsPerMinute: 50, // free tier allows 60/min; leave headroom
            Burst:                5,
        },
        Cache: Cache{
            QuoteTTLSec:   60,
            HistoryTTLSec: 300,
            MaxEntries:    1000,
        },
        Batch: Batch{MaxConcurrency: 4, MaxSymbols: 50},
    }
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. A .env file (if present) is loaded first, then
// environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
    _ = godotenv.Load()
    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("FINNHUB_API_KEY"); v != "" { cfg.Finnhub.APIKey = v }
    if v := os.Getenv("FINNHUB_BASE_URL"); v != "" { cfg.Finnhub.BaseURL = v }
    if v := os.Getenv("FINNHUB_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Finnhub.MaxRequestsPerMinute = x }
    }
    if v := os.Getenv("FINNHUB_MIN_INTERVAL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Finnhub.MinRequestIntervalSec = x }
    }
    if v := os.Getenv("FINNHUB_BURST"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Finnhub.Burst = x }
    }
    if v := os.Getenv("QUOTE_CACHE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Cache.QuoteTTLSec = x }
    }
    if v := os.Getenv("HISTORY_CACHE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Cache.HistoryTTLSec = x }
    }
    if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Cache.MaxEntries = x }
    }
    if v := os.Getenv("BATCH_MAX_CONCURRENCY"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Batch.MaxConcurrency = x }
    }
    if v := os.Getenv("BATCH_MAX_SYMBOLS"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Batch.MaxSymbols = x }
    }
}
