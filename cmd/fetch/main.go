package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "os"
    "time"

    "stockviz/internal/config"
    "stockviz/internal/finnhub"
    "stockviz/internal/finnhub/ratelimit"
    "stockviz/internal/httpx"
    "stockviz/internal/stocks"
)

// fetch is a one-shot CLI: resolve a quote (or synthesized history) for a
// symbol and print it as JSON. Useful for poking the upstream wiring without
// running the server.
func main() {
    var symbol string
    var rangeCode string
    var history bool
    var search string
    var timeout int
    var configPath string

    flag.StringVar(&symbol, "symbol", getenv("SYMBOL", "AAPL"), "ticker symbol")
    flag.StringVar(&rangeCode, "range", "1M", "history range code (1D/1W/1M/3M/1Y)")
    flag.BoolVar(&history, "history", false, "print synthesized history instead of the quote")
    flag.StringVar(&search, "search", "", "search keyword; overrides -symbol when set")
    flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
    flag.Parse()

    cfg, err := config.Load(configPath)
    if err != nil { log.Fatalf("config: %v", err) }
    if timeout != 0 { cfg.Server.RequestTimeoutSec = timeout }
    if cfg.Finnhub.APIKey == "" {
        log.Fatal("FINNHUB_API_KEY not set")
    }

    httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
    fh := finnhub.New(cfg.Finnhub.APIKey,
        finnhub.WithBaseURL(cfg.Finnhub.BaseURL),
        finnhub.WithHTTPClient(httpClient),
    )
    var fetcher finnhub.Fetcher = fh
    if cfg.Finnhub.MaxRequestsPerMinute > 0 {
        rate := float64(cfg.Finnhub.MaxRequestsPerMinute) / 60.0
        burst := cfg.Finnhub.Burst
        if burst <= 0 { burst = 1 }
        fetcher = &ratelimit.TokenBucketFetcher{F: fetcher, TB: ratelimit.NewTokenBucket(rate, burst)}
    }

    svc := stocks.NewService(fetcher, stocks.Options{
        QuoteTTL:         time.Duration(cfg.Cache.QuoteTTLSec) * time.Second,
        HistoryTTL:       time.Duration(cfg.Cache.HistoryTTLSec) * time.Second,
        CacheMaxEntries:  cfg.Cache.MaxEntries,
        BatchConcurrency: cfg.Batch.MaxConcurrency,
    })

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
    defer cancel()

    var out any
    switch {
    case search != "":
        out, err = svc.SearchStocks(ctx, search)
    case history:
        out, err = svc.GetHistory(ctx, symbol, rangeCode)
    default:
        out, err = svc.GetQuote(ctx, symbol)
    }
    if err != nil { log.Fatalf("fetch: %v", err) }

    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    enc.SetEscapeHTML(false)
    _ = enc.Encode(out)
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var x int
        _, _ = fmt.Sscanf(v, "%d", &x)
        if x != 0 { return x }
    }
    return def
}
