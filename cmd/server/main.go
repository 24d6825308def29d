package main

import (
    "context"
    "encoding/json"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"
    "compress/gzip"
    "io"
    "sync"

    "stockviz/internal/config"
    "stockviz/internal/finnhub"
    "stockviz/internal/finnhub/ratelimit"
    "stockviz/internal/httpx"
    "stockviz/internal/stocks"
)

// stockService is the slice of the stock data service the handlers consume.
type stockService interface {
    GetQuote(ctx context.Context, symbol string) (stocks.Quote, error)
    GetHistory(ctx context.Context, symbol, rangeCode string) (stocks.HistorySeries, error)
    SearchStocks(ctx context.Context, keyword string) ([]stocks.Quote, error)
    GetBatchQuotes(ctx context.Context, symbols []string) []stocks.Quote
}

func main() {
    // Config
    cfgPath := os.Getenv("CONFIG_FILE")
    cfg, err := config.Load(cfgPath)
    if err != nil { log.Fatalf("config: %v", err) }
    port := cfg.Server.Port
    timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second

    if cfg.Finnhub.APIKey == "" {
        log.Println("warning: FINNHUB_API_KEY not set; upstream calls will be rejected")
    }

    httpClient := httpx.New(timeout)

    fh := finnhub.New(cfg.Finnhub.APIKey,
        finnhub.WithBaseURL(cfg.Finnhub.BaseURL),
        finnhub.WithHTTPClient(httpClient),
    )
    var fetcher finnhub.Fetcher = fh
    // Prefer token bucket with burst if RPM is set, otherwise use min-interval
    if cfg.Finnhub.MaxRequestsPerMinute > 0 {
        rate := float64(cfg.Finnhub.MaxRequestsPerMinute) / 60.0
        burst := cfg.Finnhub.Burst
        if burst <= 0 { burst = 1 }
        fetcher = &ratelimit.TokenBucketFetcher{F: fetcher, TB: ratelimit.NewTokenBucket(rate, burst)}
    } else if cfg.Finnhub.MinRequestIntervalSec > 0 {
        interval := time.Duration(cfg.Finnhub.MinRequestIntervalSec) * time.Second
        fetcher = &ratelimit.MinIntervalFetcher{F: fetcher, Interval: interval}
    }

    svc := stocks.NewService(fetcher, stocks.Options{
        QuoteTTL:         time.Duration(cfg.Cache.QuoteTTLSec) * time.Second,
        HistoryTTL:       time.Duration(cfg.Cache.HistoryTTLSec) * time.Second,
        CacheMaxEntries:  cfg.Cache.MaxEntries,
        BatchConcurrency: cfg.Batch.MaxConcurrency,
    })

    mux := http.NewServeMux()
    mux.HandleFunc("GET /api/stocks/health", func(w http.ResponseWriter, r *http.Request) {
        writeSuccess(w, "Service is running")
    })
    mux.HandleFunc("GET /api/stocks/quote/{symbol}", func(w http.ResponseWriter, r *http.Request) {
        handleQuote(w, r, svc, timeout)
    })
    mux.HandleFunc("GET /api/stocks/history/{symbol}", func(w http.ResponseWriter, r *http.Request) {
        handleHistory(w, r, svc, timeout)
    })
    mux.HandleFunc("GET /api/stocks/search", func(w http.ResponseWriter, r *http.Request) {
        handleSearch(w, r, svc, timeout)
    })
    mux.HandleFunc("POST /api/stocks/batch", func(w http.ResponseWriter, r *http.Request) {
        handleBatch(w, r, svc, timeout, cfg.Batch.MaxSymbols)
    })

    srv := &http.Server{
        Addr:              ":" + port,
        Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      20 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        log.Printf("server listening on :%s", port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatalf("server: %v", err)
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}

func handleQuote(w http.ResponseWriter, r *http.Request, svc stockService, timeout time.Duration) {
    symbol := strings.TrimSpace(r.PathValue("symbol"))
    if symbol == "" {
        writeError(w, http.StatusBadRequest, "missing symbol")
        return
    }
    ctx, cancel := context.WithTimeout(r.Context(), timeout)
    defer cancel()
    q, err := svc.GetQuote(ctx, strings.ToUpper(symbol))
    if err != nil {
        writeServiceError(w, err)
        return
    }
    writeSuccess(w, q)
}

func handleHistory(w http.ResponseWriter, r *http.Request, svc stockService, timeout time.Duration) {
    symbol := strings.TrimSpace(r.PathValue("symbol"))
    if symbol == "" {
        writeError(w, http.StatusBadRequest, "missing symbol")
        return
    }
    rangeCode := r.URL.Query().Get("range")
    if rangeCode == "" { rangeCode = "1M" }
    ctx, cancel := context.WithTimeout(r.Context(), timeout)
    defer cancel()
    hs, err := svc.GetHistory(ctx, strings.ToUpper(symbol), rangeCode)
    if err != nil {
        writeServiceError(w, err)
        return
    }
    writeSuccess(w, hs)
}

func handleSearch(w http.ResponseWriter, r *http.Request, svc stockService, timeout time.Duration) {
    keyword := strings.TrimSpace(r.URL.Query().Get("q"))
    if keyword == "" {
        writeError(w, http.StatusBadRequest, "missing q query param")
        return
    }
    ctx, cancel := context.WithTimeout(r.Context(), timeout)
    defer cancel()
    results, err := svc.SearchStocks(ctx, keyword)
    if err != nil {
        writeServiceError(w, err)
        return
    }
    writeSuccess(w, results)
}

func handleBatch(w http.ResponseWriter, r *http.Request, svc stockService, timeout time.Duration, maxSymbols int) {
    var symbols []string
    if err := json.NewDecoder(r.Body).Decode(&symbols); err != nil {
        writeError(w, http.StatusBadRequest, "invalid JSON body")
        return
    }
    if len(symbols) == 0 {
        writeError(w, http.StatusBadRequest, "symbols cannot be empty")
        return
    }
    if maxSymbols > 0 && len(symbols) > maxSymbols {
        writeError(w, http.StatusBadRequest, "too many symbols")
        return
    }
    for i, s := range symbols { symbols[i] = strings.ToUpper(strings.TrimSpace(s)) }
    ctx, cancel := context.WithTimeout(r.Context(), timeout)
    defer cancel()
    writeSuccess(w, svc.GetBatchQuotes(ctx, symbols))
}

// envelope is the uniform response wrapper consumed by the frontend.
type envelope struct {
    Success bool    `json:"success"`
    Data    any     `json:"data"`
    Error   *string `json:"error"`
}

func writeSuccess(w http.ResponseWriter, data any) {
    w.WriteHeader(http.StatusOK)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &msg})
}

// writeServiceError maps service failures to HTTP statuses: upstream
// (wrapped) failures become 502, anything unclassified 500.
func writeServiceError(w http.ResponseWriter, err error) {
    var apiErr *stocks.StockAPIError
    if errors.As(err, &apiErr) {
        writeError(w, http.StatusBadGateway, "Stock API error: "+apiErr.Error())
        return
    }
    writeError(w, http.StatusInternalServerError, "internal server error")
}

func withJSONHeaders(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json; charset=utf-8")
        // Basic CORS for browser usage; adjust as needed.
        w.Header().Set("Access-Control-Allow-Origin", "*")
        w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
        w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
    var gzPool = sync.Pool{New: func() any {
        // Prefer best speed to reduce CPU usage since payloads are JSON
        w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
        return w
    }}
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
        next.ServeHTTP(gw, r)
    })
}

type gzipResponseWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
    return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
    const maxBody = 1 << 20 // 1MB
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodPost && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                http.Error(w, "internal server error", http.StatusInternalServerError)
            }
        }()
        next.ServeHTTP(w, r)
    })
}
