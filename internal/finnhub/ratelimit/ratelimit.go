package ratelimit

import (
    "context"
    "sync"
    "time"

    "stockviz/internal/finnhub"
)

// TokenBucketFetcher wraps a Fetcher and gates every upstream call using a
// token bucket. The Finnhub free tier enforces a per-minute request budget,
// so the gate sits in front of all three endpoints.
type TokenBucketFetcher struct {
    F  finnhub.Fetcher
    TB *TokenBucket
}

func (t *TokenBucketFetcher) Quote(ctx context.Context, symbol string) (finnhub.QuotePayload, error) {
    if t.TB != nil {
        if err := t.TB.wait(ctx); err != nil { return finnhub.QuotePayload{}, err }
    }
    return t.F.Quote(ctx, symbol)
}

func (t *TokenBucketFetcher) Profile(ctx context.Context, symbol string) (finnhub.ProfilePayload, error) {
    if t.TB != nil {
        if err := t.TB.wait(ctx); err != nil { return finnhub.ProfilePayload{}, err }
    }
    return t.F.Profile(ctx, symbol)
}

func (t *TokenBucketFetcher) Search(ctx context.Context, keyword string) (finnhub.SearchPayload, error) {
    if t.TB != nil {
        if err := t.TB.wait(ctx); err != nil { return finnhub.SearchPayload{}, err }
    }
    return t.F.Search(ctx, keyword)
}

// MinIntervalFetcher wraps a Fetcher and enforces a minimum time between calls.
// Concurrent calls will wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinIntervalFetcher struct {
    F        finnhub.Fetcher
    Interval time.Duration
    mu       sync.Mutex
    last     time.Time
}

func (m *MinIntervalFetcher) gate(ctx context.Context) error {
    if m.Interval <= 0 { return nil }
    m.mu.Lock()
    wait := time.Until(m.last.Add(m.Interval))
    m.mu.Unlock()
    if wait > 0 {
        t := time.NewTimer(wait)
        defer t.Stop()
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-t.C:
        }
    }
    return nil
}

func (m *MinIntervalFetcher) mark() {
    if m.Interval <= 0 { return }
    m.mu.Lock()
    m.last = time.Now()
    m.mu.Unlock()
}

func (m *MinIntervalFetcher) Quote(ctx context.Context, symbol string) (finnhub.QuotePayload, error) {
    if err := m.gate(ctx); err != nil { return finnhub.QuotePayload{}, err }
    defer m.mark()
    return m.F.Quote(ctx, symbol)
}

func (m *MinIntervalFetcher) Profile(ctx context.Context, symbol string) (finnhub.ProfilePayload, error) {
    if err := m.gate(ctx); err != nil { return finnhub.ProfilePayload{}, err }
    defer m.mark()
    return m.F.Profile(ctx, symbol)
}

func (m *MinIntervalFetcher) Search(ctx context.Context, keyword string) (finnhub.SearchPayload, error) {
    if err := m.gate(ctx); err != nil { return finnhub.SearchPayload{}, err }
    defer m.mark()
    return m.F.Search(ctx, keyword)
}
