package stocks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockviz/internal/finnhub"
)

// fakeFetcher serves canned payloads and counts upstream calls.
type fakeFetcher struct {
	mu          sync.Mutex
	quoteCalls  int32
	failSymbols map[string]bool
	results     []finnhub.SearchResult
	delay       time.Duration
}

func (f *fakeFetcher) Quote(ctx context.Context, symbol string) (finnhub.QuotePayload, error) {
	atomic.AddInt32(&f.quoteCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	fail := f.failSymbols[symbol]
	f.mu.Unlock()
	if fail {
		return finnhub.QuotePayload{}, &finnhub.UpstreamError{URL: "/quote", Status: 404, Err: errors.New("no such symbol")}
	}
	return validQuotePayload(), nil
}

func (f *fakeFetcher) Profile(ctx context.Context, symbol string) (finnhub.ProfilePayload, error) {
	return finnhub.ProfilePayload{Name: symbol + " Inc"}, nil
}

func (f *fakeFetcher) Search(ctx context.Context, keyword string) (finnhub.SearchPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSymbols[keyword] {
		return finnhub.SearchPayload{}, &finnhub.UpstreamError{URL: "/search", Status: 500, Err: errors.New("upstream down")}
	}
	return finnhub.SearchPayload{Count: len(f.results), Result: f.results}, nil
}

func (f *fakeFetcher) calls() int32 { return atomic.LoadInt32(&f.quoteCalls) }

func newTestService(f finnhub.Fetcher, quoteTTL, historyTTL time.Duration) *Service {
	return NewService(f, Options{
		QuoteTTL:         quoteTTL,
		HistoryTTL:       historyTTL,
		CacheMaxEntries:  100,
		BatchConcurrency: 4,
	})
}

func TestGetQuote_SecondCallWithinTTLHitsCache(t *testing.T) {
	f := &fakeFetcher{}
	svc := newTestService(f, time.Minute, time.Minute)

	first, err := svc.GetQuote(t.Context(), "AAPL")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.GetQuote(t.Context(), "AAPL")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if f.calls() != 1 {
		t.Fatalf("want 1 upstream call, got %d", f.calls())
	}
	if first.Timestamp != second.Timestamp {
		t.Fatal("cached quote should be returned unchanged")
	}
}

func TestGetQuote_RefetchesAfterTTL(t *testing.T) {
	f := &fakeFetcher{}
	svc := newTestService(f, 20*time.Millisecond, time.Minute)

	if _, err := svc.GetQuote(t.Context(), "AAPL"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := svc.GetQuote(t.Context(), "AAPL"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if f.calls() != 2 {
		t.Fatalf("want 2 upstream calls after TTL elapsed, got %d", f.calls())
	}
}

func TestGetQuote_NormalizesSymbol(t *testing.T) {
	f := &fakeFetcher{}
	svc := newTestService(f, time.Minute, time.Minute)
	q, err := svc.GetQuote(t.Context(), "  aapl ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Fatalf("want normalized symbol AAPL, got %q", q.Symbol)
	}
	// mixed-case lookups share the cache entry
	if _, err := svc.GetQuote(t.Context(), "aApL"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls() != 1 {
		t.Fatalf("want 1 upstream call across spellings, got %d", f.calls())
	}
}

func TestGetQuote_FailureWrapsSymbol(t *testing.T) {
	f := &fakeFetcher{failSymbols: map[string]bool{"BADSYM": true}}
	svc := newTestService(f, time.Minute, time.Minute)
	_, err := svc.GetQuote(t.Context(), "BADSYM")
	var apiErr *StockAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want StockAPIError, got %v", err)
	}
	if apiErr.Symbol != "BADSYM" {
		t.Fatalf("want symbol in error, got %q", apiErr.Symbol)
	}
	var upstream *finnhub.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("want wrapped upstream cause, got %v", err)
	}
}

func TestGetQuote_ConcurrentMissesCoalesce(t *testing.T) {
	f := &fakeFetcher{delay: 30 * time.Millisecond}
	svc := newTestService(f, time.Minute, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GetQuote(context.Background(), "AAPL"); err != nil {
				t.Errorf("concurrent call: %v", err)
			}
		}()
	}
	wg.Wait()
	if f.calls() != 1 {
		t.Fatalf("concurrent misses should coalesce to 1 upstream call, got %d", f.calls())
	}
}

func TestGetBatchQuotes_PartialFailure(t *testing.T) {
	f := &fakeFetcher{failSymbols: map[string]bool{"BADSYM": true}}
	svc := newTestService(f, time.Minute, time.Minute)

	quotes := svc.GetBatchQuotes(t.Context(), []string{"AAPL", "BADSYM", "MSFT"})
	if len(quotes) != 2 {
		t.Fatalf("want 2 quotes, got %d: %+v", len(quotes), quotes)
	}
	if quotes[0].Symbol != "AAPL" || quotes[1].Symbol != "MSFT" {
		t.Fatalf("result must keep input order, got %+v", quotes)
	}
}

func TestGetHistory_UsesLiveQuoteAsBase(t *testing.T) {
	f := &fakeFetcher{}
	svc := newTestService(f, time.Minute, time.Minute)
	hs, err := svc.GetHistory(t.Context(), "AAPL", "1W")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hs.Data) != 8 {
		t.Fatalf("want 8 points for 1W, got %d", len(hs.Data))
	}
	if !hs.Simulated {
		t.Fatal("history must be labeled simulated")
	}
	// anchored at the live price, not the fallback
	want := Synthesize("AAPL", "1W", decimal.RequireFromString("192.42"), time.Now())
	if !hs.Data[0].Open.Equal(want.Data[0].Open) {
		t.Fatalf("series not anchored at live quote: got %s want %s", hs.Data[0].Open, want.Data[0].Open)
	}
}

func TestGetHistory_FallsBackWhenQuoteUnavailable(t *testing.T) {
	f := &fakeFetcher{failSymbols: map[string]bool{"AAPL": true}}
	svc := newTestService(f, time.Minute, time.Minute)
	hs, err := svc.GetHistory(t.Context(), "AAPL", "1M")
	if err != nil {
		t.Fatalf("quote failure must not fail history: %v", err)
	}
	if len(hs.Data) != 31 {
		t.Fatalf("want 31 points, got %d", len(hs.Data))
	}
	want := Synthesize("AAPL", "1M", defaultBasePrice, time.Now())
	if !hs.Data[0].Open.Equal(want.Data[0].Open) {
		t.Fatalf("series not anchored at default base: got %s want %s", hs.Data[0].Open, want.Data[0].Open)
	}
}

func TestGetHistory_CachesSeries(t *testing.T) {
	f := &fakeFetcher{}
	svc := newTestService(f, time.Minute, time.Minute)
	if _, err := svc.GetHistory(t.Context(), "AAPL", "1M"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := svc.GetHistory(t.Context(), "AAPL", "1M"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if f.calls() != 1 {
		t.Fatalf("cached history should not refetch the quote, got %d calls", f.calls())
	}
	// a different range is a distinct cache entry
	if _, err := svc.GetHistory(t.Context(), "AAPL", "3M"); err != nil {
		t.Fatalf("third call: %v", err)
	}
}

func TestSearchStocks_CapsResults(t *testing.T) {
	results := make([]finnhub.SearchResult, 0, 15)
	for i := 0; i < 15; i++ {
		results = append(results, finnhub.SearchResult{Symbol: "S", Description: "D"})
	}
	f := &fakeFetcher{results: results}
	svc := newTestService(f, time.Minute, time.Minute)
	quotes, err := svc.SearchStocks(t.Context(), "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotes) != 10 {
		t.Fatalf("want results capped at 10, got %d", len(quotes))
	}
}

func TestSearchStocks_FailurePropagates(t *testing.T) {
	f := &fakeFetcher{failSymbols: map[string]bool{"down": true}}
	svc := newTestService(f, time.Minute, time.Minute)
	_, err := svc.SearchStocks(t.Context(), "down")
	var apiErr *StockAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want StockAPIError, got %v", err)
	}
}
