package stocks

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"stockviz/internal/cache"
	"stockviz/internal/finnhub"
)

// maxSearchResults caps how many matches a search returns.
const maxSearchResults = 10

// Options configures the cache regions and batch fan-out of a Service.
type Options struct {
	QuoteTTL         time.Duration
	HistoryTTL       time.Duration
	CacheMaxEntries  int
	BatchConcurrency int
}

// Service orchestrates upstream fetches, quote building, history synthesis
// and caching. It is safe for concurrent use by request handlers.
type Service struct {
	fetcher finnhub.Fetcher
	quotes  *cache.Region[Quote]
	history *cache.Region[HistorySeries]

	// sf coalesces concurrent cache-miss fetches for the same symbol so two
	// simultaneous requests cost one upstream round trip.
	sf singleflight.Group

	batchConcurrency int
}

func NewService(fetcher finnhub.Fetcher, opts Options) *Service {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 4
	}
	return &Service{
		fetcher:          fetcher,
		quotes:           cache.New[Quote](opts.QuoteTTL, opts.CacheMaxEntries),
		history:          cache.New[HistorySeries](opts.HistoryTTL, opts.CacheMaxEntries),
		batchConcurrency: opts.BatchConcurrency,
	}
}

// GetQuote returns the current quote for symbol, from cache when fresh. On a
// miss it fetches the quote and company profile upstream, builds the
// normalized record and caches it. Any failure comes back as a
// *StockAPIError naming the symbol.
func (s *Service) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = normalizeSymbol(symbol)
	if q, ok := s.quotes.Get(symbol); ok {
		return q, nil
	}
	v, err, _ := s.sf.Do(symbol, func() (any, error) {
		// Re-check: a coalesced winner may have populated the cache already.
		if q, ok := s.quotes.Get(symbol); ok {
			return q, nil
		}
		qp, err := s.fetcher.Quote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		pp, err := s.fetcher.Profile(ctx, symbol)
		if err != nil {
			return nil, err
		}
		q, err := BuildQuote(symbol, qp, pp, time.Now())
		if err != nil {
			return nil, err
		}
		s.quotes.Put(symbol, q)
		return q, nil
	})
	if err != nil {
		return Quote{}, &StockAPIError{Symbol: symbol, Err: err}
	}
	return v.(Quote), nil
}

// GetHistory returns the synthesized daily series for symbol over rangeCode,
// from cache when fresh. The series is anchored at the live quote price; if
// that quote cannot be fetched the series falls back to a fixed base price
// rather than failing, since this path serves demonstration data.
func (s *Service) GetHistory(ctx context.Context, symbol, rangeCode string) (HistorySeries, error) {
	symbol = normalizeSymbol(symbol)
	key := symbol + "_" + rangeCode
	if hs, ok := s.history.Get(key); ok {
		return hs, nil
	}
	base := defaultBasePrice
	if q, err := s.GetQuote(ctx, symbol); err != nil {
		log.Printf("history: no live price for %s, using default base: %v", symbol, err)
	} else {
		base = q.CurrentPrice
	}
	hs := Synthesize(symbol, rangeCode, base, time.Now())
	s.history.Put(key, hs)
	return hs, nil
}

// SearchStocks looks up symbols matching keyword upstream and returns at
// most maxSearchResults partial quotes (symbol and name only). Results are
// not cached.
func (s *Service) SearchStocks(ctx context.Context, keyword string) ([]Quote, error) {
	sp, err := s.fetcher.Search(ctx, keyword)
	if err != nil {
		return nil, &StockAPIError{Symbol: keyword, Err: err}
	}
	n := len(sp.Result)
	if n > maxSearchResults {
		n = maxSearchResults
	}
	out := make([]Quote, 0, n)
	for _, r := range sp.Result[:n] {
		out = append(out, Quote{Symbol: r.Symbol, Name: r.Description})
	}
	return out, nil
}

// GetBatchQuotes fetches quotes for all symbols with bounded concurrency.
// A failing symbol is logged and omitted; the result keeps the input order
// and the call never fails wholesale.
func (s *Service) GetBatchQuotes(ctx context.Context, symbols []string) []Quote {
	results := make([]*Quote, len(symbols))
	sem := make(chan struct{}, s.batchConcurrency)
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			q, err := s.GetQuote(ctx, sym)
			if err != nil {
				log.Printf("batch: skipping %s: %v", sym, err)
				return
			}
			results[i] = &q
		}(i, sym)
	}
	wg.Wait()

	out := make([]Quote, 0, len(symbols))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
