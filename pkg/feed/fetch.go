package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 30 * time.Second

	userAgent    = "carbudb/1.0 (+https://github.com/carbudb/carbudb)"
	acceptHeader = "application/zip, application/octet-stream, */*"
)

// DefaultMirrors are the known bases serving the zipped feed, in priority
// order.
var DefaultMirrors = []string{
	"https://donnees.roulez-eco.fr/opendata/instantane",
	"https://donnees.roulez-eco.fr/opendata/jour",
}

// Strategy describes one way of reaching a mirror: either directly, or
// through a public passthrough relay that embeds the target URL as a query
// parameter.
type Strategy struct {
	Name string
	Wrap func(target string) string
}

// DirectStrategy fetches the mirror URL as-is.
func DirectStrategy() Strategy {
	return Strategy{
		Name: "direct",
		Wrap: func(target string) string { return target },
	}
}

// RelayStrategies returns the passthrough relays tried after direct access
// fails, in priority order.
func RelayStrategies() []Strategy {
	return []Strategy{
		{
			Name: "corsproxy",
			Wrap: func(target string) string {
				return "https://corsproxy.io/?url=" + url.QueryEscape(target)
			},
		},
		{
			Name: "allorigins",
			Wrap: func(target string) string {
				return "https://api.allorigins.win/raw?url=" + url.QueryEscape(target)
			},
		},
		{
			Name: "codetabs",
			Wrap: func(target string) string {
				return "https://api.codetabs.com/v1/proxy?quest=" + url.QueryEscape(target)
			},
		},
	}
}

// Attempt is one (mirror, strategy) pair in the fetch order.
type Attempt struct {
	Endpoint string
	Strategy Strategy
}

// DefaultAttempts builds the fetch order for the given mirrors: every mirror
// directly first, then every mirror through each relay.
func DefaultAttempts(mirrors []string) []Attempt {
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	var attempts []Attempt
	for _, m := range mirrors {
		attempts = append(attempts, Attempt{Endpoint: m, Strategy: DirectStrategy()})
	}
	for _, relay := range RelayStrategies() {
		for _, m := range mirrors {
			attempts = append(attempts, Attempt{Endpoint: m, Strategy: relay})
		}
	}
	return attempts
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Attempts []Attempt
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Fetcher downloads the raw feed archive, walking the attempt list
// sequentially until one attempt yields a non-empty zip payload.
type Fetcher struct {
	client   *http.Client
	attempts []Attempt
	timeout  time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a Fetcher with the given options, falling back to the
// default attempt list and timeout.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if len(opts.Attempts) == 0 {
		opts.Attempts = DefaultAttempts(nil)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		attempts: opts.Attempts,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns a per-host politeness limiter, creating it on first use.
func (f *Fetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(5, 5)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch tries every attempt in order and returns the first non-empty payload
// carrying the zip signature. Attempts are sequential, each bounded by the
// per-attempt timeout; the attempt list itself is the only redundancy
// mechanism, there is no backoff.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	var lastErr error
	for _, attempt := range f.attempts {
		target := attempt.Strategy.Wrap(attempt.Endpoint)

		payload, err := f.fetchOne(ctx, target)
		if err != nil {
			lastErr = err
			f.log.Warn("fetch attempt failed",
				"endpoint", attempt.Endpoint,
				"strategy", attempt.Strategy.Name,
				"error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		f.log.Debug("fetch attempt succeeded",
			"endpoint", attempt.Endpoint,
			"strategy", attempt.Strategy.Name,
			"bytes", len(payload))
		return payload, nil
	}

	return nil, &FetchError{Attempts: len(f.attempts), Last: lastErr}
}

func (f *Fetcher) fetchOne(ctx context.Context, target string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.limiterFor(target).Wait(attemptCtx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("unexpected status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}

	if len(payload) == 0 {
		return nil, eris.New("empty response body")
	}
	if !looksLikeArchive(payload) {
		return nil, fmt.Errorf("response is not a zip archive (%d bytes, prefix %q)", len(payload), previewBytes(payload))
	}

	return payload, nil
}

func previewBytes(b []byte) string {
	if len(b) > 4 {
		b = b[:4]
	}
	return string(b)
}
