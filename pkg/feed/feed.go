package feed

import (
	"context"
	"log/slog"
	"time"
)

// Options configures a feed Client.
type Options struct {
	// Mirrors overrides the default mirror list; ignored when Attempts is set.
	Mirrors []string
	// Attempts overrides the whole (mirror, strategy) order, mainly for tests.
	Attempts []Attempt
	Timeout  time.Duration
	// Logger receives structured pipeline events (attempt failures, fallback
	// engagement, skip counts). Nil discards them.
	Logger *slog.Logger
}

// Client runs the full refresh pipeline: fetch, extract, decode, repair,
// parse, normalize. One Refresh produces one immutable dataset; holding and
// swapping datasets is the caller's concern.
type Client struct {
	fetcher *Fetcher
	parser  *Parser
	log     *slog.Logger
}

// New creates a feed Client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	attempts := opts.Attempts
	if len(attempts) == 0 {
		attempts = DefaultAttempts(opts.Mirrors)
	}
	return &Client{
		fetcher: NewFetcher(FetcherOptions{
			Attempts: attempts,
			Timeout:  opts.Timeout,
			Logger:   opts.Logger,
		}),
		parser: NewParser(opts.Logger),
		log:    opts.Logger,
	}
}

// Refresh fetches and parses the current feed. On success the returned
// slice is a complete snapshot; on error no partial data is returned.
func (c *Client) Refresh(ctx context.Context) ([]Station, error) {
	payload, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return c.Decode(payload)
}

// Decode runs every pipeline stage after the network fetch. Exposed so
// callers can replay an archive they already hold.
func (c *Client) Decode(payload []byte) ([]Station, error) {
	raw, err := ExtractMarkup(payload)
	if err != nil {
		return nil, err
	}

	text := Repair(DecodeText(raw))

	stations, err := c.parser.Parse(text)
	if err != nil {
		c.log.Warn("structural parse failed, using fallback parser", "error", err)
		stations = ParseFallback(text, c.log)
	}

	if len(stations) == 0 {
		return nil, &FormatError{Reason: "no stations could be extracted"}
	}

	c.log.Info("feed decoded", "stations", len(stations))
	return stations, nil
}
