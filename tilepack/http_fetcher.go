package tilepack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/nidhoggr/tilefetch/logger"
)

type FetcherOptions struct {
	URLTemplate string
	Format      string
	UserAgent   string
	Referer     string
	Timeout     time.Duration
	Outputter   TileOutputter
	Logger      logger.Logger

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Fetcher downloads single tiles from an XYZ tile server into an outputter.
type Fetcher struct {
	httpClient  *http.Client
	urlTemplate string
	format      string
	userAgent   string
	referer     string
	outputter   TileOutputter
	logger      logger.Logger
}

func NewFetcher(opts *FetcherOptions) (*Fetcher, error) {
	if opts.URLTemplate == "" {
		return nil, errors.New("URL template is required")
	}
	if opts.UserAgent == "" {
		return nil, errors.New("a User-Agent identifying the application is required")
	}
	if opts.Outputter == nil {
		return nil, errors.New("outputter is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Configure the HTTP client with a timeout and a small connection pool
		httpClient = &http.Client{}
		httpClient.Timeout = opts.Timeout
		httpClient.Transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	return &Fetcher{
		httpClient:  httpClient,
		urlTemplate: opts.URLTemplate,
		format:      opts.Format,
		userAgent:   opts.UserAgent,
		referer:     opts.Referer,
		outputter:   opts.Outputter,
		logger:      l,
	}, nil
}

// TileURL expands {z}, {x}, {y} and {ext} in the URL template.
func (f *Fetcher) TileURL(tile maptile.Tile) string {
	return strings.NewReplacer(
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(tile.Y), 10),
		"{z}", strconv.FormatUint(uint64(tile.Z), 10),
		"{ext}", f.format).Replace(f.urlTemplate)
}

// FetchTile makes sure tile is present in the outputter. A tile that is
// already stored is reported as OutcomeCached without touching the network.
// Every failure is reported in the result; FetchTile never panics on a bad
// response and the caller decides how to continue.
func (f *Fetcher) FetchTile(ctx context.Context, tile maptile.Tile) *TileResult {
	result := &TileResult{
		Tile: tile,
		URL:  f.TileURL(tile),
	}

	exists, err := f.outputter.Has(tile)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("couldn't check output for %v: %w", tile, err)
		return result
	}
	if exists {
		result.Outcome = OutcomeCached
		return result
	}

	start := time.Now()
	data, err := f.get(ctx, result.URL)
	result.Elapsed = time.Since(start)

	switch {
	case errors.Is(err, ErrRateLimited):
		result.Outcome = OutcomeRateLimited
		result.Err = err
		return result
	case err != nil:
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}

	if err := f.outputter.Save(tile, data); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("couldn't save tile %v: %w", tile, err)
		return result
	}

	result.Outcome = OutcomeFetched
	result.Bytes = len(data)
	return result
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create HTTP request: %w", err)
	}

	// Required by the OpenStreetMap tile usage policy
	httpReq.Header.Set("User-Agent", f.userAgent)
	if f.referer != "" {
		httpReq.Header.Set("Referer", f.referer)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error on HTTP request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("GET %s: %w", url, ErrRateLimited)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error copying bytes from HTTP response: %w", err)
	}

	return body, nil
}
