package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BigBang142/Tor-Search-MCP/internal/tor"
)

// Fetch errors.
var (
	// ErrNotHTML is returned when the fetched resource is not an HTML
	// page. Binary content is refused rather than dumped as garbage.
	ErrNotHTML = errors.New("fetched resource is not an HTML page")

	// ErrBadStatus is returned for non-2xx responses.
	ErrBadStatus = errors.New("fetch returned a non-success status")
)

// Fetch defaults.
const (
	// DefaultRequestTimeout bounds one page fetch including transfer.
	// Onion services routinely take tens of seconds.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxBodySize caps how much of a page is read.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultMaxTextLength caps extracted text per page in runes.
	DefaultMaxTextLength = 20000

	// DefaultConcurrency bounds parallel fetches in FetchAll. Each
	// fetch holds a Tor stream; more parallelism saturates the circuit
	// rather than speeding anything up.
	DefaultConcurrency = 3

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

// Page is one fetched and text-extracted result page.
type Page struct {
	// URL is the fetched URL.
	URL string `json:"url"`

	// Title is the page title, empty when the page has none.
	Title string `json:"title"`

	// Text is the readable page text, whitespace-collapsed and capped.
	Text string `json:"text"`

	// StatusCode is the HTTP status the page was served with.
	StatusCode int `json:"status_code"`

	// Truncated reports whether Text was cut at the length cap.
	Truncated bool `json:"truncated"`

	// FetchedAt is when the fetch completed.
	FetchedAt time.Time `json:"fetched_at"`
}

// CircuitSource is the slice of the circuit controller the fetcher
// uses.
type CircuitSource interface {
	Acquire(ctx context.Context) (*tor.Circuit, error)
	Rotate(ctx context.Context, c *tor.Circuit) error
	ReportFailure(c *tor.Circuit)
	ReportSuccess(c *tor.Circuit)
}

// ClientFactory produces HTTP clients bound to a circuit.
type ClientFactory interface {
	HTTPClient(circuit *tor.Circuit, timeout time.Duration) *http.Client
}

// Fetcher retrieves pages through Tor. One transport failure earns one
// retry on a fresh circuit; everything else fails immediately.
type Fetcher struct {
	circuits CircuitSource
	clients  ClientFactory

	requestTimeout time.Duration
	maxBodySize    int64
	maxTextLength  int
	concurrency    int
	userAgent      string
	logger         *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRequestTimeout sets the per-page timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.requestTimeout = d
		}
	}
}

// WithMaxBodySize caps page body reads.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithMaxTextLength caps extracted text per page in runes.
func WithMaxTextLength(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxTextLength = n
		}
	}
}

// WithConcurrency bounds parallel fetches in FetchAll.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets the fetcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher over the given circuit source and
// transport.
func NewFetcher(circuits CircuitSource, clients ClientFactory, opts ...Option) *Fetcher {
	f := &Fetcher{
		circuits:       circuits,
		clients:        clients,
		requestTimeout: DefaultRequestTimeout,
		maxBodySize:    DefaultMaxBodySize,
		maxTextLength:  DefaultMaxTextLength,
		concurrency:    DefaultConcurrency,
		userAgent:      defaultUserAgent,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.logger == nil {
		f.logger = slog.Default()
	}

	return f
}

// Fetch retrieves one page and extracts its readable text.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	page, err := f.fetchOnce(ctx, pageURL)
	if err == nil {
		return page, nil
	}

	// A timeout or unreachable target is usually the circuit's fault,
	// not the page's. One retry on a fresh circuit.
	if errors.Is(err, tor.ErrTimeout) || errors.Is(err, tor.ErrTargetUnreachable) {
		f.logger.Warn("fetch failed, retrying on a fresh circuit", "url", pageURL, "error", err)
		return f.fetchOnce(ctx, pageURL)
	}
	return nil, err
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (*Page, error) {
	circuit, err := f.circuits.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	client := f.clients.HTTPClient(circuit, f.requestTimeout)
	resp, err := client.Do(req)
	if err != nil {
		f.circuits.ReportFailure(circuit)
		f.rotate(ctx, circuit)
		return nil, classifyFetchErr(err)
	}
	defer resp.Body.Close() //nolint:errcheck // Body already fully read

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.circuits.ReportFailure(circuit)
		f.rotate(ctx, circuit)
		return nil, classifyFetchErr(err)
	}

	f.circuits.ReportSuccess(circuit)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrBadStatus, pageURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "xml") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	title, text, err := ExtractText(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotHTML, err)
	}
	text, truncated := TruncateText(text, f.maxTextLength)

	return &Page{
		URL:        pageURL,
		Title:      title,
		Text:       text,
		StatusCode: resp.StatusCode,
		Truncated:  truncated,
		FetchedAt:  time.Now(),
	}, nil
}

// FetchAll retrieves several pages with bounded concurrency. The
// returned slice is index-aligned with urls; a failed page leaves a nil
// entry and its error in the errs slice at the same index. FetchAll
// itself only fails when the context does.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]*Page, []error, error) {
	pages := make([]*Page, len(urls))
	errs := make([]error, len(urls))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			page, err := f.Fetch(gctx, u)
			mu.Lock()
			pages[i], errs[i] = page, err
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pages, errs, err
	}
	return pages, errs, ctx.Err()
}

func (f *Fetcher) rotate(ctx context.Context, circuit *tor.Circuit) {
	if err := f.circuits.Rotate(ctx, circuit); err != nil {
		f.logger.Warn("circuit rotation failed", "circuit", circuit.ID, "error", err)
	}
}

// classifyFetchErr maps HTTP client failures onto the transport error
// taxonomy, mirroring how the SOCKS dialer reports its own failures.
func classifyFetchErr(err error) error {
	switch {
	case errors.Is(err, tor.ErrTimeout),
		errors.Is(err, tor.ErrTargetUnreachable),
		errors.Is(err, tor.ErrProxyUnreachable),
		errors.Is(err, tor.ErrAuthRejected),
		errors.Is(err, tor.ErrNotSOCKS5):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", tor.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", tor.ErrTargetUnreachable, err)
}
