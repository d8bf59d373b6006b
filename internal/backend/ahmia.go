package backend

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// DefaultAhmiaBaseURL is Ahmia's own onion address. Ahmia indexes
// hidden services, so querying it over its onion endpoint keeps the
// whole exchange inside the Tor network.
const DefaultAhmiaBaseURL = "http://juhanurmihxlp77nkq76byazcldy2hlmovfu2epvl5ankdibsot4csyd.onion"

// Ahmia scrapes the Ahmia hidden-service search index. Results point at
// .onion sites, complementing the clearnet engines.
type Ahmia struct {
	// baseURL is the endpoint root, either the onion address (default)
	// or Ahmia's clearnet mirror.
	baseURL string
}

// AhmiaOption configures the adapter.
type AhmiaOption func(*Ahmia)

// WithAhmiaBaseURL overrides the endpoint, e.g. with the clearnet mirror.
func WithAhmiaBaseURL(baseURL string) AhmiaOption {
	return func(a *Ahmia) {
		a.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewAhmia creates the Ahmia adapter.
func NewAhmia(opts ...AhmiaOption) *Ahmia {
	a := &Ahmia{
		baseURL: DefaultAhmiaBaseURL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind implements Adapter.
func (a *Ahmia) Kind() model.BackendKind { return model.KindAhmia }

// Host implements Adapter.
func (a *Ahmia) Host() string { return hostOf(a.baseURL) }

// BuildRequest implements Adapter.
func (a *Ahmia) BuildRequest(q model.Query) (*RequestSpec, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", q.Text)

	return &RequestSpec{
		Method: http.MethodGet,
		URL:    a.baseURL + "/search/?" + params.Encode(),
		Header: newHeader("text/html"),
	}, nil
}

// Parse implements Adapter. Ahmia's result page lists hits as
// li.result elements, each with a title link and a snippet paragraph.
// Title links go through Ahmia's redirect endpoint; the real onion URL
// is in its redirect_url parameter.
func (a *Ahmia) Parse(raw RawResponse) ([]model.Result, error) {
	if err := statusError(raw.StatusCode); err != nil {
		return nil, err
	}
	if raw.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrParse, raw.StatusCode)
	}

	doc, err := html.Parse(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	type hit struct {
		title, href, snippet string
	}
	var hits []hit

	walkElements(doc, func(n *html.Node) bool {
		if n.Data != "li" || !hasClass(n, "result") {
			return true
		}

		var h hit
		walkElements(n, func(c *html.Node) bool {
			switch c.Data {
			case "a":
				if h.href == "" {
					h.href = unwrapAhmiaRedirect(attr(c, "href"))
					h.title = textContent(c)
				}
			case "p":
				if h.snippet == "" {
					h.snippet = textContent(c)
				}
			}
			return true
		})
		if h.title != "" && h.href != "" {
			hits = append(hits, h)
		}
		return false
	})

	results := make([]model.Result, 0, len(hits))
	for i, h := range hits {
		results = append(results, model.Result{
			Title:   h.title,
			URL:     h.href,
			Snippet: h.snippet,
			Source:  model.KindAhmia,
			Score:   rankScore(i, len(hits)),
		})
	}
	return results, nil
}

// unwrapAhmiaRedirect extracts the redirect_url parameter from Ahmia's
// redirect links, falling back to the raw href for direct links.
func unwrapAhmiaRedirect(href string) string {
	if !strings.Contains(href, "redirect_url=") {
		return href
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("redirect_url"); target != "" {
		return target
	}
	return href
}
