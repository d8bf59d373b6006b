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

// DefaultDuckDuckGoBaseURL is the JavaScript-free HTML endpoint. The
// plain-HTML variant is the only one usable without a browser engine,
// and it is also the variant DuckDuckGo serves on its own onion mirror.
const DefaultDuckDuckGoBaseURL = "https://html.duckduckgo.com"

// DuckDuckGo scrapes the DuckDuckGo HTML search endpoint.
//
// Design decision: The base URL is configurable so deployments can
// point this adapter at DuckDuckGo's onion mirror instead of the
// clearnet host, keeping even the search engine itself from seeing an
// exit node.
type DuckDuckGo struct {
	// baseURL is the endpoint root without trailing slash.
	baseURL string

	// region is the DuckDuckGo region code (kl parameter), e.g. "us-en".
	region string
}

// DuckDuckGoOption configures the adapter.
type DuckDuckGoOption func(*DuckDuckGo)

// WithDuckDuckGoBaseURL overrides the endpoint, e.g. with the onion mirror.
func WithDuckDuckGoBaseURL(baseURL string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithDuckDuckGoRegion sets the region code sent with each query.
func WithDuckDuckGoRegion(region string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.region = region
	}
}

// NewDuckDuckGo creates the DuckDuckGo adapter.
func NewDuckDuckGo(opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		baseURL: DefaultDuckDuckGoBaseURL,
		region:  "us-en",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Kind implements Adapter.
func (d *DuckDuckGo) Kind() model.BackendKind { return model.KindDuckDuckGo }

// Host implements Adapter.
func (d *DuckDuckGo) Host() string { return hostOf(d.baseURL) }

// BuildRequest implements Adapter.
func (d *DuckDuckGo) BuildRequest(q model.Query) (*RequestSpec, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("kl", d.region)

	return &RequestSpec{
		Method: http.MethodGet,
		URL:    d.baseURL + "/html/?" + params.Encode(),
		Header: newHeader("text/html"),
	}, nil
}

// Parse implements Adapter. It extracts results from the HTML endpoint's
// markup: each hit is a div.result containing an a.result__a title link
// and an a.result__snippet excerpt.
func (d *DuckDuckGo) Parse(raw RawResponse) ([]model.Result, error) {
	if err := statusError(raw.StatusCode); err != nil {
		return nil, err
	}
	if raw.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrParse, raw.StatusCode)
	}

	// DuckDuckGo serves its bot challenge with status 200, so it has to
	// be detected from the page content.
	if bytes.Contains(raw.Body, []byte("anomaly-modal")) {
		return nil, ErrBlocked
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
		if n.Data != "div" || !hasClass(n, "result") {
			return true
		}
		// Ads carry result--ad alongside result; skip them.
		if hasClass(n, "result--ad") {
			return false
		}

		var h hit
		walkElements(n, func(c *html.Node) bool {
			if c.Data != "a" {
				return true
			}
			switch {
			case hasClass(c, "result__a"):
				h.title = textContent(c)
				h.href = decodeRedirect(attr(c, "href"))
			case hasClass(c, "result__snippet"):
				h.snippet = textContent(c)
			}
			return true
		})
		if h.title != "" && h.href != "" {
			hits = append(hits, h)
		}
		return false
	})

	if len(hits) == 0 {
		// An empty result list is legitimate; a page without even the
		// results container is not.
		if !bytes.Contains(raw.Body, []byte("result")) {
			return nil, fmt.Errorf("%w: no results markup in response", ErrParse)
		}
		return nil, nil
	}

	results := make([]model.Result, 0, len(hits))
	for i, h := range hits {
		results = append(results, model.Result{
			Title:   h.title,
			URL:     h.href,
			Snippet: h.snippet,
			Source:  model.KindDuckDuckGo,
			Score:   rankScore(i, len(hits)),
		})
	}
	return results, nil
}

// decodeRedirect unwraps DuckDuckGo's redirect links. Result hrefs have
// the form //duckduckgo.com/l/?uddg=<encoded-target>&rut=...; the uddg
// parameter is the real destination.
func decodeRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
