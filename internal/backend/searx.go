package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// Searx queries a SearxNG metasearch instance through its JSON API.
// Unlike the scraping adapters it gets structured data with native
// relevance scores, which pass straight through to the aggregator.
//
// SearxNG instances are interchangeable, so deployments register one
// Searx adapter per configured instance; the instance's base URL is the
// only required setting.
type Searx struct {
	// baseURL is the instance root, e.g. "https://searx.example.org".
	baseURL string

	// language restricts results, e.g. "en".
	language string
}

// SearxOption configures the adapter.
type SearxOption func(*Searx)

// WithSearxLanguage sets the language filter sent with each query.
func WithSearxLanguage(lang string) SearxOption {
	return func(s *Searx) {
		s.language = lang
	}
}

// NewSearx creates an adapter for the SearxNG instance at baseURL.
func NewSearx(baseURL string, opts ...SearxOption) (*Searx, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid searx base URL %q", baseURL)
	}

	s := &Searx{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		language: "en",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Kind implements Adapter.
func (s *Searx) Kind() model.BackendKind { return model.KindSearx }

// Host implements Adapter.
func (s *Searx) Host() string { return hostOf(s.baseURL) }

// BuildRequest implements Adapter.
func (s *Searx) BuildRequest(q model.Query) (*RequestSpec, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("format", "json")
	params.Set("language", s.language)

	return &RequestSpec{
		Method: http.MethodGet,
		URL:    s.baseURL + "/search?" + params.Encode(),
		Header: newHeader("application/json"),
	}, nil
}

// searxResponse is the slice of the SearxNG JSON schema the adapter
// consumes. Unknown fields are ignored.
type searxResponse struct {
	Results []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Parse implements Adapter.
func (s *Searx) Parse(raw RawResponse) ([]model.Result, error) {
	if err := statusError(raw.StatusCode); err != nil {
		return nil, err
	}
	if raw.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrParse, raw.StatusCode)
	}

	// Instances with the JSON format disabled answer with an HTML error
	// page; classify that as blocked rather than a parse bug.
	if strings.Contains(raw.ContentType, "text/html") {
		return nil, ErrBlocked
	}

	var resp searxResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	results := make([]model.Result, 0, len(resp.Results))
	for i, r := range resp.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}

		score := normalizeSearxScore(r.Score)
		if r.Score == 0 {
			score = rankScore(i, len(resp.Results))
		}

		results = append(results, model.Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Source:  model.KindSearx,
			Score:   score,
		})
	}
	return results, nil
}

// normalizeSearxScore maps SearxNG's open-ended scores into [0, 1].
// Instances report scores above 1 for results found by several of their
// own engines; the aggregator expects a bounded scale.
func normalizeSearxScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	if score >= 1 {
		// score/(score+1) keeps ordering while flattening outliers.
		return score / (score + 1)
	}
	return score
}
