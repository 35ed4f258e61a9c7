package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WebResult is one hit from the general web search fallback.
type WebResult struct {
	Title   string
	URL     string
	Content string
}

type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebResult, error)
}

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveSearch queries the Brave Search web API.
type BraveSearch struct {
	apiKey     string
	baseURL    string
	country    string
	lang       string
	httpClient *http.Client
}

type BraveOption func(*BraveSearch)

func WithBraveBaseURL(baseURL string) BraveOption {
	return func(b *BraveSearch) {
		b.baseURL = baseURL
	}
}

// WithBraveLocale sets the country and search language, e.g. "VN", "vi".
func WithBraveLocale(country, lang string) BraveOption {
	return func(b *BraveSearch) {
		b.country = country
		b.lang = lang
	}
}

func WithBraveTimeout(d time.Duration) BraveOption {
	return func(b *BraveSearch) {
		b.httpClient.Timeout = d
	}
}

func NewBraveSearch(apiKey string, opts ...BraveOption) (*BraveSearch, error) {
	if apiKey == "" {
		return nil, errors.New("brave api key is empty")
	}
	b := &BraveSearch{
		apiKey:     apiKey,
		baseURL:    braveEndpoint,
		country:    "VN",
		lang:       "vi",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *BraveSearch) Search(ctx context.Context, query string, maxResults int) ([]WebResult, error) {
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 20 {
		maxResults = 20
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))
	if b.country != "" {
		params.Set("country", b.country)
	}
	if b.lang != "" {
		params.Set("search_lang", b.lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave api returned status: %d", resp.StatusCode)
	}

	var r braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]WebResult, 0, len(r.Web.Results))
	for _, item := range r.Web.Results {
		content := strings.TrimSpace(item.Description)
		if content == "" {
			continue
		}
		out = append(out, WebResult{Title: item.Title, URL: item.URL, Content: content})
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}
