package kufar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"kufar_bot/internal/model"
)

// Markers delimiting the embedded JSON application config on a listing page.
const (
	configStartTag = `<script id="__NEXT_DATA__" type="application/json">`
	configEndTag   = `</script><script nomodule=""`
)

// Resolver derives a host's filter parameter map from its listing page.
type Resolver struct {
	client HTTPClient
	cache  *Cache
	log    *slog.Logger
}

// NewResolver creates a Resolver using the given HTTP client and cache.
func NewResolver(client HTTPClient, cache *Cache, log *slog.Logger) *Resolver {
	return &Resolver{client: client, cache: cache, log: log}
}

// Resolve returns the filter map for the host of searchURL. The result is
// cached per host for the process lifetime. On any failure the built-in
// default map is returned so the caller's sync degrades instead of stalling;
// failures never populate the cache.
func (r *Resolver) Resolve(ctx context.Context, searchURL string) model.FilterMap {
	host := hostKey(searchURL)

	if m, ok := r.cache.Get(host); ok {
		return m
	}

	m, err := r.resolve(ctx, searchURL)
	if err != nil {
		r.log.Error("resolve parameter map, using default", "url", searchURL, "error", err)
		return DefaultFilterMap()
	}

	r.cache.Set(host, m)
	return m
}

func (r *Resolver) resolve(ctx context.Context, searchURL string) (model.FilterMap, error) {
	page, err := r.fetchPage(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	cfg, err := extractAppConfig(page)
	if err != nil {
		// Page content is logged in full: marker drift is only diagnosable
		// from the raw HTML.
		r.log.Debug("page content without config", "url", searchURL, "content", string(page))
		return nil, err
	}

	return cfg.paramsMap()
}

func (r *Resolver) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range pageHeaders {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d (%s)", resp.StatusCode, headerSummary(resp))
	}

	return readBody(resp)
}

// pageHeaders emulate a browser navigation; the listing page refuses
// non-browser requests.
var pageHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
	"Accept-Language":           "en-US,en;q=0.9,ru;q=0.8,fr;q=0.7",
	"Cache-Control":             "no-cache",
	"Cookie":                    "fullscreen_cookie=1",
	"Dnt":                       "1",
	"Pragma":                    "no-cache",
	"Referer":                   "https://www.kufar.by/listings",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_3) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/81.0.4044.129 Safari/537.36",
}

// hostKey reduces a search URL to its cache key: the host component with the
// leading "www." stripped.
func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// appConfig is the subset of the embedded page config the resolver consumes.
type appConfig struct {
	Props struct {
		InitialState struct {
			Filters struct {
				ParametersMap model.FilterMap `json:"parametersMap"`
				FiltersData   struct {
					Metadata struct {
						Parameters struct {
							Refs map[string]paramRef `json:"refs"`
						} `json:"parameters"`
					} `json:"metadata"`
				} `json:"filtersData"`
			} `json:"filters"`
		} `json:"initialState"`
	} `json:"props"`
}

type paramRef struct {
	Name    string `json:"name"`
	URLName string `json:"url_name"`
}

// extractAppConfig locates the JSON config block between the fixed page
// markers and parses it.
func extractAppConfig(page []byte) (*appConfig, error) {
	html := string(page)

	start := strings.Index(html, configStartTag)
	if start < 0 {
		return nil, fmt.Errorf("config start marker not found")
	}
	start += len(configStartTag)

	end := strings.Index(html[start:], configEndTag)
	if end < 0 {
		return nil, fmt.Errorf("config end marker not found")
	}

	var cfg appConfig
	if err := json.Unmarshal([]byte(html[start:start+end]), &cfg); err != nil {
		return nil, fmt.Errorf("parse app config: %w", err)
	}
	return &cfg, nil
}

// paramsMap returns the page's pre-built parameters map when present,
// otherwise folds the raw reference table into {url_name → display name}.
func (c *appConfig) paramsMap() (model.FilterMap, error) {
	if m := c.Props.InitialState.Filters.ParametersMap; len(m) > 0 {
		return m, nil
	}

	refs := c.Props.InitialState.Filters.FiltersData.Metadata.Parameters.Refs
	if len(refs) == 0 {
		return nil, fmt.Errorf("app config has no parameters map and no refs")
	}

	m := make(model.FilterMap, len(refs))
	for _, ref := range refs {
		if ref.URLName != "" {
			m[ref.URLName] = ref.Name
		}
	}
	return m, nil
}
