package kufar

import (
	"fmt"
	"net/url"
	"strings"

	"kufar_bot/internal/model"
)

const searchAPIURL = "https://cre-api.kufar.by/ads-search/v1/engine/v1/search/rendered-paginated"

// pageSize is the fixed result-page size. Pagination is not supported, so a
// single large page trades completeness for simplicity.
const pageSize = "30"

// resultControlParams are always passed through to the search API regardless
// of the resolved filter map.
var resultControlParams = []string{"size", "sort", "cursor", "query", "ot"}

// Query is a normalized request against the marketplace search API.
type Query struct {
	// URL is the full API URL with the filtered parameter set.
	URL string
	// Referer is the originating filter URL; the backend rejects search
	// requests without it.
	Referer string
	// FreeText holds a free-text path fragment of the filter URL that could
	// not be carried over as a query parameter. Empty when none was found.
	FreeText string
}

// BuildQuery turns a subscriber's filter URL plus a resolved filter map into
// a search API query. Parameters outside the allow-list (result controls plus
// the filter map keys) are stripped so stale UI parameters cannot break the
// backend API.
func BuildQuery(filterURL string, fm model.FilterMap) (*Query, error) {
	u, err := url.Parse(filterURL)
	if err != nil {
		return nil, fmt.Errorf("parse filter url: %w", err)
	}

	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("parse filter query: %w", err)
	}

	allowed := make(map[string]bool, len(resultControlParams)+len(fm))
	for _, p := range resultControlParams {
		allowed[p] = true
	}
	for p := range fm {
		allowed[p] = true
	}

	for p := range params {
		if !allowed[p] {
			params.Del(p)
		}
	}
	params.Set("size", pageSize)

	return &Query{
		URL:      searchAPIURL + "?" + params.Encode(),
		Referer:  filterURL,
		FreeText: freeTextSegment(u, params),
	}, nil
}

// freeTextSegment detects a free-text search encoded as the trailing path
// segment of the filter URL. Such text cannot be translated into an API
// parameter; callers surface it as a non-fatal warning.
func freeTextSegment(u *url.URL, params url.Values) string {
	if params.Get("query") != "" {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	switch last {
	case "", "l", "listings":
		return ""
	}
	return last
}
