package kufar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"kufar_bot/internal/model"
)

// Fetcher executes built queries against the marketplace search API.
type Fetcher struct {
	client HTTPClient
}

// NewFetcher creates a Fetcher with the given HTTP client.
func NewFetcher(client HTTPClient) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch issues the search API request and decodes the result into listing
// records. A missing "ads" field yields an empty slice, not an error.
func (f *Fetcher) Fetch(ctx context.Context, q *Query) ([]model.Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range apiHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Referer", q.Referer)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d (%s)", resp.StatusCode, headerSummary(resp))
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	listings := make([]model.Listing, 0, len(result.Ads))
	for _, ad := range result.Ads {
		listings = append(listings, ad.toListing())
	}
	return listings, nil
}

// apiHeaders are the static header set the search backend expects; the
// x-segmentation value authorizes the web routing profile.
var apiHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.9,ru;q=0.8,fr;q=0.7,de;q=0.6",
	"Cache-Control":   "no-cache",
	"Content-Type":    "application/json",
	"Pragma":          "no-cache",
	"Sec-Fetch-Dest":  "empty",
	"Sec-Fetch-Mode":  "cors",
	"Sec-Fetch-Site":  "same-site",
	"X-Segmentation":  "routing=web_re;platform=web;application=ad_view",
}

type searchResponse struct {
	Ads []wireAd `json:"ads"`
}

// wireAd is the raw listing object as returned by the search API. The
// heterogeneous fields (string-or-number prices, {p,v} account parameters)
// are normalized here so downstream code works with a plain model.Listing.
type wireAd struct {
	AdID              int64          `json:"ad_id"`
	Subject           string         `json:"subject"`
	PriceBYN          minorUnits     `json:"price_byn"`
	PriceUSD          minorUnits     `json:"price_usd"`
	Rooms             flexString     `json:"rooms"`
	ListTime          string         `json:"list_time"`
	CompanyAd         bool           `json:"company_ad"`
	Phone             string         `json:"phone"`
	AdLink            string         `json:"ad_link"`
	Images            []wireImage    `json:"images"`
	AccountParameters []accountParam `json:"account_parameters"`
	Coordinates       []float64      `json:"coordinates"`
}

type wireImage struct {
	ID          string `json:"id"`
	YamsStorage bool   `json:"yams_storage"`
}

type accountParam struct {
	P string     `json:"p"`
	V flexString `json:"v"`
}

func (a *wireAd) toListing() model.Listing {
	l := model.Listing{
		KufarID:   a.AdID,
		Subject:   a.Subject,
		PriceBYN:  int64(a.PriceBYN),
		PriceUSD:  int64(a.PriceUSD),
		Rooms:     string(a.Rooms),
		CompanyAd: a.CompanyAd,
		Phone:     a.Phone,
		AdLink:    a.AdLink,
	}

	if a.ListTime != "" {
		l.ListTime = parseListTime(a.ListTime)
	}

	for _, img := range a.Images {
		l.Images = append(l.Images, model.Image{ID: img.ID, YamsStorage: img.YamsStorage})
	}

	account := make(map[string]string, len(a.AccountParameters))
	for _, p := range a.AccountParameters {
		account[p.P] = string(p.V)
	}
	if v := account["contact_person"]; v != "" {
		l.ContactName = v
	} else {
		l.ContactName = account["name"]
	}

	if len(a.Coordinates) >= 2 {
		lat, lon := a.Coordinates[1], a.Coordinates[0]
		l.Latitude = &lat
		l.Longitude = &lon
	}

	return l
}

var listTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
}

func parseListTime(s string) time.Time {
	for _, layout := range listTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// minorUnits is an integer amount of minor currency units that the API may
// encode as a JSON number or string.
type minorUnits int64

func (m *minorUnits) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse minor units %q: %w", data, err)
	}
	*m = minorUnits(v)
	return nil
}

// flexString accepts a JSON string, number, or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}
