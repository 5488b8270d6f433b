// Package model defines the domain types used across the application.
package model

import "time"

// Subscriber is a Telegram chat with at most one saved search URL.
// A nil FilterURL means the chat is not subscribed.
type Subscriber struct {
	ChatID    int64
	FilterURL *string
	CreatedAt time.Time
}

// FilterMap translates a marketplace's internal filter parameter names
// (url_name) to the display names used by its search API metadata.
type FilterMap map[string]string

// Image is one photo attached to a listing. YamsStorage selects which of
// the two kufar image hosts serves the file.
type Image struct {
	ID          string
	YamsStorage bool
}

// Listing is one classified advertisement ingested from the marketplace.
// Prices are integer minor units (kopecks/cents).
type Listing struct {
	KufarID     int64
	Subject     string
	PriceBYN    int64
	PriceUSD    int64
	Rooms       string
	ListTime    time.Time
	CompanyAd   bool
	ContactName string
	Phone       string
	AdLink      string
	Images      []Image
	Latitude    *float64
	Longitude   *float64
}

// HasCoordinates reports whether the listing carries a venue location.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}
