// Package metric persists catalog items and their click aggregates.
package metric

import (
	"time"
)

// ClickKind identifies the intent behind a recorded click
type ClickKind string

const (
	ClickView     ClickKind = "view"
	ClickContact  ClickKind = "contact"
	ClickFavorite ClickKind = "favorite"
)

// IsValidClickKind returns true if the kind string is a valid ClickKind
func IsValidClickKind(s string) bool {
	switch ClickKind(s) {
	case ClickView, ClickContact, ClickFavorite:
		return true
	default:
		return false
	}
}

// CatalogItem is a scoreable catalog entry
type CatalogItem struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metric holds one item's click aggregates and derived scores.
//
// Raw counters are only ever incremented by the tracking path (RecordClick);
// derived fields are only ever written by the scoring engine.
type Metric struct {
	ItemID          string     `json:"item_id"`
	TotalClicks     int        `json:"total_clicks"`
	WeeklyClicks    int        `json:"weekly_clicks"`
	MonthlyClicks   int        `json:"monthly_clicks"`
	YearlyClicks    int        `json:"yearly_clicks"`
	ViewClicks      int        `json:"view_clicks"`
	ContactClicks   int        `json:"contact_clicks"`
	FavoriteClicks  int        `json:"favorite_clicks"`
	PopularityScore float64    `json:"popularity_score"`
	FeaturedScore   float64    `json:"featured_score"`
	IsPopular       bool       `json:"is_popular"`
	IsFeatured      bool       `json:"is_featured"`
	LastCalculated  *time.Time `json:"last_calculated,omitempty"`
}

// Update carries a partial metric write; nil fields are left untouched
type Update struct {
	WeeklyClicks    *int
	MonthlyClicks   *int
	YearlyClicks    *int
	PopularityScore *float64
	FeaturedScore   *float64
	IsPopular       *bool
	IsFeatured      *bool
	LastCalculated  *time.Time
}
