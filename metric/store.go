package metric

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vitrina/pulso/errors"
)

// Store handles persistence of catalog items, click aggregates and click events
type Store struct {
	db *sql.DB
}

// NewStore creates a new metric store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateItem inserts a catalog item
func (s *Store) CreateItem(item *CatalogItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO catalog_items (id, label, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, item.ID, item.Label, item.Active, item.CreatedAt.Format(time.RFC3339), item.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		err = errors.Wrap(err, "failed to create catalog item")
		err = errors.WithDetail(err, fmt.Sprintf("Item ID: %s", item.ID))
		return err
	}
	return nil
}

// SetItemActive toggles an item's active flag
func (s *Store) SetItemActive(itemID string, active bool) error {
	res, err := s.db.Exec(`
		UPDATE catalog_items SET active = ?, updated_at = ? WHERE id = ?
	`, active, time.Now().Format(time.RFC3339), itemID)
	if err != nil {
		return errors.Wrapf(err, "failed to update catalog item %s", itemID)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return errors.Newf("catalog item %s not found", itemID)
	}
	return nil
}

// GetItem retrieves a catalog item by ID. Returns nil if not found.
func (s *Store) GetItem(itemID string) (*CatalogItem, error) {
	row := s.db.QueryRow(`
		SELECT id, label, active, created_at, updated_at
		FROM catalog_items WHERE id = ?
	`, itemID)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		err = errors.Wrap(err, "failed to get catalog item")
		err = errors.WithDetail(err, fmt.Sprintf("Item ID: %s", itemID))
		return nil, err
	}
	return item, nil
}

// ListActiveItems returns all active catalog items ordered by creation time
func (s *Store) ListActiveItems() ([]*CatalogItem, error) {
	rows, err := s.db.Query(`
		SELECT id, label, active, created_at, updated_at
		FROM catalog_items WHERE active = 1
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active items")
	}
	defer rows.Close()

	var items []*CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan catalog item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetMetric retrieves an item's aggregate metric. Returns nil if none exists yet.
func (s *Store) GetMetric(itemID string) (*Metric, error) {
	row := s.db.QueryRow(`
		SELECT item_id, total_clicks, weekly_clicks, monthly_clicks, yearly_clicks,
		       view_clicks, contact_clicks, favorite_clicks,
		       popularity_score, featured_score, is_popular, is_featured, last_calculated
		FROM item_metrics WHERE item_id = ?
	`, itemID)

	m, err := scanMetric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		err = errors.Wrap(err, "failed to get metric")
		err = errors.WithDetail(err, fmt.Sprintf("Item ID: %s", itemID))
		return nil, err
	}
	return m, nil
}

// UpsertMetric lazily creates a zeroed metric row for an item.
// Existing rows are left untouched.
func (s *Store) UpsertMetric(itemID string) error {
	_, err := s.db.Exec(`
		INSERT INTO item_metrics (item_id) VALUES (?)
		ON CONFLICT(item_id) DO NOTHING
	`, itemID)
	if err != nil {
		err = errors.Wrap(err, "failed to upsert metric")
		err = errors.WithDetail(err, fmt.Sprintf("Item ID: %s", itemID))
		return err
	}
	return nil
}

// UpdateMetric applies a partial update to an item's metric row
func (s *Store) UpdateMetric(itemID string, u Update) error {
	var sets []string
	var args []interface{}

	if u.WeeklyClicks != nil {
		sets = append(sets, "weekly_clicks = ?")
		args = append(args, *u.WeeklyClicks)
	}
	if u.MonthlyClicks != nil {
		sets = append(sets, "monthly_clicks = ?")
		args = append(args, *u.MonthlyClicks)
	}
	if u.YearlyClicks != nil {
		sets = append(sets, "yearly_clicks = ?")
		args = append(args, *u.YearlyClicks)
	}
	if u.PopularityScore != nil {
		sets = append(sets, "popularity_score = ?")
		args = append(args, *u.PopularityScore)
	}
	if u.FeaturedScore != nil {
		sets = append(sets, "featured_score = ?")
		args = append(args, *u.FeaturedScore)
	}
	if u.IsPopular != nil {
		sets = append(sets, "is_popular = ?")
		args = append(args, *u.IsPopular)
	}
	if u.IsFeatured != nil {
		sets = append(sets, "is_featured = ?")
		args = append(args, *u.IsFeatured)
	}
	if u.LastCalculated != nil {
		sets = append(sets, "last_calculated = ?")
		args = append(args, u.LastCalculated.Format(time.RFC3339))
	}

	if len(sets) == 0 {
		return nil // Nothing to update
	}

	args = append(args, itemID)
	res, err := s.db.Exec("UPDATE item_metrics SET "+strings.Join(sets, ", ")+" WHERE item_id = ?", args...)
	if err != nil {
		err = errors.Wrap(err, "failed to update metric")
		err = errors.WithDetail(err, fmt.Sprintf("Item ID: %s", itemID))
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return errors.Newf("metric for item %s not found", itemID)
	}
	return nil
}

// ListActiveMetricsOrderedByScore returns metrics for all active items,
// ordered by popularity score descending, featured score breaking ties.
func (s *Store) ListActiveMetricsOrderedByScore() ([]*Metric, error) {
	rows, err := s.db.Query(`
		SELECT m.item_id, m.total_clicks, m.weekly_clicks, m.monthly_clicks, m.yearly_clicks,
		       m.view_clicks, m.contact_clicks, m.favorite_clicks,
		       m.popularity_score, m.featured_score, m.is_popular, m.is_featured, m.last_calculated
		FROM item_metrics m
		JOIN catalog_items i ON i.id = m.item_id
		WHERE i.active = 1
		ORDER BY m.popularity_score DESC, m.featured_score DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active metrics")
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan metric")
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// RecordClick increments an item's raw counters and appends a click event.
// The metric row is created lazily on the first click.
func (s *Store) RecordClick(itemID string, kind ClickKind) error {
	item, err := s.GetItem(itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return errors.Newf("catalog item %s not found", itemID)
	}

	if err := s.UpsertMetric(itemID); err != nil {
		return err
	}

	intentColumn := ""
	switch kind {
	case ClickView:
		intentColumn = "view_clicks"
	case ClickContact:
		intentColumn = "contact_clicks"
	case ClickFavorite:
		intentColumn = "favorite_clicks"
	default:
		return errors.Newf("unknown click kind %q", kind)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin click transaction")
	}

	_, err = tx.Exec(fmt.Sprintf(`
		UPDATE item_metrics SET
			total_clicks = total_clicks + 1,
			weekly_clicks = weekly_clicks + 1,
			monthly_clicks = monthly_clicks + 1,
			yearly_clicks = yearly_clicks + 1,
			%s = %s + 1
		WHERE item_id = ?
	`, intentColumn, intentColumn), itemID)
	if err != nil {
		tx.Rollback()
		err = errors.Wrap(err, "failed to increment counters")
		err = errors.WithDetail(err, fmt.Sprintf("Item ID: %s", itemID))
		err = errors.WithDetail(err, fmt.Sprintf("Kind: %s", kind))
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO click_events (item_id, kind, created_at) VALUES (?, ?, ?)
	`, itemID, string(kind), time.Now().Format(time.RFC3339))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "failed to insert click event")
	}

	return tx.Commit()
}

// DeleteClickEventsOlderThan purges click events older than the cutoff.
// Returns the number of events removed.
func (s *Store) DeleteClickEventsOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM click_events WHERE created_at < ?
	`, cutoff.Format(time.RFC3339))
	if err != nil {
		err = errors.Wrap(err, "failed to delete old click events")
		err = errors.WithDetail(err, fmt.Sprintf("Cutoff: %s", cutoff.Format(time.RFC3339)))
		return 0, err
	}
	return res.RowsAffected()
}

// Stats returns row counts for the vitrina db stats command
func (s *Store) Stats() (items int, metrics int, events int, err error) {
	if err = s.db.QueryRow("SELECT COUNT(*) FROM catalog_items").Scan(&items); err != nil {
		return 0, 0, 0, errors.Wrap(err, "failed to count catalog items")
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM item_metrics").Scan(&metrics); err != nil {
		return 0, 0, 0, errors.Wrap(err, "failed to count metrics")
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM click_events").Scan(&events); err != nil {
		return 0, 0, 0, errors.Wrap(err, "failed to count click events")
	}
	return items, metrics, events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*CatalogItem, error) {
	var item CatalogItem
	var createdAt, updatedAt string

	if err := row.Scan(&item.ID, &item.Label, &item.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &item, nil
}

func scanMetric(row rowScanner) (*Metric, error) {
	var m Metric
	var lastCalculated sql.NullString

	if err := row.Scan(
		&m.ItemID, &m.TotalClicks, &m.WeeklyClicks, &m.MonthlyClicks, &m.YearlyClicks,
		&m.ViewClicks, &m.ContactClicks, &m.FavoriteClicks,
		&m.PopularityScore, &m.FeaturedScore, &m.IsPopular, &m.IsFeatured, &lastCalculated,
	); err != nil {
		return nil, err
	}

	if lastCalculated.Valid && lastCalculated.String != "" {
		if t, err := time.Parse(time.RFC3339, lastCalculated.String); err == nil {
			m.LastCalculated = &t
		}
	}
	return &m, nil
}
