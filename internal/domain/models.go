package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

func (s Status) Valid() bool { return s == StatusDraft || s == StatusPublished }

type Product struct {
	ID        string          `db:"id" json:"id"`
	Title     string          `db:"title" json:"title"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Status    Status          `db:"status" json:"status"`
	CreatedAt string          `db:"created_at" json:"created_at"`
	UpdatedAt string          `db:"updated_at" json:"updated_at"` // optimistic concurrency token
	LockedBy  *string         `db:"locked_by" json:"locked_by"`
	LockedAt  *string         `db:"locked_at" json:"-"`
}

// Holder returns the editor currently holding the advisory lock, or "".
func (p Product) Holder() string {
	if p.LockedBy == nil {
		return ""
	}
	return *p.LockedBy
}

// ProductVersion is the state a product had right before an update.
type ProductVersion struct {
	ID        string          `db:"id" json:"id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Title     string          `db:"title" json:"title"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Status    Status          `db:"status" json:"status"`
	SavedBy   string          `db:"saved_by" json:"saved_by"`
	SavedAt   string          `db:"saved_at" json:"saved_at"`
}

// Timestamps are stored as fixed-width UTC text with microseconds, so
// string order is time order and equality is exact on every backend.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string { return t.UTC().Truncate(time.Microsecond).Format(TimeLayout) }

// ParseTime accepts the storage layout and plain RFC3339 input.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// NextTimestamp returns now, or prev+1µs when the clock has not moved past prev.
func NextTimestamp(now time.Time, prev string) string {
	now = now.UTC().Truncate(time.Microsecond)
	if p, err := ParseTime(prev); err == nil && !now.After(p) {
		now = p.Add(time.Microsecond)
	}
	return FormatTime(now)
}
