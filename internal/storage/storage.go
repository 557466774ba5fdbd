package storage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

const (
	PermissionGeneral    = 0x01
	PermissionAdminister = 0xff
)

type Role struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Index       string `db:"index_name" json:"index"`
	IsDefault   bool   `db:"is_default" json:"is_default"`
	Permissions int    `db:"permissions" json:"permissions"`
}

func (r Role) Can(permissions int) bool {
	return r.Permissions&permissions == permissions
}

type User struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Confirmed    bool      `db:"confirmed" json:"confirmed"`
	RoleID       int64     `db:"role_id" json:"role_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Channel struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	PublicName string `db:"public_name" json:"public_name"`
	IsVisible  bool   `db:"is_visible" json:"is_visible"`
}

type Site struct {
	ID     int64  `db:"id" json:"id"`
	UserID int64  `db:"user_id" json:"user_id"`
	Link   string `db:"link" json:"link"`
}

// RevenueRecord is one (site, day) revenue fact.
type RevenueRecord struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	SiteID    int64           `db:"site_id" json:"site_id"`
	ChannelID int64           `db:"channel_id" json:"channel_id"`
	Day       time.Time       `db:"day" json:"day"`
	Revenue   decimal.Decimal `db:"revenue" json:"revenue"`
}

// RevenueQuery selects the revenue records of one site, newest day first.
// Zero From/To leave that bound open, zero Limit means no limit.
type RevenueQuery struct {
	UserID int64
	SiteID int64
	From   time.Time
	To     time.Time
	Limit  int
}

func (q RevenueQuery) Match(r RevenueRecord) bool {
	if r.UserID != q.UserID || r.SiteID != q.SiteID {
		return false
	}

	if !q.From.IsZero() && r.Day.Before(q.From) {
		return false
	}

	if !q.To.IsZero() && !r.Day.Before(q.To) {
		return false
	}

	return true
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
