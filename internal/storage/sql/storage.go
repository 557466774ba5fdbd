package sqlstorage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

//go:embed migrations/*.sql
var migrations embed.FS

type Storage struct {
	db *sqlx.DB
}

func New(ctx context.Context, connectionString string) (*Storage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("cannot open db, %w", err)
	}

	return &Storage{db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sqlx.DB) *Storage {
	return &Storage{db}
}

func (s *Storage) Connect(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot connect to db, %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("cannot read migrations, %w", err)
	}

	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("cannot create migration driver, %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("cannot create migrator, %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("cannot apply migrations, %w", err)
	}

	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrConflict
	}

	return err
}

func (s *Storage) UpsertRole(ctx context.Context, role storage.Role) (int64, error) {
	var id int64

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO roles (name, index_name, is_default, permissions) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET index_name = EXCLUDED.index_name, is_default = EXCLUDED.is_default, permissions = EXCLUDED.permissions
		RETURNING id`,
		role.Name, role.Index, role.IsDefault, role.Permissions).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("cannot upsert role, %w", err)
	}

	return id, nil
}

func (s *Storage) GetRole(ctx context.Context, id int64) (storage.Role, error) {
	var role storage.Role

	err := s.db.GetContext(ctx, &role,
		"SELECT id, name, index_name, is_default, permissions FROM roles WHERE id=$1", id)
	if err != nil {
		return storage.Role{}, mapError(err)
	}

	return role, nil
}

func (s *Storage) ListRoles(ctx context.Context) ([]storage.Role, error) {
	roles := make([]storage.Role, 0)

	err := s.db.SelectContext(ctx, &roles,
		"SELECT id, name, index_name, is_default, permissions FROM roles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("cannot select roles, %w", err)
	}

	return roles, nil
}

func (s *Storage) CreateUser(ctx context.Context, user storage.User) (int64, error) {
	var id int64

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (first_name, email, password_hash, confirmed, role_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		user.FirstName, user.Email, user.PasswordHash, user.Confirmed, user.RoleID).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}

	return id, nil
}

const userColumns = "id, first_name, email, password_hash, confirmed, role_id, created_at"

func (s *Storage) GetUser(ctx context.Context, id int64) (storage.User, error) {
	var user storage.User

	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id=$1", id)
	if err != nil {
		return storage.User{}, mapError(err)
	}

	return user, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (storage.User, error) {
	var user storage.User

	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE lower(email)=lower($1)", email)
	if err != nil {
		return storage.User{}, mapError(err)
	}

	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]storage.User, error) {
	users := make([]storage.User, 0)

	if err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("cannot select users, %w", err)
	}

	return users, nil
}

func (s *Storage) UpdateUserEmail(ctx context.Context, id int64, email string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET email=$1 WHERE id=$2", email, id)
	if err != nil {
		return mapError(err)
	}

	return expectAffected(res)
}

func (s *Storage) UpdateUserRole(ctx context.Context, id int64, roleID int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET role_id=$1 WHERE id=$2", roleID, id)
	if err != nil {
		return mapError(err)
	}

	return expectAffected(res)
}

// DeleteUser removes the user, its sites and its revenue records in one transaction.
func (s *Storage) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin transaction, %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM revenue_records WHERE user_id=$1", id); err != nil {
		return fmt.Errorf("cannot delete user revenue, %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sites WHERE user_id=$1", id); err != nil {
		return fmt.Errorf("cannot delete user sites, %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=$1", id)
	if err != nil {
		return fmt.Errorf("cannot delete user, %w", err)
	}

	if err := expectAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit user deletion, %w", err)
	}

	return nil
}

func (s *Storage) CreateChannel(ctx context.Context, channel storage.Channel) (int64, error) {
	var id int64

	err := s.db.QueryRowxContext(ctx,
		"INSERT INTO channels (name, public_name, is_visible) VALUES ($1, $2, $3) RETURNING id",
		channel.Name, channel.PublicName, channel.IsVisible).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}

	return id, nil
}

func (s *Storage) GetChannel(ctx context.Context, id int64) (storage.Channel, error) {
	var channel storage.Channel

	err := s.db.GetContext(ctx, &channel,
		"SELECT id, name, public_name, is_visible FROM channels WHERE id=$1", id)
	if err != nil {
		return storage.Channel{}, mapError(err)
	}

	return channel, nil
}

func (s *Storage) ListChannels(ctx context.Context, visibleOnly bool) ([]storage.Channel, error) {
	channels := make([]storage.Channel, 0)

	query := "SELECT id, name, public_name, is_visible FROM channels"
	if visibleOnly {
		query += " WHERE is_visible"
	}

	if err := s.db.SelectContext(ctx, &channels, query+" ORDER BY id"); err != nil {
		return nil, fmt.Errorf("cannot select channels, %w", err)
	}

	return channels, nil
}

func (s *Storage) CreateSite(ctx context.Context, site storage.Site) (int64, error) {
	var id int64

	err := s.db.QueryRowxContext(ctx,
		"INSERT INTO sites (user_id, link) VALUES ($1, $2) RETURNING id",
		site.UserID, site.Link).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}

	return id, nil
}

func (s *Storage) GetSite(ctx context.Context, id int64) (storage.Site, error) {
	var site storage.Site

	if err := s.db.GetContext(ctx, &site, "SELECT id, user_id, link FROM sites WHERE id=$1", id); err != nil {
		return storage.Site{}, mapError(err)
	}

	return site, nil
}

func (s *Storage) ListSites(ctx context.Context, userID int64) ([]storage.Site, error) {
	sites := make([]storage.Site, 0)

	err := s.db.SelectContext(ctx, &sites, "SELECT id, user_id, link FROM sites WHERE user_id=$1 ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("cannot select sites, %w", err)
	}

	return sites, nil
}

// DeleteSitesByLink removes every site of the user with the given link. Revenue records
// go with them through the foreign key cascade.
func (s *Storage) DeleteSitesByLink(ctx context.Context, userID int64, link string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sites WHERE user_id=$1 AND link=$2", userID, link)
	if err != nil {
		return 0, fmt.Errorf("cannot delete sites, %w", err)
	}

	return res.RowsAffected()
}

func (s *Storage) GetRevenueDays(ctx context.Context, siteID int64, days []time.Time) ([]time.Time, error) {
	existing := make([]time.Time, 0)
	if len(days) == 0 {
		return existing, nil
	}

	formatted := make([]string, 0, len(days))
	for _, day := range days {
		formatted = append(formatted, day.Format("2006-01-02"))
	}

	err := s.db.SelectContext(ctx, &existing,
		"SELECT day FROM revenue_records WHERE site_id=$1 AND day = ANY($2::date[])",
		siteID, pq.Array(formatted))
	if err != nil {
		return nil, fmt.Errorf("cannot select revenue days, %w", err)
	}

	for i := range existing {
		existing[i] = storage.Day(existing[i])
	}

	return existing, nil
}

// InsertRevenueRecords writes all records in a single transaction. Rows hitting the
// (site_id, day) unique constraint are ignored; the result counts the rows actually written.
func (s *Storage) InsertRevenueRecords(ctx context.Context, records []storage.RevenueRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cannot begin transaction, %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var inserted int64

	for _, r := range records {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO revenue_records (user_id, site_id, channel_id, day, revenue)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (site_id, day) DO NOTHING`,
			r.UserID, r.SiteID, r.ChannelID, r.Day.Format("2006-01-02"), r.Revenue)
		if err != nil {
			return 0, fmt.Errorf("cannot insert revenue record, %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("cannot read affected rows, %w", err)
		}

		inserted += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cannot commit revenue records, %w", err)
	}

	return inserted, nil
}

func (s *Storage) ListRevenue(ctx context.Context, q storage.RevenueQuery) ([]storage.RevenueRecord, error) {
	var sb strings.Builder

	sb.WriteString("SELECT id, user_id, site_id, channel_id, day, revenue FROM revenue_records WHERE user_id=$1 AND site_id=$2")
	args := []interface{}{q.UserID, q.SiteID}

	if !q.From.IsZero() {
		args = append(args, q.From.Format("2006-01-02"))
		fmt.Fprintf(&sb, " AND day >= $%d", len(args))
	}

	if !q.To.IsZero() {
		args = append(args, q.To.Format("2006-01-02"))
		fmt.Fprintf(&sb, " AND day < $%d", len(args))
	}

	sb.WriteString(" ORDER BY day DESC")

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	records := make([]storage.RevenueRecord, 0)
	if err := s.db.SelectContext(ctx, &records, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("cannot select revenue, %w", err)
	}

	for i := range records {
		records[i].Day = storage.Day(records[i].Day)
	}

	return records, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cannot read affected rows, %w", err)
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}
