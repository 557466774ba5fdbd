package sqlstorage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Fuchsoria/revenue-admin/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	t.Run("test insert revenue ignores conflicting rows", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revenue_records")).
			WithArgs(int64(1), int64(2), int64(3), "2024-01-05", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(10, 1))
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (site_id, day) DO NOTHING")).
			WithArgs(int64(1), int64(2), int64(3), "2024-01-06", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		inserted, err := s.InsertRevenueRecords(ctx, []storage.RevenueRecord{
			{UserID: 1, SiteID: 2, ChannelID: 3, Day: day, Revenue: decimal.RequireFromString("12.50")},
			{UserID: 1, SiteID: 2, ChannelID: 3, Day: day.AddDate(0, 0, 1), Revenue: decimal.RequireFromString("1")},
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), inserted, "only the free day should be counted")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("test insert revenue rolls back on failure", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revenue_records")).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		inserted, err := s.InsertRevenueRecords(ctx, []storage.RevenueRecord{
			{UserID: 1, SiteID: 2, ChannelID: 3, Day: day, Revenue: decimal.NewFromInt(1)},
		})
		require.Error(t, err)
		require.Zero(t, inserted)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("test insert nothing skips transaction", func(t *testing.T) {
		s, mock := newMockStorage(t)

		inserted, err := s.InsertRevenueRecords(ctx, nil)
		require.NoError(t, err)
		require.Zero(t, inserted)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("test get missing user", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=$1")).
			WithArgs(int64(42)).
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetUser(ctx, 42)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("test duplicate email maps to conflict", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnError(&pq.Error{Code: uniqueViolation})

		_, err := s.CreateUser(ctx, storage.User{FirstName: "Ana", Email: "ana@example.com", RoleID: 1})
		require.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("test list revenue window query", func(t *testing.T) {
		s, mock := newMockStorage(t)

		rows := sqlmock.NewRows([]string{"id", "user_id", "site_id", "channel_id", "day", "revenue"}).
			AddRow(int64(7), int64(1), int64(2), int64(3), day, []byte("12.50"))

		mock.ExpectQuery(regexp.QuoteMeta(
			"WHERE user_id=$1 AND site_id=$2 AND day >= $3 AND day < $4 ORDER BY day DESC LIMIT $5")).
			WithArgs(int64(1), int64(2), "2024-01-01", "2024-01-31", 30).
			WillReturnRows(rows)

		records, err := s.ListRevenue(ctx, storage.RevenueQuery{
			UserID: 1,
			SiteID: 2,
			From:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			To:     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			Limit:  30,
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.True(t, decimal.RequireFromString("12.5").Equal(records[0].Revenue))
		require.Equal(t, day, records[0].Day)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("test existing revenue days", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT day FROM revenue_records WHERE site_id=$1")).
			WithArgs(int64(2), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"day"}).AddRow(day))

		days, err := s.GetRevenueDays(ctx, 2, []time.Time{day, day.AddDate(0, 0, 1)})
		require.NoError(t, err)
		require.Equal(t, []time.Time{day}, days)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("test delete user cascades", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM revenue_records WHERE user_id=$1")).
			WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 12))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sites WHERE user_id=$1")).
			WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id=$1")).
			WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.DeleteUser(ctx, 5))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("test delete missing user rolls back", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM revenue_records")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sites")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		require.ErrorIs(t, s.DeleteUser(ctx, 5), storage.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("test visible channels filter", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM channels WHERE is_visible ORDER BY id")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "public_name", "is_visible"}).
				AddRow(int64(1), "33across", "33Across", true))

		channels, err := s.ListChannels(ctx, true)
		require.NoError(t, err)
		require.Len(t, channels, 1)
		require.Equal(t, "33across", channels[0].Name)
	})
}
