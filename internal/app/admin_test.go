package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func requireInvalid(t *testing.T, err error, field string) {
	t.Helper()

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr), "expected validation error, got %v", err)
	require.Equal(t, field, validationErr.Field)
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.app.EnsureRoles(ctx))

	roles, err := f.app.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)

	names := []string{roles[0].Name, roles[1].Name}
	require.ElementsMatch(t, []string{"User", "Administrator"}, names)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("test default role and password hash", func(t *testing.T) {
		f := newFixture(t)

		info, err := f.app.GetUser(ctx, f.user.ID)
		require.NoError(t, err)
		require.Equal(t, "main", info.Role.Index)
		require.True(t, info.User.Confirmed)
		require.NotNil(t, info.User.PasswordHash)
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(*info.User.PasswordHash), []byte("secret")))
		require.Len(t, info.Sites, 1)

		admin, err := f.app.IsAdmin(ctx, f.user.ID)
		require.NoError(t, err)
		require.False(t, admin)
	})

	t.Run("test admin email gets administrator role", func(t *testing.T) {
		f := newFixture(t)

		user, err := f.app.CreateUser(ctx, NewUser{FirstName: "Root", Email: "Root@Example.com", Password: "x"})
		require.NoError(t, err)

		admin, err := f.app.IsAdmin(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, admin)
	})

	t.Run("test explicit role", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.app.CreateUser(ctx, NewUser{FirstName: "Bo", Email: "bo@example.com", Password: "x", RoleID: 42})
		requireInvalid(t, err, "role")
	})

	t.Run("test validation", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.app.CreateUser(ctx, NewUser{FirstName: "", Email: "bo@example.com", Password: "x"})
		requireInvalid(t, err, "first_name")

		_, err = f.app.CreateUser(ctx, NewUser{FirstName: strings.Repeat("a", 65), Email: "bo@example.com", Password: "x"})
		requireInvalid(t, err, "first_name")

		_, err = f.app.CreateUser(ctx, NewUser{FirstName: "Bo", Email: "not an email", Password: "x"})
		requireInvalid(t, err, "email")

		_, err = f.app.CreateUser(ctx, NewUser{FirstName: "Bo", Email: "Bo <bo@example.com>", Password: "x"})
		requireInvalid(t, err, "email")

		_, err = f.app.CreateUser(ctx, NewUser{FirstName: "Bo", Email: "bo@example.com"})
		requireInvalid(t, err, "password")

		users, err := f.app.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
	})

	t.Run("test duplicate email", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.app.CreateUser(ctx, NewUser{FirstName: "Ana", Email: "ana@example.com", Password: "x"})
		requireInvalid(t, err, "email")
	})
}

func TestInviteUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.app.InviteUser(ctx, Invite{FirstName: "Cy", Email: "cy@example.com"})
	require.NoError(t, err)
	require.False(t, user.Confirmed)
	require.Nil(t, user.PasswordHash)

	sent := f.producer.sent()
	require.Len(t, sent, 1)
	require.Equal(t, RoutingUserInvited, sent[0].routingKey)
	require.Contains(t, sent[0].body, `"email":"cy@example.com"`)

	_, err = f.app.InviteUser(ctx, Invite{FirstName: "Cy", Email: "cy@example.com"})
	requireInvalid(t, err, "email")
	require.Len(t, f.producer.sent(), 1)
}

func TestChangeUser(t *testing.T) {
	ctx := context.Background()

	t.Run("test change email", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.app.ChangeUserEmail(ctx, f.user.ID, "ana@example.org"))

		info, err := f.app.GetUser(ctx, f.user.ID)
		require.NoError(t, err)
		require.Equal(t, "ana@example.org", info.User.Email)

		requireInvalid(t, f.app.ChangeUserEmail(ctx, f.user.ID, "broken"), "email")
		require.ErrorIs(t, f.app.ChangeUserEmail(ctx, 999, "x@example.com"), ErrNotFound)
	})

	t.Run("test email taken", func(t *testing.T) {
		f := newFixture(t)

		other, err := f.app.CreateUser(ctx, NewUser{FirstName: "Bo", Email: "bo@example.com", Password: "x"})
		require.NoError(t, err)

		requireInvalid(t, f.app.ChangeUserEmail(ctx, other.ID, "ana@example.com"), "email")
	})

	t.Run("test change account type", func(t *testing.T) {
		f := newFixture(t)

		roles, err := f.app.ListRoles(ctx)
		require.NoError(t, err)

		var adminRole storage.Role
		for _, role := range roles {
			if role.Index == "admin" {
				adminRole = role
			}
		}

		actor, err := f.app.CreateUser(ctx, NewUser{FirstName: "Root", Email: "root@example.com", Password: "x"})
		require.NoError(t, err)

		require.ErrorIs(t, f.app.ChangeAccountType(ctx, actor.ID, actor.ID, adminRole.ID), ErrForbidden)
		requireInvalid(t, f.app.ChangeAccountType(ctx, actor.ID, f.user.ID, 999), "role")
		require.ErrorIs(t, f.app.ChangeAccountType(ctx, actor.ID, 999, adminRole.ID), ErrNotFound)

		require.NoError(t, f.app.ChangeAccountType(ctx, actor.ID, f.user.ID, adminRole.ID))

		admin, err := f.app.IsAdmin(ctx, f.user.ID)
		require.NoError(t, err)
		require.True(t, admin)
	})
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ingest(t, scenarioA)
	require.NoError(t, err)
	require.Len(t, f.revenue(t), 1)

	actor, err := f.app.CreateUser(ctx, NewUser{FirstName: "Root", Email: "root@example.com", Password: "x"})
	require.NoError(t, err)

	require.ErrorIs(t, f.app.DeleteUser(ctx, actor.ID, actor.ID), ErrForbidden)
	require.NoError(t, f.app.DeleteUser(ctx, actor.ID, f.user.ID))
	require.ErrorIs(t, f.app.DeleteUser(ctx, actor.ID, f.user.ID), ErrNotFound)

	_, err = f.app.GetUser(ctx, f.user.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.store.GetSite(ctx, f.site.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Empty(t, f.revenue(t))
}

func TestSites(t *testing.T) {
	ctx := context.Background()

	t.Run("test add and list", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.app.AddSite(ctx, f.user.ID, "  blog  ")
		require.NoError(t, err)

		sites, err := f.app.ListSites(ctx, f.user.ID)
		require.NoError(t, err)
		require.Len(t, sites, 2)
		require.Equal(t, "blog", sites[1].Link)

		_, err = f.app.AddSite(ctx, f.user.ID, "acme")
		requireInvalid(t, err, "site")

		_, err = f.app.AddSite(ctx, f.user.ID, "")
		requireInvalid(t, err, "site")

		_, err = f.app.AddSite(ctx, 999, "acme")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = f.app.ListSites(ctx, 999)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("test same link for another user", func(t *testing.T) {
		f := newFixture(t)

		other, err := f.app.CreateUser(ctx, NewUser{FirstName: "Bo", Email: "bo@example.com", Password: "x"})
		require.NoError(t, err)

		_, err = f.app.AddSite(ctx, other.ID, "acme")
		require.NoError(t, err)
	})

	t.Run("test delete removes revenue", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.ingest(t, scenarioA)
		require.NoError(t, err)

		deleted, err := f.app.DeleteSites(ctx, f.user.ID, "acme")
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)
		require.Empty(t, f.revenue(t))

		deleted, err = f.app.DeleteSites(ctx, f.user.ID, "acme")
		require.NoError(t, err)
		require.Zero(t, deleted)
	})
}

func TestChannels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.app.AddChannel(ctx, "33across", "Again")
	requireInvalid(t, err, "channel")

	_, err = f.app.AddChannel(ctx, "", "Empty")
	requireInvalid(t, err, "channel")

	_, err = f.app.AddChannel(ctx, "adsense", "")
	requireInvalid(t, err, "public_name")

	channels, err := f.app.ListChannels(ctx, true)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.True(t, channels[0].IsVisible)
}

func TestClock(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, fixedNow, f.app.now())
	require.WithinDuration(t, time.Now(), New(f.app.logger, f.store, f.app.parsers, f.app.uploads).now(), time.Minute)
}
