package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoutingUserInvited = "user.invited"
)

var defaultRoles = []storage.Role{
	{Name: "User", Index: "main", IsDefault: true, Permissions: storage.PermissionGeneral},
	{Name: "Administrator", Index: "admin", IsDefault: false, Permissions: storage.PermissionAdminister},
}

type UserInfo struct {
	User  storage.User   `json:"user"`
	Role  storage.Role   `json:"role"`
	Sites []storage.Site `json:"sites"`
}

type NewUser struct {
	FirstName string `json:"first_name" validate:"required,max=64"`
	Email     string `json:"email" validate:"required,max=64,email"`
	Password  string `json:"password" validate:"required"`
	RoleID    int64  `json:"role_id"`
}

type Invite struct {
	FirstName string `json:"first_name" validate:"required,max=64"`
	Email     string `json:"email" validate:"required,max=64,email"`
	RoleID    int64  `json:"role_id"`
}

type siteForm struct {
	Link string `json:"site" validate:"required,max=64"`
}

type channelForm struct {
	Name       string `json:"channel" validate:"required,max=64"`
	PublicName string `json:"public_name" validate:"required,max=64"`
}

type emailForm struct {
	Email string `json:"email" validate:"required,max=64,email"`
}

type inviteEvent struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// EnsureRoles creates the built-in roles or refreshes their permissions.
func (a *App) EnsureRoles(ctx context.Context) error {
	for _, role := range defaultRoles {
		if _, err := a.storage.UpsertRole(ctx, role); err != nil {
			return fmt.Errorf("cannot ensure role %s, %w", role.Name, err)
		}
	}

	return nil
}

func (a *App) ListRoles(ctx context.Context) ([]storage.Role, error) {
	return a.storage.ListRoles(ctx)
}

func (a *App) ListUsers(ctx context.Context) ([]storage.User, error) {
	return a.storage.ListUsers(ctx)
}

func (a *App) GetUser(ctx context.Context, id int64) (UserInfo, error) {
	user, err := a.storage.GetUser(ctx, id)
	if err != nil {
		return UserInfo{}, notFound("user", id, err)
	}

	role, err := a.storage.GetRole(ctx, user.RoleID)
	if err != nil {
		return UserInfo{}, notFound("role", user.RoleID, err)
	}

	sites, err := a.storage.ListSites(ctx, id)
	if err != nil {
		return UserInfo{}, fmt.Errorf("cannot list sites of user %d, %w", id, err)
	}

	return UserInfo{User: user, Role: role, Sites: sites}, nil
}

// IsAdmin reports whether the user holds every administrative permission.
func (a *App) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	info, err := a.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}

	return info.Role.Can(storage.PermissionAdminister), nil
}

func (a *App) CreateUser(ctx context.Context, nu NewUser) (storage.User, error) {
	nu.FirstName = strings.TrimSpace(nu.FirstName)
	nu.Email = strings.TrimSpace(nu.Email)

	if err := validateStruct(nu); err != nil {
		return storage.User{}, err
	}

	role, err := a.resolveRole(ctx, nu.Email, nu.RoleID)
	if err != nil {
		return storage.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return storage.User{}, fmt.Errorf("cannot hash password, %w", err)
	}

	passwordHash := string(hash)

	user := storage.User{
		FirstName:    nu.FirstName,
		Email:        nu.Email,
		PasswordHash: &passwordHash,
		Confirmed:    true,
		RoleID:       role.ID,
	}

	if user.ID, err = a.createUser(ctx, user); err != nil {
		return storage.User{}, err
	}

	a.logger.Info("user created", "user_id", user.ID, "role", role.Name)

	return user, nil
}

// InviteUser creates an unconfirmed user without password and announces the invitation.
// Sending the join link is up to the consumer of the event.
func (a *App) InviteUser(ctx context.Context, inv Invite) (storage.User, error) {
	inv.FirstName = strings.TrimSpace(inv.FirstName)
	inv.Email = strings.TrimSpace(inv.Email)

	if err := validateStruct(inv); err != nil {
		return storage.User{}, err
	}

	role, err := a.resolveRole(ctx, inv.Email, inv.RoleID)
	if err != nil {
		return storage.User{}, err
	}

	user := storage.User{FirstName: inv.FirstName, Email: inv.Email, RoleID: role.ID}

	if user.ID, err = a.createUser(ctx, user); err != nil {
		return storage.User{}, err
	}

	a.publish(ctx, RoutingUserInvited, inviteEvent{UserID: user.ID, Email: user.Email, FirstName: user.FirstName})
	a.logger.Info("user invited", "user_id", user.ID)

	return user, nil
}

func (a *App) createUser(ctx context.Context, user storage.User) (int64, error) {
	_, err := a.storage.GetUserByEmail(ctx, user.Email)

	switch {
	case err == nil:
		return 0, invalid("email", "Email already registered.")
	case !errors.Is(err, storage.ErrNotFound):
		return 0, fmt.Errorf("cannot look up email, %w", err)
	}

	id, err := a.storage.CreateUser(ctx, user)
	if errors.Is(err, storage.ErrConflict) {
		return 0, invalid("email", "Email already registered.")
	}

	if err != nil {
		return 0, fmt.Errorf("cannot create user, %w", err)
	}

	return id, nil
}

func (a *App) resolveRole(ctx context.Context, email string, roleID int64) (storage.Role, error) {
	if roleID != 0 {
		role, err := a.storage.GetRole(ctx, roleID)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Role{}, invalid("role", "Unknown account type.")
		}

		return role, err
	}

	roles, err := a.storage.ListRoles(ctx)
	if err != nil {
		return storage.Role{}, fmt.Errorf("cannot list roles, %w", err)
	}

	admin := a.adminEmail != "" && strings.EqualFold(email, a.adminEmail)

	for _, role := range roles {
		if admin && role.Permissions == storage.PermissionAdminister {
			return role, nil
		}

		if !admin && role.IsDefault {
			return role, nil
		}
	}

	return storage.Role{}, errors.New("roles are not initialized")
}

func (a *App) ChangeUserEmail(ctx context.Context, id int64, email string) error {
	email = strings.TrimSpace(email)
	if err := validateStruct(emailForm{Email: email}); err != nil {
		return err
	}

	err := a.storage.UpdateUserEmail(ctx, id, email)

	switch {
	case errors.Is(err, storage.ErrConflict):
		return invalid("email", "Email already registered.")
	case err != nil:
		return notFound("user", id, err)
	}

	a.logger.Info("user email changed", "user_id", id)

	return nil
}

func (a *App) ChangeAccountType(ctx context.Context, actorID int64, id int64, roleID int64) error {
	if actorID == id {
		return fmt.Errorf("cannot change the type of your own account, %w", ErrForbidden)
	}

	if _, err := a.storage.GetRole(ctx, roleID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return invalid("role", "Unknown account type.")
		}

		return err
	}

	if err := a.storage.UpdateUserRole(ctx, id, roleID); err != nil {
		return notFound("user", id, err)
	}

	a.logger.Info("account type changed", "user_id", id, "role_id", roleID, "actor_id", actorID)

	return nil
}

// DeleteUser removes the user with all of its sites and revenue.
func (a *App) DeleteUser(ctx context.Context, actorID int64, id int64) error {
	if actorID == id {
		return fmt.Errorf("cannot delete your own account, %w", ErrForbidden)
	}

	if err := a.storage.DeleteUser(ctx, id); err != nil {
		return notFound("user", id, err)
	}

	a.logger.Info("user deleted", "user_id", id, "actor_id", actorID)

	return nil
}

func (a *App) ListSites(ctx context.Context, userID int64) ([]storage.Site, error) {
	if _, err := a.storage.GetUser(ctx, userID); err != nil {
		return nil, notFound("user", userID, err)
	}

	return a.storage.ListSites(ctx, userID)
}

func (a *App) AddSite(ctx context.Context, userID int64, link string) (storage.Site, error) {
	link = strings.TrimSpace(link)
	if err := validateStruct(siteForm{Link: link}); err != nil {
		return storage.Site{}, err
	}

	if _, err := a.storage.GetUser(ctx, userID); err != nil {
		return storage.Site{}, notFound("user", userID, err)
	}

	site := storage.Site{UserID: userID, Link: link}

	id, err := a.storage.CreateSite(ctx, site)

	switch {
	case errors.Is(err, storage.ErrConflict):
		return storage.Site{}, invalid("site", "Site already exists.")
	case err != nil:
		return storage.Site{}, fmt.Errorf("cannot create site, %w", err)
	}

	site.ID = id

	return site, nil
}

// DeleteSites removes every site of the user matching link, with their revenue records.
func (a *App) DeleteSites(ctx context.Context, userID int64, link string) (int64, error) {
	if _, err := a.storage.GetUser(ctx, userID); err != nil {
		return 0, notFound("user", userID, err)
	}

	deleted, err := a.storage.DeleteSitesByLink(ctx, userID, link)
	if err != nil {
		return 0, err
	}

	a.logger.Info("sites deleted", "user_id", userID, "link", link, "count", deleted)

	return deleted, nil
}

func (a *App) AddChannel(ctx context.Context, name string, publicName string) (storage.Channel, error) {
	name = strings.TrimSpace(name)
	if err := validateStruct(channelForm{Name: name, PublicName: publicName}); err != nil {
		return storage.Channel{}, err
	}

	channel := storage.Channel{Name: name, PublicName: publicName, IsVisible: true}

	id, err := a.storage.CreateChannel(ctx, channel)

	switch {
	case errors.Is(err, storage.ErrConflict):
		return storage.Channel{}, invalid("channel", "Channel already exists.")
	case err != nil:
		return storage.Channel{}, fmt.Errorf("cannot create channel, %w", err)
	}

	channel.ID = id

	if _, ok := a.parsers.Resolve(name); !ok {
		a.logger.Warn("channel has no report parser, uploads will only be stored", "channel", name)
	}

	return channel, nil
}

func (a *App) ListChannels(ctx context.Context, visibleOnly bool) ([]storage.Channel, error) {
	return a.storage.ListChannels(ctx, visibleOnly)
}
