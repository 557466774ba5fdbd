package memorystorage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
)

type siteDay struct {
	siteID int64
	day    time.Time
}

// Storage keeps everything in process memory. It honours the same uniqueness rules as the
// SQL schema: user email, channel name, (user, link) for sites and (site, day) for revenue.
type Storage struct {
	mu sync.RWMutex

	seq      int64
	users    map[int64]storage.User
	roles    map[int64]storage.Role
	channels map[int64]storage.Channel
	sites    map[int64]storage.Site
	revenue  map[siteDay]storage.RevenueRecord
}

func New() *Storage {
	return &Storage{
		users:    make(map[int64]storage.User),
		roles:    make(map[int64]storage.Role),
		channels: make(map[int64]storage.Channel),
		sites:    make(map[int64]storage.Site),
		revenue:  make(map[siteDay]storage.RevenueRecord),
	}
}

func (s *Storage) nextID() int64 {
	s.seq++

	return s.seq
}

func (s *Storage) UpsertRole(ctx context.Context, role storage.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.roles {
		if r.Name == role.Name {
			role.ID = id
			s.roles[id] = role

			return id, nil
		}
	}

	role.ID = s.nextID()
	s.roles[role.ID] = role

	return role.ID, nil
}

func (s *Storage) GetRole(ctx context.Context, id int64) (storage.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[id]
	if !ok {
		return storage.Role{}, storage.ErrNotFound
	}

	return role, nil
}

func (s *Storage) ListRoles(ctx context.Context) ([]storage.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]storage.Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, r)
	}

	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })

	return roles, nil
}

func (s *Storage) CreateUser(ctx context.Context, user storage.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return 0, storage.ErrConflict
		}
	}

	user.ID = s.nextID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.users[user.ID] = user

	return user.ID, nil
}

func (s *Storage) GetUser(ctx context.Context, id int64) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}

	return user, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}

	return storage.User{}, storage.ErrNotFound
}

func (s *Storage) ListUsers(ctx context.Context) ([]storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]storage.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return users, nil
}

func (s *Storage) UpdateUserEmail(ctx context.Context, id int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}

	for otherID, u := range s.users {
		if otherID != id && strings.EqualFold(u.Email, email) {
			return storage.ErrConflict
		}
	}

	user.Email = email
	s.users[id] = user

	return nil
}

func (s *Storage) UpdateUserRole(ctx context.Context, id int64, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}

	user.RoleID = roleID
	s.users[id] = user

	return nil
}

// DeleteUser removes the user together with its sites and revenue records.
func (s *Storage) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}

	for siteID, site := range s.sites {
		if site.UserID == id {
			s.deleteSiteLocked(siteID)
		}
	}

	for key, r := range s.revenue {
		if r.UserID == id {
			delete(s.revenue, key)
		}
	}

	delete(s.users, id)

	return nil
}

func (s *Storage) CreateChannel(ctx context.Context, channel storage.Channel) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.channels {
		if c.Name == channel.Name {
			return 0, storage.ErrConflict
		}
	}

	channel.ID = s.nextID()
	s.channels[channel.ID] = channel

	return channel.ID, nil
}

func (s *Storage) GetChannel(ctx context.Context, id int64) (storage.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.channels[id]
	if !ok {
		return storage.Channel{}, storage.ErrNotFound
	}

	return channel, nil
}

func (s *Storage) ListChannels(ctx context.Context, visibleOnly bool) ([]storage.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]storage.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		if visibleOnly && !c.IsVisible {
			continue
		}

		channels = append(channels, c)
	}

	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	return channels, nil
}

func (s *Storage) CreateSite(ctx context.Context, site storage.Site) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[site.UserID]; !ok {
		return 0, storage.ErrNotFound
	}

	for _, existing := range s.sites {
		if existing.UserID == site.UserID && existing.Link == site.Link {
			return 0, storage.ErrConflict
		}
	}

	site.ID = s.nextID()
	s.sites[site.ID] = site

	return site.ID, nil
}

func (s *Storage) GetSite(ctx context.Context, id int64) (storage.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	site, ok := s.sites[id]
	if !ok {
		return storage.Site{}, storage.ErrNotFound
	}

	return site, nil
}

func (s *Storage) ListSites(ctx context.Context, userID int64) ([]storage.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sites := make([]storage.Site, 0)
	for _, site := range s.sites {
		if site.UserID == userID {
			sites = append(sites, site)
		}
	}

	sort.Slice(sites, func(i, j int) bool { return sites[i].ID < sites[j].ID })

	return sites, nil
}

func (s *Storage) DeleteSitesByLink(ctx context.Context, userID int64, link string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	for id, site := range s.sites {
		if site.UserID == userID && site.Link == link {
			s.deleteSiteLocked(id)
			deleted++
		}
	}

	return deleted, nil
}

func (s *Storage) deleteSiteLocked(siteID int64) {
	for key := range s.revenue {
		if key.siteID == siteID {
			delete(s.revenue, key)
		}
	}

	delete(s.sites, siteID)
}

func (s *Storage) GetRevenueDays(ctx context.Context, siteID int64, days []time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := make([]time.Time, 0)
	for _, day := range days {
		if _, ok := s.revenue[siteDay{siteID, storage.Day(day)}]; ok {
			existing = append(existing, storage.Day(day))
		}
	}

	return existing, nil
}

// InsertRevenueRecords stores records whose (site, day) is still free and reports how many
// were written. Records colliding with an existing (site, day) are ignored.
func (s *Storage) InsertRevenueRecords(ctx context.Context, records []storage.RevenueRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted int64

	for _, r := range records {
		r.Day = storage.Day(r.Day)
		key := siteDay{r.SiteID, r.Day}

		if _, ok := s.revenue[key]; ok {
			continue
		}

		r.ID = s.nextID()
		s.revenue[key] = r
		inserted++
	}

	return inserted, nil
}

func (s *Storage) ListRevenue(ctx context.Context, q storage.RevenueQuery) ([]storage.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]storage.RevenueRecord, 0)
	for _, r := range s.revenue {
		if q.Match(r) {
			records = append(records, r)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Day.After(records[j].Day) })

	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}

	return records, nil
}
