package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
)

// MockStore is an in-memory implementation of every repository interface.
type MockStore struct {
	mu         sync.Mutex
	nextID     int64
	users      map[int64]*domain.User
	watchlists []*domain.WatchlistItem
	portfolios []*domain.PortfolioItem
	alerts     map[int64]*domain.PriceAlert
	resets     map[string]*domain.PasswordReset

	passwordUpdates int
	attemptsGranted int
}

func NewMockStore() *MockStore {
	return &MockStore{
		users:  make(map[int64]*domain.User),
		alerts: make(map[int64]*domain.PriceAlert),
		resets: make(map[string]*domain.PasswordReset),
	}
}

func (m *MockStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MockStore) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return domain.NewError(domain.ErrConflict, "Username or email already registered")
		}
	}
	user.ID = m.id()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MockStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.NewError(domain.ErrNotFound, "User not found")
}

func (m *MockStore) findUser(match func(*domain.User) bool, detail string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NewError(domain.ErrNotFound, detail)
}

func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.findUser(func(u *domain.User) bool { return u.Username == username }, "User not found")
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.findUser(func(u *domain.User) bool { return u.Email == email }, "Email not found")
}

func (m *MockStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) updateUser(id int64, apply func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.NewError(domain.ErrNotFound, "User not found")
	}
	apply(u)
	return nil
}

func (m *MockStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	return m.updateUser(id, func(u *domain.User) { u.IsActive = active })
}

func (m *MockStore) SetUserAdmin(ctx context.Context, id int64, admin bool) error {
	return m.updateUser(id, func(u *domain.User) { u.IsAdmin = admin })
}

func (m *MockStore) UpdatePassword(ctx context.Context, id int64, hashedPassword string) error {
	return m.updateUser(id, func(u *domain.User) {
		u.HashedPassword = hashedPassword
		m.passwordUpdates++
	})
}

func (m *MockStore) Statistics(ctx context.Context) (*domain.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.Statistics{
		TotalUsers:      len(m.users),
		TotalWatchlists: len(m.watchlists),
		TotalPortfolios: len(m.portfolios),
		TotalAlerts:     len(m.alerts),
	}, nil
}

func (m *MockStore) AddWatchlistItem(ctx context.Context, item *domain.WatchlistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchlists {
		if w.UserID == item.UserID && w.CoinID == item.CoinID {
			return domain.NewError(domain.ErrConflict, "Coin already in watchlist")
		}
	}
	item.ID = m.id()
	m.watchlists = append(m.watchlists, item)
	return nil
}

func (m *MockStore) ListWatchlist(ctx context.Context, userID int64) ([]*domain.WatchlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WatchlistItem
	for _, w := range m.watchlists {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *MockStore) DeleteWatchlistItem(ctx context.Context, userID int64, coinID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.watchlists {
		if w.UserID == userID && w.CoinID == coinID {
			m.watchlists = append(m.watchlists[:i], m.watchlists[i+1:]...)
			return nil
		}
	}
	return domain.NewError(domain.ErrNotFound, "Coin not found in watchlist")
}

func (m *MockStore) AddPortfolioItem(ctx context.Context, item *domain.PortfolioItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	m.portfolios = append(m.portfolios, item)
	return nil
}

func (m *MockStore) ListPortfolio(ctx context.Context, userID int64) ([]*domain.PortfolioItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PortfolioItem
	for _, p := range m.portfolios {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockStore) DeletePortfolioItem(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.portfolios {
		if p.UserID == userID && p.ID == id {
			m.portfolios = append(m.portfolios[:i], m.portfolios[i+1:]...)
			return nil
		}
	}
	return domain.NewError(domain.ErrNotFound, "Portfolio item not found")
}

func (m *MockStore) CreateAlert(ctx context.Context, alert *domain.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert.ID = m.id()
	cp := *alert
	m.alerts[alert.ID] = &cp
	return nil
}

func (m *MockStore) ListAlerts(ctx context.Context, userID int64) ([]*domain.PriceAlert, error) {
	return m.listAlerts(func(a *domain.PriceAlert) bool { return a.UserID == userID }), nil
}

func (m *MockStore) ListActiveAlerts(ctx context.Context) ([]*domain.PriceAlert, error) {
	return m.listAlerts(func(a *domain.PriceAlert) bool { return a.IsActive }), nil
}

func (m *MockStore) listAlerts(match func(*domain.PriceAlert) bool) []*domain.PriceAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PriceAlert
	for _, a := range m.alerts {
		if match(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockStore) MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || !a.IsActive {
		return domain.NewError(domain.ErrNotFound, "Alert not found")
	}
	a.IsActive = false
	a.TriggeredAt = &at
	return nil
}

func (m *MockStore) DeleteAlert(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.UserID != userID {
		return domain.NewError(domain.ErrNotFound, "Alert not found")
	}
	delete(m.alerts, id)
	return nil
}

func (m *MockStore) SavePasswordReset(ctx context.Context, reset *domain.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *reset
	m.resets[reset.Email] = &cp
	return nil
}

func (m *MockStore) GetPasswordReset(ctx context.Context, email string) (*domain.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[email]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "No pending password reset")
	}
	cp := *r
	return &cp, nil
}

func (m *MockStore) ConsumeResetAttempt(ctx context.Context, email string, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[email]
	if !ok || r.Attempts >= limit {
		return 0, domain.NewError(domain.ErrNotFound, "No reset attempts left")
	}
	r.Attempts++
	m.attemptsGranted++
	return r.Attempts, nil
}

func (m *MockStore) RefundResetAttempt(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[email]
	if !ok {
		return domain.NewError(domain.ErrNotFound, "No pending password reset")
	}
	if r.Attempts > 0 {
		r.Attempts--
	}
	return nil
}

func (m *MockStore) MarkResetVerified(ctx context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[email]
	if !ok {
		return domain.NewError(domain.ErrNotFound, "No pending password reset")
	}
	r.VerifiedAt = &at
	return nil
}

func (m *MockStore) DeletePasswordReset(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resets, email)
	return nil
}

func (m *MockStore) DeleteExpiredResets(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for email, r := range m.resets {
		if r.ExpiresAt.Before(before) {
			delete(m.resets, email)
			n++
		}
	}
	return n, nil
}

type sentMail struct {
	To, Subject, Body string
}

// MockMailer captures outgoing messages.
type MockMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

var (
	_ domain.UserRepository          = (*MockStore)(nil)
	_ domain.WatchlistRepository     = (*MockStore)(nil)
	_ domain.PortfolioRepository     = (*MockStore)(nil)
	_ domain.AlertRepository         = (*MockStore)(nil)
	_ domain.PasswordResetRepository = (*MockStore)(nil)
	_ domain.Mailer                  = (*MockMailer)(nil)
)
