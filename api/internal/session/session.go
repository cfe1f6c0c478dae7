package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/store"
)

var ErrNoSession = errors.New("please log in first: /login <email> <password>")

// Store persists sessions across restarts. *store.SessionRepo implements it.
type Store interface {
	Load(ctx context.Context, chatID int64) (*store.SessionRow, error)
	Save(ctx context.Context, chatID int64, token string, u backend.User) error
	Delete(ctx context.Context, chatID int64) error
}

// Session is an authenticated chat. It is never mutated after creation;
// updates replace it in the Manager.
type Session struct {
	ChatID int64
	Token  string
	User   backend.User
	Client *backend.Client
}

func (s *Session) Role() backend.Role { return s.User.Role }

// Manager owns the session of every chat. It is the only writer of session
// state: hydrate on first use, replace on login and profile update, clear on logout.
type Manager struct {
	base  *backend.Client
	store Store
	log   *slog.Logger
	m     sync.Map // chatID -> *Session
}

// NewManager returns a Manager; st may be nil for memory-only sessions.
func NewManager(base *backend.Client, st Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{base: base, store: st, log: log}
}

func (m *Manager) newSession(chatID int64, token string, u backend.User) *Session {
	return &Session{ChatID: chatID, Token: token, User: u, Client: m.base.WithToken(token)}
}

func (m *Manager) Get(chatID int64) (*Session, bool) {
	if v, ok := m.m.Load(chatID); ok {
		return v.(*Session), true
	}
	return nil, false
}

// Hydrate restores the chat's session from the store and refreshes the user
// from the backend. A rejected token clears the stored session; other backend
// errors keep the stored user.
func (m *Manager) Hydrate(ctx context.Context, chatID int64) (*Session, error) {
	if s, ok := m.Get(chatID); ok {
		return s, nil
	}
	if m.store == nil {
		return nil, ErrNoSession
	}
	row, err := m.store.Load(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	s := m.newSession(chatID, row.Token, row.User)

	u, err := s.Client.Profile(ctx)
	switch {
	case backend.IsStatus(err, http.StatusUnauthorized):
		if derr := m.store.Delete(ctx, chatID); derr != nil {
			m.log.Warn("session delete failed", "chat_id", chatID, "err", derr)
		}
		return nil, ErrNoSession
	case err != nil:
		m.log.Warn("profile refresh failed, using stored user", "chat_id", chatID, "err", err)
	default:
		s.User = *u
	}
	actual, _ := m.m.LoadOrStore(chatID, s)
	return actual.(*Session), nil
}

func (m *Manager) Login(ctx context.Context, chatID int64, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.New("usage: /login <email> <password>")
	}
	res, err := m.base.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s := m.newSession(chatID, res.Token, res.User)
	m.m.Store(chatID, s)
	m.persist(ctx, s)
	return s, nil
}

// UpdateProfile is the only way the session's user changes after login.
func (m *Manager) UpdateProfile(ctx context.Context, chatID int64, upd backend.ProfileUpdate) (*Session, error) {
	cur, ok := m.Get(chatID)
	if !ok {
		return nil, ErrNoSession
	}
	u, err := cur.Client.UpdateProfile(ctx, upd)
	if err != nil {
		return nil, err
	}
	s := m.newSession(chatID, cur.Token, *u)
	m.m.Store(chatID, s)
	m.persist(ctx, s)
	return s, nil
}

func (m *Manager) Logout(ctx context.Context, chatID int64) error {
	m.m.Delete(chatID)
	if m.store == nil {
		return nil
	}
	return m.store.Delete(ctx, chatID)
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, s.ChatID, s.Token, s.User); err != nil {
		m.log.Warn("session save failed", "chat_id", s.ChatID, "err", err)
	}
}
