package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	rows map[int64]store.SessionRow
}

func newMemStore() *memStore { return &memStore{rows: map[int64]store.SessionRow{}} }

func (s *memStore) Load(_ context.Context, chatID int64) (*store.SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *memStore) Save(_ context.Context, chatID int64, token string, u backend.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[chatID] = store.SessionRow{ChatID: chatID, Token: token, User: u}
	return nil
}

func (s *memStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, chatID)
	return nil
}

func (s *memStore) has(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[chatID]
	return ok
}

// authServer accepts "good" as the only valid token.
func authServer(t *testing.T, profileStatus int) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"success":false,"error":"Invalid credentials"}`)
				return
			}
			_, _ = io.WriteString(w, `{"success":true,"data":{"token":"good","user":{"id":"u1","name":"Aline","role":"user"}}}`)
		case r.URL.Path == "/auth/profile" && r.Header.Get("Authorization") != "Bearer good":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"error":"Token expired"}`)
		case r.URL.Path == "/auth/profile" && r.Method == http.MethodGet:
			w.WriteHeader(profileStatus)
			_, _ = io.WriteString(w, `{"success":true,"data":{"id":"u1","name":"Aline M.","role":"chw"}}`)
		case r.URL.Path == "/auth/profile" && r.Method == http.MethodPut:
			var upd backend.ProfileUpdate
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			_, _ = io.WriteString(w, `{"success":true,"data":{"id":"u1","name":"`+upd.Name+`","role":"user","sector":"`+upd.Sector+`"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return backend.New(srv.URL)
}

func TestLoginAndLogout(t *testing.T) {
	st := newMemStore()
	m := NewManager(authServer(t, http.StatusOK), st, nil)
	ctx := context.Background()

	_, err := m.Login(ctx, 7, "a@b.rw", "wrong")
	assert.EqualError(t, err, "backend: status 401: Invalid credentials")
	_, err = m.Login(ctx, 7, "", "")
	assert.Error(t, err)

	s, err := m.Login(ctx, 7, "a@b.rw", "secret")
	require.NoError(t, err)
	assert.Equal(t, "good", s.Token)
	assert.Equal(t, "good", s.Client.Token())
	assert.Equal(t, backend.ID("u1"), s.User.ID)
	assert.True(t, st.has(7))

	got, ok := m.Get(7)
	require.True(t, ok)
	assert.Same(t, s, got)

	require.NoError(t, m.Logout(ctx, 7))
	_, ok = m.Get(7)
	assert.False(t, ok)
	assert.False(t, st.has(7))
}

func TestHydrate(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes user", func(t *testing.T) {
		st := newMemStore()
		require.NoError(t, st.Save(ctx, 1, "good", backend.User{ID: "u1", Name: "Aline", Role: backend.RoleUser}))
		m := NewManager(authServer(t, http.StatusOK), st, nil)

		s, err := m.Hydrate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Aline M.", s.User.Name)
		assert.Equal(t, backend.RoleCHW, s.Role())

		again, err := m.Hydrate(ctx, 1)
		require.NoError(t, err)
		assert.Same(t, s, again)
	})

	t.Run("expired token clears store", func(t *testing.T) {
		st := newMemStore()
		require.NoError(t, st.Save(ctx, 2, "stale", backend.User{ID: "u1"}))
		m := NewManager(authServer(t, http.StatusOK), st, nil)

		_, err := m.Hydrate(ctx, 2)
		assert.ErrorIs(t, err, ErrNoSession)
		assert.False(t, st.has(2))
	})

	t.Run("backend down keeps stored user", func(t *testing.T) {
		st := newMemStore()
		require.NoError(t, st.Save(ctx, 3, "good", backend.User{ID: "u1", Name: "Aline"}))
		m := NewManager(authServer(t, http.StatusServiceUnavailable), st, nil)

		s, err := m.Hydrate(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "Aline", s.User.Name)
	})

	t.Run("no session", func(t *testing.T) {
		_, err := NewManager(authServer(t, http.StatusOK), newMemStore(), nil).Hydrate(ctx, 4)
		assert.True(t, errors.Is(err, ErrNoSession))
		_, err = NewManager(authServer(t, http.StatusOK), nil, nil).Hydrate(ctx, 4)
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestUpdateProfile(t *testing.T) {
	st := newMemStore()
	m := NewManager(authServer(t, http.StatusOK), st, nil)
	ctx := context.Background()

	_, err := m.UpdateProfile(ctx, 9, backend.ProfileUpdate{Name: "X"})
	assert.ErrorIs(t, err, ErrNoSession)

	before, err := m.Login(ctx, 9, "a@b.rw", "secret")
	require.NoError(t, err)

	after, err := m.UpdateProfile(ctx, 9, backend.ProfileUpdate{Name: "Aline Uwase", Sector: "Remera"})
	require.NoError(t, err)
	assert.Equal(t, "Aline Uwase", after.User.Name)
	assert.Equal(t, "Remera", after.User.Sector)
	assert.Equal(t, "Aline", before.User.Name, "old session value is not mutated")

	row, err := st.Load(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Remera", row.User.Sector)
}
