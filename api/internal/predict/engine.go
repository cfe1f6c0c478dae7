package predict

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"disposal-bot/api/internal/normalize"
)

// Engine turns a medicine name or a package photo into a raw prediction object.
type Engine interface {
	Name() string
	GetModel() string
	PredictText(ctx context.Context, genericName string) (*normalize.Object, error)
	PredictImage(ctx context.Context, img []byte, mime string) (*normalize.Object, error)
}

// FailedError is an inference call that reached the service but was rejected
// (success:false or an error status). Message is safe to show to users.
type FailedError struct {
	Engine  string
	Status  int
	Message string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return e.Engine + ": prediction failed"
	}
	return e.Engine + ": " + e.Message
}

// MessageOf returns the user-facing message of a rejected prediction, or fallback.
func MessageOf(err error, fallback string) string {
	var fe *FailedError
	if errors.As(err, &fe) && strings.TrimSpace(fe.Message) != "" {
		return fe.Message
	}
	return fallback
}

// Manager selects the engine per chat; chats without a choice use the default.
type Manager struct {
	def    Engine
	byName map[string]Engine
	m      sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine, others ...Engine) *Manager {
	mg := &Manager{def: defaultEngine, byName: map[string]Engine{}}
	for _, e := range append([]Engine{defaultEngine}, others...) {
		if e != nil {
			mg.byName[e.Name()] = e
		}
	}
	return mg
}

func (m *Manager) Default() Engine { return m.def }

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}

// Lookup finds a registered engine by name.
func (m *Manager) Lookup(name string) (Engine, bool) {
	e, ok := m.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// Use switches chatID to the named engine.
func (m *Manager) Use(chatID int64, name string) (Engine, bool) {
	e, ok := m.Lookup(name)
	if ok {
		m.Set(chatID, e)
	}
	return e, ok
}

func (m *Manager) Names() []string {
	out := make([]string, 0, len(m.byName))
	for n := range m.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
