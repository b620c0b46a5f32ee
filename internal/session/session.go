// Package session keeps per-browser conversation state between requests.
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"penny/internal/assistant"
	"penny/internal/cache"
)

const (
	CookieName = "penny_session"

	// MaxStoredHistory bounds the chat transcript kept per session. The
	// prompt builder uses a shorter tail of it.
	MaxStoredHistory = 100
)

// State is everything one client carries between requests.
type State struct {
	ID            string
	UserID        string
	Persona       string
	Name          string
	History       []assistant.Message
	Suggestions   []string
	EditingGoalID string
	Ended         bool
	CreatedAt     time.Time
}

// LoggedIn reports whether a user is attached to the session.
func (s *State) LoggedIn() bool {
	return s.UserID != ""
}

// AppendExchange records one user message and the reply to it.
func (s *State) AppendExchange(userText string, reply assistant.Reply) {
	s.History = append(s.History,
		assistant.Message{Role: assistant.RoleUser, Content: userText},
		assistant.Message{Role: assistant.RoleAssistant, Content: reply.Response},
	)
	if n := len(s.History); n > MaxStoredHistory {
		s.History = append([]assistant.Message(nil), s.History[n-MaxStoredHistory:]...)
	}
	if reply.Name != "" {
		s.Name = reply.Name
	}
	s.Suggestions = reply.Suggestions()
	s.Ended = reply.Quit
}

// ResetChat starts a fresh conversation, keeping the login and persona.
func (s *State) ResetChat() {
	s.History = nil
	s.Suggestions = nil
	s.Ended = false
}

// Logout drops everything tied to the user.
func (s *State) Logout() {
	s.UserID = ""
	s.Name = assistant.DefaultName
	s.EditingGoalID = ""
	s.ResetChat()
}

func (s *State) clone() *State {
	c := *s
	c.History = append([]assistant.Message(nil), s.History...)
	c.Suggestions = append([]string(nil), s.Suggestions...)
	return &c
}

// Manager stores sessions in a bounded LRU cache with sliding expiry: every
// Load of a live session renews its TTL. Load hands out copies; changes only
// become visible after Save.
type Manager struct {
	store  *cache.LRUCache[*State]
	ttl    time.Duration
	secure bool
}

func NewManager(maxSessions int, ttl time.Duration, secureCookies bool) *Manager {
	return &Manager{
		store:  cache.NewLRUCache[*State](maxSessions, ttl),
		ttl:    ttl,
		secure: secureCookies,
	}
}

// Cleaner exposes the backing cache for periodic expiry sweeps.
func (m *Manager) Cleaner() cache.Sweeper {
	return m.store
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.store.Size()
}

// Load returns the request's session, or a new unsaved one when the cookie
// is missing, unknown or expired.
func (m *Manager) Load(r *http.Request) (*State, bool) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if s, ok := m.store.Get(c.Value); ok {
			m.store.Touch(c.Value)
			return s.clone(), false
		}
	}
	return &State{
		ID:        uuid.NewString(),
		Name:      assistant.DefaultName,
		CreatedAt: time.Now().UTC(),
	}, true
}

// Save stores s and (re)issues its cookie.
func (m *Manager) Save(w http.ResponseWriter, s *State) {
	m.store.Set(s.ID, s.clone())
	http.SetCookie(w, m.cookie(s.ID, int(m.ttl.Seconds())))
}

// Refresh reissues the cookie of a live session so the browser keeps it as
// long as the server does. Unknown ids are ignored.
func (m *Manager) Refresh(w http.ResponseWriter, id string) {
	if m.store.Touch(id) {
		http.SetCookie(w, m.cookie(id, int(m.ttl.Seconds())))
	}
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
