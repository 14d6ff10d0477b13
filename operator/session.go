package operator

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"braintacle/respond"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CookieName is the session cookie set on login.
const CookieName = "braintacle_session"

type Session struct {
	Token    string    `json:"token"`
	Operator string    `json:"operator"`
	Expires  time.Time `json:"expires"`
}

// SessionStore keeps sessions in memory. Sessions do not survive a restart.
type SessionStore struct {
	lifetime time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
}

func NewSessionStore(lifetime time.Duration) *SessionStore {
	return &SessionStore{
		lifetime: lifetime,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
}

// Create starts a session for an operator.
func (st *SessionStore) Create(login string) Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess := Session{
		Token:    uuid.NewString(),
		Operator: login,
		Expires:  st.now().Add(st.lifetime),
	}
	st.sessions[sess.Token] = sess
	return sess
}

// Lookup returns the operator of a valid session. Expired sessions are
// removed.
func (st *SessionStore) Lookup(token string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[token]
	if !ok {
		return "", false
	}
	if !st.now().Before(sess.Expires) {
		delete(st.sessions, token)
		return "", false
	}
	return sess.Operator, true
}

func (st *SessionStore) Delete(token string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, token)
}

// DeleteOperator ends all sessions of an operator.
func (st *SessionStore) DeleteOperator(login string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for token, sess := range st.sessions {
		if sess.Operator == login {
			delete(st.sessions, token)
		}
	}
}

// Purge removes expired sessions and returns how many were removed.
func (st *SessionStore) Purge() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	n := 0
	for token, sess := range st.sessions {
		if !now.Before(sess.Expires) {
			delete(st.sessions, token)
			n++
		}
	}
	return n
}

type contextKey struct{}

// FromContext returns the operator authenticated by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	login, ok := ctx.Value(contextKey{}).(string)
	return login, ok
}

// Token extracts the session token from the Authorization header or the
// session cookie.
func Token(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Middleware rejects requests without a valid session. Paths in public
// pass through unauthenticated.
func Middleware(st *SessionStore, logger *zap.Logger, public ...string) func(http.Handler) http.Handler {
	exempt := make(map[string]bool, len(public))
	for _, p := range public {
		exempt[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			login, ok := st.Lookup(Token(r))
			if !ok {
				if logger != nil {
					logger.Debug("Rejected unauthenticated request", zap.String("path", r.URL.Path))
				}
				respond.Message(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, login)))
		})
	}
}
