package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"depenses/internal/cache"
	"depenses/internal/view"
)

const sessionCookie = "depenses_session"

// clientSession is what the server remembers about one browser between view
// requests. Query is the last rendered query so that page and accordion
// changes can re-render without the client repeating it.
type clientSession struct {
	View  view.Session
	Query view.Query
}

// sessionStore keeps client sessions in a bounded TTL cache keyed by cookie.
type sessionStore struct {
	cache *cache.LRUCache[clientSession]
	ttl   time.Duration
}

func newSessionStore(capacity int, ttl time.Duration) *sessionStore {
	return &sessionStore{
		cache: cache.NewLRUCache[clientSession](capacity, ttl),
		ttl:   ttl,
	}
}

// load returns the caller's session, starting a new one (and setting the
// cookie) when the cookie is missing, malformed or expired.
func (s *sessionStore) load(w http.ResponseWriter, r *http.Request) (string, clientSession) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			if sess, ok := s.cache.Get(c.Value); ok {
				return c.Value, sess
			}
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return id, clientSession{View: view.NewSession()}
}

func (s *sessionStore) save(id string, sess clientSession) {
	sess.Query.Pages = nil
	s.cache.Set(id, sess)
}
