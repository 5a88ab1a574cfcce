package clip

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clipsync-server/internal/token"
)

const DefaultTTL = 15 * time.Minute

type RegistryOptions struct {
	TTL    time.Duration
	Limits Limits
	Signer *token.Signer
	Now    func() time.Time
}

// Registry is the process-wide table of live sessions.
type Registry struct {
	ttl    time.Duration
	limits Limits
	signer *token.Signer
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		ttl:      opts.TTL,
		limits:   opts.Limits,
		signer:   opts.Signer,
		now:      opts.Now,
		sessions: make(map[string]*Session),
	}
}

// Create allocates a fresh session with the TTL clock starting now.
// UUID collisions are practically impossible; a hit against a live
// session just retries generation.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		id = uuid.NewString()
		if _, taken := r.sessions[id]; !taken {
			break
		}
	}
	sess := newSession(id, r.now(), r.ttl, r.limits, r.signer, r.now)
	r.sessions[id] = sess
	return sess
}

// Get is a pure lookup: it never creates and reports a session whose
// deadline has passed as absent even before the sweeper evicts it.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if r.now().UnixMilli() >= sess.ExpiresAt() {
		return nil, false
	}
	return sess, true
}

// End tears the session down and removes it from the table. Idempotent;
// any member may trigger it and the expiration path shares it.
func (r *Registry) End(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	return sess.end()
}

// ExpireDue ends every session whose deadline has passed. The teardown
// path runs exactly once per session even if a member ends it
// concurrently.
func (r *Registry) ExpireDue(now time.Time) int {
	deadline := now.UnixMilli()

	r.mu.Lock()
	due := make([]*Session, 0)
	for id, sess := range r.sessions {
		if deadline >= sess.ExpiresAt() {
			due = append(due, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	expired := 0
	for _, sess := range due {
		if sess.end() {
			expired++
			log.Debug().Str("session", sess.ID()).Msg("session expired")
		}
	}
	return expired
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
