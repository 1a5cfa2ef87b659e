// Package memory implements the gateway's single in-process state container:
// SIWE nonces, sessions, auth rate-limit buckets, TP arms, and the
// idempotency set. One mutex guards everything; every exported operation is
// atomic and self-contained, and reads that escape the lock return deep
// copies so callers can never alias in-store state.
//
// Durability is deliberately absent: a restart drops all sessions and stops
// armed TPs from firing.
package memory

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opipolix/webgate/internal/domain"
)

// Store is the process-local state container. Construct with New.
type Store struct {
	mu sync.Mutex

	nonces      map[string]*domain.NonceRecord // lowercased address -> challenge
	sessions    map[string]*domain.Session     // opaque token -> session
	rateLimits  map[string][]time.Time         // "<bucket>:<ip>" -> request times
	tpArms      map[string]*domain.TpArm       // arm_id -> arm
	idempotency map[string]struct{}

	nonceTTL   time.Duration
	sessionTTL time.Duration

	now func() time.Time
}

// New creates an empty Store with the given nonce and session lifetimes.
func New(nonceTTL, sessionTTL time.Duration) *Store {
	return &Store{
		nonces:      make(map[string]*domain.NonceRecord),
		sessions:    make(map[string]*domain.Session),
		rateLimits:  make(map[string][]time.Time),
		tpArms:      make(map[string]*domain.TpArm),
		idempotency: make(map[string]struct{}),
		nonceTTL:    nonceTTL,
		sessionTTL:  sessionTTL,
		now:         time.Now,
	}
}

// SetClock overrides the store's clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateNonce issues a fresh 128-bit nonce for the address, overwriting any
// outstanding challenge. The message template (with its "{nonce}"
// placeholder and frozen Issued At line) is stored alongside so
// verification can compare byte-for-byte later.
func (s *Store) CreateNonce(address, messageTemplate string) *domain.NonceRecord {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("memory: crypto/rand unavailable: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &domain.NonceRecord{
		Nonce:     hex.EncodeToString(buf),
		Message:   messageTemplate,
		CreatedAt: now,
		ExpiresAt: now.Add(s.nonceTTL),
	}
	s.nonces[strings.ToLower(address)] = rec

	cp := *rec
	return &cp
}

// ConsumeNonce returns and deletes the address's challenge when it is
// unexpired and the nonce matches. Expired challenges are deleted silently;
// a mismatched nonce leaves the record in place.
func (s *Store) ConsumeNonce(address, nonce string) *domain.NonceRecord {
	key := strings.ToLower(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nonces[key]
	if !ok {
		return nil
	}
	if rec.ExpiresAt.Before(s.now()) {
		delete(s.nonces, key)
		return nil
	}
	if rec.Nonce != nonce {
		return nil
	}
	delete(s.nonces, key)

	cp := *rec
	return &cp
}

// CreateSession mints a session bound to the EOA with a 384-bit URL-safe
// token.
func (s *Store) CreateSession(eoa string, creds domain.ClobCreds, ctx domain.TradingContext) *domain.Session {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		panic("memory: crypto/rand unavailable: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &domain.Session{
		Token:          base64.RawURLEncoding.EncodeToString(buf),
		EOAAddress:     eoa,
		Creds:          creds,
		TradingContext: ctx,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.sessionTTL),
	}
	s.sessions[sess.Token] = sess

	cp := *sess
	return &cp
}

// GetSession looks up a session by token, expiring it lazily.
func (s *Store) GetSession(token string) *domain.Session {
	if token == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	if sess.ExpiresAt.Before(s.now()) {
		delete(s.sessions, token)
		return nil
	}

	cp := *sess
	return &cp
}

// DeleteSession removes a session. Deleting an unknown token is a no-op.
func (s *Store) DeleteSession(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// AllowRateLimit applies a sliding-window limit to the key. Timestamps
// older than the window are pruned on every call; the request is admitted
// (and recorded) only while fewer than maxRequests remain in the window.
func (s *Store) AllowRateLimit(key string, maxRequests int, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	floor := now.Add(-window)

	kept := s.rateLimits[key][:0]
	for _, ts := range s.rateLimits[key] {
		if !ts.Before(floor) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= maxRequests {
		s.rateLimits[key] = kept
		return false
	}

	s.rateLimits[key] = append(kept, now)
	return true
}

// MarkIdempotent records the key, reporting true only on first insertion.
func (s *Store) MarkIdempotent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.idempotency[key]; seen {
		return false
	}
	s.idempotency[key] = struct{}{}
	return true
}

// SaveTpArm stores the arm, replacing any previous state under the same ID.
func (s *Store) SaveTpArm(arm *domain.TpArm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tpArms[arm.ArmID] = arm.Clone()
}

// GetTpArm returns a deep copy of the arm, or nil when unknown.
func (s *Store) GetTpArm(armID string) *domain.TpArm {
	s.mu.Lock()
	defer s.mu.Unlock()

	arm, ok := s.tpArms[armID]
	if !ok {
		return nil
	}
	return arm.Clone()
}

// UpdateTpArm applies mutate to the arm under the lock and stamps
// UpdatedAt. It returns a copy of the new state, or nil when the arm is
// unknown. The callback must not call back into the store.
func (s *Store) UpdateTpArm(armID string, mutate func(*domain.TpArm)) *domain.TpArm {
	s.mu.Lock()
	defer s.mu.Unlock()

	arm, ok := s.tpArms[armID]
	if !ok {
		return nil
	}
	mutate(arm)
	arm.UpdatedAt = s.now()
	return arm.Clone()
}

// AppendTpEvent appends one entry to the arm's event log. Unknown arms are
// ignored.
func (s *Store) AppendTpEvent(armID string, evt domain.TpEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	arm, ok := s.tpArms[armID]
	if !ok {
		return
	}
	arm.Events = append(arm.Events, evt)
}

// GetTpArmsForUser returns copies of every arm owned by the EOA, oldest
// first.
func (s *Store) GetTpArmsForUser(eoa string) []*domain.TpArm {
	target := strings.ToLower(eoa)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.TpArm
	for _, arm := range s.tpArms {
		if strings.ToLower(arm.EOAAddress) == target {
			out = append(out, arm.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
