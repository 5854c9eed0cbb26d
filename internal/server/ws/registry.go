package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrRegistryInitialized = errors.New("connection registry already initialized")
	ErrAlreadyConnected    = errors.New("identity already has a live session")
	ErrNotConnected        = errors.New("no live session for identity")
)

var registryUp atomic.Bool

// Registry tracks at most one live session per identity id. It is a
// process-wide singleton built once at startup via InitRegistry.
type Registry struct {
	// Sealer, when set, wraps every outbound payload in a signed
	// envelope. Leave nil to send bare JSON frames.
	Sealer *Sealer

	log *slog.Logger

	mu       sync.RWMutex
	sessions map[int]*Session
}

// NewRegistry builds an unguarded instance for test fixtures.
// Production code goes through InitRegistry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[int]*Session),
	}
}

// InitRegistry constructs the singleton registry. A second call fails
// rather than silently replacing the first instance.
func InitRegistry(log *slog.Logger) (*Registry, error) {
	if !registryUp.CompareAndSwap(false, true) {
		return nil, ErrRegistryInitialized
	}
	return NewRegistry(log), nil
}

// AddConnection admits a new session for the identity, refusing when
// one is already live. The existing session is never disturbed by a
// refused attempt. The caller starts the returned session with Run.
func (r *Registry) AddConnection(identity Identity, t Transport) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[identity.KeyID]; ok {
		return nil, ErrAlreadyConnected
	}

	s := newSession(identity, t, r, r.log)
	r.sessions[identity.KeyID] = s
	return s, nil
}

// RemoveConnection drops the entry for keyID if present. Idempotent.
func (r *Registry) RemoveConnection(keyID int) {
	r.mu.Lock()
	delete(r.sessions, keyID)
	r.mu.Unlock()
}

// Connected reports whether keyID has a live session.
func (r *Registry) Connected(keyID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[keyID]
	return ok
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// frame serializes payload, sealing it when a Sealer is configured.
func (r *Registry) frame(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if r.Sealer == nil {
		return data, nil
	}
	envelope, err := r.Sealer.Seal(data, time.Now())
	if err != nil {
		return nil, err
	}
	return []byte(envelope), nil
}

// SendToClient serializes payload and enqueues it for one identity.
func (r *Registry) SendToClient(payload any, keyID int) error {
	data, err := r.frame(payload)
	if err != nil {
		return err
	}

	r.mu.RLock()
	s, ok := r.sessions[keyID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	return s.Enqueue(data)
}

// Broadcast delivers payload to each target independently; one failed
// target never blocks the rest. When keyIDs is empty the target set is
// a snapshot of all registered ids at call time. Failed targets are
// deregistered, clearing stale handles. Partial failure is reported,
// never raised.
func (r *Registry) Broadcast(payload any, keyIDs ...int) (successCount int, failedIDs []int) {
	data, err := r.frame(payload)
	if err != nil {
		r.log.Error("broadcast payload not serializable", "error", err)
		return 0, nil
	}

	targets := make(map[int]*Session)
	r.mu.RLock()
	if len(keyIDs) == 0 {
		for id, s := range r.sessions {
			targets[id] = s
		}
	} else {
		for _, id := range keyIDs {
			if s, ok := r.sessions[id]; ok {
				targets[id] = s
			} else {
				failedIDs = append(failedIDs, id)
			}
		}
	}
	r.mu.RUnlock()

	for id, s := range targets {
		if err := s.Enqueue(data); err != nil {
			failedIDs = append(failedIDs, id)
			continue
		}
		successCount++
	}

	for _, id := range failedIDs {
		r.RemoveConnection(id)
	}
	sort.Ints(failedIDs)

	return successCount, failedIDs
}
