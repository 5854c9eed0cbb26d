package ws

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// HeartbeatInterval is how often the session probes the client.
	HeartbeatInterval = 30 * time.Second

	// MaxMissedHeartbeats forces termination once this many intervals
	// pass without a liveness acknowledgment.
	MaxMissedHeartbeats = 3

	// Inbound frames are throttled per connection. Clients have nothing
	// meaningful to send, so a sustained flood is treated as abuse.
	inboundRateLimit = 20.0 / 60.0
	inboundRateBurst = 20
)

var ErrSessionClosed = errors.New("session closed")

// State models the one-way session lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Identity ties a live connection to the credential that opened it.
type Identity struct {
	ConnectionID string
	Owner        string
	KeyID        int
}

// Session owns one live client connection. While active it runs three
// concurrent duties: a write pump draining the delivery queue, a read
// pump watching for close frames and liveness acks, and a heartbeat
// loop probing the client. The duties share no state beyond the queue
// and a single-slot heartbeat reset signal.
type Session struct {
	Identity Identity

	transport Transport
	registry  *Registry
	log       *slog.Logger
	limiter   *rate.Limiter

	state atomic.Int32

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool

	reset chan struct{}
	done  chan struct{}
	stop  sync.Once

	heartbeatEvery time.Duration
}

func newSession(identity Identity, t Transport, registry *Registry, log *slog.Logger) *Session {
	s := &Session{
		Identity:  identity,
		transport: t,
		registry:  registry,
		log: log.With(
			slog.String("connection_id", identity.ConnectionID),
			slog.String("owner", identity.Owner),
			slog.Int("key_id", identity.KeyID),
		),
		limiter:        rate.NewLimiter(rate.Limit(inboundRateLimit), inboundRateBurst),
		reset:          make(chan struct{}, 1),
		done:           make(chan struct{}),
		heartbeatEvery: HeartbeatInterval,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run activates the session and blocks until it terminates, then
// deregisters the identity. Nothing is enqueued to this session after
// Run returns.
func (s *Session) Run() {
	s.state.Store(int32(StateActive))
	s.transport.OnPong(s.ackLiveness)
	s.log.Info("session started")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.writePump() }()
	go func() { defer wg.Done(); s.readPump() }()
	go func() { defer wg.Done(); s.heartbeat() }()
	wg.Wait()

	s.state.Store(int32(StateClosed))
	s.registry.RemoveConnection(s.Identity.KeyID)
	s.log.Info("session closed")
}

// Enqueue appends a frame to the delivery queue in arrival order. The
// queue is unbounded; a stalled client accumulates frames until a
// transport write fails and tears the session down.
func (s *Session) Enqueue(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.queue = append(s.queue, payload)
	s.cond.Signal()
	return nil
}

// ackLiveness resets the heartbeat counter. The single-slot channel
// makes the signal level-triggered: repeated acks within one interval
// collapse into one reset.
func (s *Session) ackLiveness() {
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// terminate is the single teardown entry point. Whichever duty first
// hits a terminal condition lands here; the transport close unblocks
// the others so they exit on their own.
func (s *Session) terminate(reason string, err error) {
	s.stop.Do(func() {
		s.state.Store(int32(StateClosing))
		if err != nil {
			s.log.Info("terminating session", "reason", reason, "error", err)
		} else {
			s.log.Info("terminating session", "reason", reason)
		}

		close(s.done)
		_ = s.transport.Close()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cond.Broadcast()
	})
}

func (s *Session) writePump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		payload := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if err := s.transport.WriteFrame(payload); err != nil {
			s.terminate("write failed", err)
			return
		}
	}
}

func (s *Session) readPump() {
	for {
		kind, _, err := s.transport.ReadFrame()
		if err != nil {
			if kind == FrameClose {
				s.terminate("client closed connection", nil)
			} else {
				s.terminate("read failed", err)
			}
			return
		}

		switch kind {
		case FrameClose:
			s.terminate("client closed connection", nil)
			return
		case FrameData:
			if !s.limiter.Allow() {
				s.terminate("inbound rate limit exceeded", nil)
				return
			}
			// Inbound data frames carry no protocol meaning.
		default:
		}
	}
}

func (s *Session) heartbeat() {
	ticker := time.NewTicker(s.heartbeatEvery)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-s.done:
			return
		case <-s.reset:
			missed = 0
		case <-ticker.C:
			// An ack may be pending while the tick fires; honor it
			// before judging liveness.
			select {
			case <-s.reset:
				missed = 0
			default:
			}
			if missed >= MaxMissedHeartbeats {
				s.terminate("heartbeat exhausted", nil)
				return
			}
			missed++
			if err := s.transport.WritePing(); err != nil {
				s.terminate("ping failed", err)
				return
			}
		}
	}
}
