package socketio

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"messenger-core/presence"
)

const touchTimeout = 5 * time.Second

type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Registry counts the open connections of each user in this process. Presence
// follows the first open and the last close; last-seen is stamped on open,
// on every heartbeat and on close.
type Registry struct {
	mu        sync.Mutex
	conns     map[string]*userConns
	presence  presence.Store
	users     LastSeenToucher
	heartbeat time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// userConns orders the presence transitions of one user. r.mu is never held
// while a presence call is in flight.
type userConns struct {
	mu   sync.Mutex
	n    int
	gone bool
}

func NewRegistry(p presence.Store, users LastSeenToucher, heartbeat time.Duration, log *zap.Logger) *Registry {
	return &Registry{
		conns:     make(map[string]*userConns),
		presence:  p,
		users:     users,
		heartbeat: heartbeat,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Session is one authenticated connection.
type Session struct {
	UserID  string
	limiter *rate.Limiter
	cancel  context.CancelFunc
	once    sync.Once
	r       *Registry
}

// Allow reports whether the session may handle one more inbound event now.
func (s *Session) Allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// entry returns the live counter of userID with its lock held.
func (r *Registry) entry(userID string) *userConns {
	for {
		r.mu.Lock()
		c, ok := r.conns[userID]
		if !ok {
			c = &userConns{}
			r.conns[userID] = c
		}
		r.mu.Unlock()

		c.mu.Lock()
		if !c.gone {
			return c
		}
		c.mu.Unlock()
	}
}

// Open registers a connection of userID and starts its heartbeat.
func (r *Registry) Open(ctx context.Context, userID string, limiter *rate.Limiter) *Session {
	c := r.entry(userID)
	c.n++
	if c.n == 1 {
		pctx, cancel := context.WithTimeout(ctx, touchTimeout)
		if err := r.presence.Add(pctx, userID); err != nil {
			r.log.Warn("presence add failed", zap.String("user", userID), zap.Error(err))
		}
		cancel()
	}
	c.mu.Unlock()

	r.touch(userID)

	hbCtx, cancel := context.WithCancel(context.Background())
	s := &Session{UserID: userID, limiter: limiter, cancel: cancel, r: r}
	go r.beat(hbCtx, userID)
	return s
}

// Close ends the session. Only the first call has an effect.
func (s *Session) Close(ctx context.Context) {
	s.once.Do(func() {
		s.cancel()
		r := s.r

		c := r.entry(s.UserID)
		c.n--
		if c.n <= 0 {
			// a reopen waits on c.mu until the remove has landed
			pctx, cancel := context.WithTimeout(ctx, touchTimeout)
			if err := r.presence.Remove(pctx, s.UserID); err != nil {
				r.log.Warn("presence remove failed", zap.String("user", s.UserID), zap.Error(err))
			}
			cancel()

			c.gone = true
			r.mu.Lock()
			delete(r.conns, s.UserID)
			r.mu.Unlock()
		}
		c.mu.Unlock()

		r.touch(s.UserID)
	})
}

// Connections returns the number of open local connections of userID.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	c, ok := r.conns[userID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return 0
	}
	return c.n
}

func (r *Registry) beat(ctx context.Context, userID string) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() == nil {
				r.touch(userID)
			}
		}
	}
}

func (r *Registry) touch(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := r.users.TouchLastSeen(ctx, userID, r.now()); err != nil {
		r.log.Warn("last seen update failed", zap.String("user", userID), zap.Error(err))
	}
}
