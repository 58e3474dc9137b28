package blinds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/user/motionblinds-ble/logger"
)

// SupervisorConfig paces reconnect attempts
type SupervisorConfig struct {
	MinInterval time.Duration // between attempts
	Burst       int
	MaxFailures uint32        // consecutive failed handshakes before the breaker opens
	OpenTimeout time.Duration // how long the breaker stays open

	// HandshakeTimeout bounds one attempt; 0 waits for Established or Idle
	HandshakeTimeout time.Duration
}

// DefaultSupervisorConfig matches the config package defaults
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MinInterval:      5 * time.Second,
		Burst:            1,
		MaxFailures:      5,
		OpenTimeout:      time.Minute,
		HandshakeTimeout: 45 * time.Second,
	}
}

// Supervisor keeps a blind connected, reconnecting whenever the session
// drops back to Idle
type Supervisor struct {
	manager   *Manager
	handshake *Handshake
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[State]
	cfg       SupervisorConfig
	prefix    string
}

func NewSupervisor(m *Manager, h *Handshake, cfg SupervisorConfig) *Supervisor {
	def := DefaultSupervisorConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	s := &Supervisor{
		manager:   m,
		handshake: h,
		limiter:   rate.NewLimiter(rate.Every(cfg.MinInterval), cfg.Burst),
		cfg:       cfg,
		prefix:    h.prefix + " supervisor",
	}
	maxFailures := cfg.MaxFailures
	s.breaker = gobreaker.NewCircuitBreaker[State](gobreaker.Settings{
		Name:        h.opts.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(s.prefix, "circuit %s -> %s", from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return s
}

// BreakerState reports the circuit breaker state
func (s *Supervisor) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Run connects and reconnects until ctx is done, then disconnects
func (s *Supervisor) Run(ctx context.Context) error {
	changes, cancel := s.handshake.Watch()
	defer cancel()
	defer s.manager.Disconnect()

	for {
		if s.handshake.State() != StateEstablished {
			if err := s.limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}

			_, err := s.breaker.Execute(func() (State, error) {
				return s.attempt(ctx, changes)
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					logger.Debug(s.prefix, "circuit open, not connecting")
				} else {
					logger.Warn(s.prefix, "handshake failed: %v", err)
				}
				continue
			}
		}

		logger.Info(s.prefix, "session established")
		if err := waitForState(ctx, changes, StateIdle); err != nil {
			return err
		}
		logger.Info(s.prefix, "session lost, reconnecting")
	}
}

func (s *Supervisor) attempt(ctx context.Context, changes <-chan StateChange) (State, error) {
	drain(changes)
	if !s.manager.Connect() && s.handshake.State() == StateIdle {
		// old link still closing, nothing will move the handshake
		return StateIdle, ErrLinkBusy
	}

	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}

	for {
		select {
		case <-ctx.Done():
			s.manager.Disconnect()
			return StateIdle, fmt.Errorf("handshake: %w", ctx.Err())
		case ch := <-changes:
			switch ch.To {
			case StateEstablished:
				return ch.To, nil
			case StateIdle:
				return ch.To, fmt.Errorf("%w in %s (%s)", ErrHandshakeAborted, ch.From, ch.Cause)
			}
		}
	}
}

func waitForState(ctx context.Context, changes <-chan StateChange, want State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch := <-changes:
			if ch.To == want {
				return nil
			}
		}
	}
}

func drain(changes <-chan StateChange) {
	for {
		select {
		case <-changes:
		default:
			return
		}
	}
}
