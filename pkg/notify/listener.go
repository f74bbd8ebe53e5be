package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Event is a single NOTIFY payload received from Postgres.
type Event struct {
	Channel string
	Payload string
}

// ListenerConfig tunes reconnect behaviour for the Postgres listener.
type ListenerConfig struct {
	Channel      string
	MinReconnect time.Duration
	MaxReconnect time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger
}

// Listener wraps pq.Listener with lifecycle management and a typed event stream.
type Listener struct {
	dsn          string
	channel      string
	pingInterval time.Duration
	logger       *zap.Logger

	pq     *pq.Listener
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a listener for the configured channel. Start must be
// called before events are delivered.
func NewListener(dsn string, cfg ListenerConfig) *Listener {
	if cfg.MinReconnect <= 0 {
		cfg.MinReconnect = 10 * time.Second
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = time.Minute
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	logger := cfg.Logger
	pl := pq.NewListener(dsn, cfg.MinReconnect, cfg.MaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})

	return &Listener{
		dsn:          dsn,
		channel:      cfg.Channel,
		pingInterval: cfg.PingInterval,
		logger:       logger,
		pq:           pl,
		events:       make(chan Event, 32),
		done:         make(chan struct{}),
	}
}

// Events exposes the receive-only notification stream.
func (l *Listener) Events() <-chan Event {
	return l.events
}

// Start subscribes to the channel and pumps notifications until ctx is
// cancelled or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.pq.Listen(l.channel); err != nil {
		return fmt.Errorf("listen on %s: %w", l.channel, err)
	}

	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
	l.logger.Sugar().Infow("postgres listener started", "channel", l.channel)
	return nil
}

// Stop terminates the pump goroutine and closes the underlying connection.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.done
	_ = l.pq.Close()
	l.logger.Sugar().Infow("postgres listener stopped", "channel", l.channel)
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	defer close(l.events)

	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.pq.Notify:
			// Notify delivers nil after a reconnect; the next poll re-fetches anyway.
			if n == nil {
				continue
			}
			select {
			case l.events <- Event{Channel: n.Channel, Payload: n.Extra}:
			default:
				l.logger.Warn("notification dropped, slow consumer", zap.String("channel", n.Channel))
			}
		case <-ticker.C:
			if err := l.pq.Ping(); err != nil {
				l.logger.Warn("listener ping failed", zap.Error(err))
			}
		}
	}
}
