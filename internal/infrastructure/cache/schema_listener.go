// Package cache keeps the schema snapshot fresh with PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"crudschema/internal/schema"
	"crudschema/pkg/logger"
)

// Reloader rebuilds the schema snapshot.
type Reloader interface {
	Reload(ctx context.Context) ([]schema.Issue, error)
}

// ListenConn is a dedicated connection that can receive notifications.
type ListenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

// ConnSource acquires a ListenConn.
type ConnSource func(ctx context.Context) (ListenConn, error)

// PoolSource acquires listen connections from a pgx pool.
func PoolSource(pool *pgxpool.Pool) ConnSource {
	return func(ctx context.Context) (ListenConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return poolConn{conn}, nil
	}
}

type poolConn struct{ *pgxpool.Conn }

func (c poolConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.Conn.Conn().WaitForNotification(ctx)
}

// SchemaListener reloads schemas whenever a NOTIFY arrives on its channel.
// The payload is only logged; every notification reloads the whole set.
type SchemaListener struct {
	source   ConnSource
	reloader Reloader
	channel  string

	// RetryDelay is the pause after a failed acquire or LISTEN.
	RetryDelay time.Duration
	// PollTimeout bounds a single wait so shutdown is noticed.
	PollTimeout time.Duration

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewSchemaListener creates a listener for channel.
func NewSchemaListener(source ConnSource, reloader Reloader, channel string) *SchemaListener {
	return &SchemaListener{
		source:      source,
		reloader:    reloader,
		channel:     channel,
		RetryDelay:  time.Second,
		PollTimeout: 30 * time.Second,
	}
}

// Start begins listening in the background. Calling it twice is a no-op.
func (l *SchemaListener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(l.ctx, "schema listener started", "channel", l.channel)
}

// Stop cancels the listener and waits for it to exit.
func (l *SchemaListener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
	logger.Info(context.Background(), "schema listener stopped")
}

func (l *SchemaListener) listenLoop() {
	defer l.wg.Done()

	for l.ctx.Err() == nil {
		conn, err := l.source(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			l.pause()
			continue
		}

		if _, err := conn.Exec(l.ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "channel", l.channel, "error", err)
			conn.Release()
			l.pause()
			continue
		}

		logger.Info(l.ctx, "listening for schema notifications", "channel", l.channel)
		l.waitForNotifications(conn)
		conn.Release()
	}
}

func (l *SchemaListener) pause() {
	select {
	case <-l.ctx.Done():
	case <-time.After(l.RetryDelay):
	}
}

// waitForNotifications returns on shutdown or when the connection breaks.
func (l *SchemaListener) waitForNotifications(conn ListenConn) {
	for {
		ctx, cancel := context.WithTimeout(l.ctx, l.PollTimeout)
		n, err := conn.WaitForNotification(ctx)
		timedOut := ctx.Err() != nil
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if timedOut {
				continue
			}
			logger.Warn(l.ctx, "notification wait failed, reconnecting", "error", err)
			return
		}
		if n.Channel != l.channel {
			continue
		}

		logger.Debug(l.ctx, "received notification", "channel", n.Channel, "payload", n.Payload)
		l.reload(n.Payload)
	}
}

func (l *SchemaListener) reload(payload string) {
	issues, err := l.reloader.Reload(l.ctx)
	if err != nil {
		logger.Error(l.ctx, "schema reload failed", "payload", payload, "error", err)
		return
	}
	logger.Info(l.ctx, "schemas reloaded on notify", "payload", payload, "issues", len(issues))
}
