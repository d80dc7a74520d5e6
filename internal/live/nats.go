package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/kinsync/internal/logging"
)

// natsConn is the part of *nats.Conn the broker uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
	Close()
}

// natsConnect is a variable to allow mocking in tests.
var natsConnect = func(url string) (natsConn, error) {
	return nats.Connect(url, nats.Name("kinsync"))
}

// NATSBroker publishes over core NATS subjects.
type NATSBroker struct {
	conn   natsConn
	logger *slog.Logger
	closed atomic.Bool
}

// NewNATSBroker connects to url.
func NewNATSBroker(url string, logger *slog.Logger) (*NATSBroker, error) {
	conn, err := natsConnect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return newNATSBroker(conn, logger), nil
}

func newNATSBroker(conn natsConn, logger *slog.Logger) *NATSBroker {
	return &NATSBroker{conn: conn, logger: logging.Component(logger, "live-nats")}
}

func (b *NATSBroker) Name() string { return "nats" }

func (b *NATSBroker) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	if subject == "" {
		return ErrInvalidSubject
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, pattern string, bufSize int) (<-chan Message, func(), error) {
	if b.closed.Load() {
		return nil, nil, ErrBrokerClosed
	}
	if pattern == "" {
		return nil, nil, ErrInvalidSubject
	}
	if bufSize < 0 {
		bufSize = 0
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Message, bufSize)
	var (
		mu   sync.Mutex
		done bool
	)

	sub, err := b.conn.Subscribe(pattern, func(m *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case out <- Message{Subject: m.Subject, Data: m.Data}:
		case <-subCtx.Done():
		}
	})
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	go func() {
		<-subCtx.Done()
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe failed", "pattern", pattern, "error", err)
		}
		mu.Lock()
		done = true
		close(out)
		mu.Unlock()
	}()

	return out, cancel, nil
}

func (b *NATSBroker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("nats drain failed", "error", err)
		b.conn.Close()
	}
	return nil
}
