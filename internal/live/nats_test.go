package live

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn delivers published messages synchronously to matching handlers.
type fakeConn struct {
	mu         sync.Mutex
	handlers   map[string][]nats.MsgHandler
	published  []Message
	publishErr error
	subErr     error
	drainErr   error
	drained    bool
	closed     bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string][]nats.MsgHandler)}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	if c.publishErr != nil {
		c.mu.Unlock()
		return c.publishErr
	}
	c.published = append(c.published, Message{Subject: subject, Data: data})
	var targets []nats.MsgHandler
	for pattern, hs := range c.handlers {
		if matchSubject(pattern, subject) {
			targets = append(targets, hs...)
		}
	}
	c.mu.Unlock()

	for _, h := range targets {
		h(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (c *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	c.handlers[subject] = append(c.handlers[subject], cb)
	return nil, nil
}

func (c *fakeConn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
	return c.drainErr
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestNATSBroker_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	b := newNATSBroker(conn, nil)
	assert.Equal(t, "nats", b.Name())

	ch, stop, err := b.Subscribe(ctx, "kinsync.app.>", 2)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "kinsync.app.books", []byte(`{}`)))
	assert.Equal(t, Message{Subject: "kinsync.app.books", Data: []byte(`{}`)}, <-ch)

	stop()
	_, open := <-ch
	assert.False(t, open)

	// late deliveries after unsubscribe are dropped
	require.NoError(t, b.Publish(ctx, "kinsync.app.books", []byte(`{}`)))
	assert.Len(t, conn.published, 2)
}

func TestNATSBroker_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	conn := newFakeConn()
	conn.publishErr = boom
	conn.subErr = boom
	b := newNATSBroker(conn, nil)

	assert.ErrorIs(t, b.Publish(ctx, "a.b", nil), boom)
	_, _, err := b.Subscribe(ctx, "a.b", 1)
	assert.ErrorIs(t, err, boom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, b.Publish(cancelled, "a.b", nil), context.Canceled)
	assert.ErrorIs(t, b.Publish(ctx, "", nil), ErrInvalidSubject)
}

func TestNATSBroker_Close(t *testing.T) {
	conn := newFakeConn()
	conn.drainErr = errors.New("drain")
	b := newNATSBroker(conn, nil)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.True(t, conn.drained)
	assert.True(t, conn.closed, "failed drain falls back to close")
	assert.ErrorIs(t, b.Publish(context.Background(), "a.b", nil), ErrBrokerClosed)
}

func TestNewNATSBroker(t *testing.T) {
	orig := natsConnect
	defer func() { natsConnect = orig }()

	natsConnect = func(string) (natsConn, error) { return nil, errors.New("refused") }
	_, err := NewNATSBroker("nats://127.0.0.1:1", nil)
	assert.ErrorContains(t, err, "refused")

	conn := newFakeConn()
	natsConnect = func(url string) (natsConn, error) {
		assert.Equal(t, "nats://example:4222", url)
		return conn, nil
	}
	b, err := NewNATSBroker("nats://example:4222", nil)
	require.NoError(t, err)
	assert.NotNil(t, b)
}
