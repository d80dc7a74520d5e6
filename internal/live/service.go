package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/syntrixbase/kinsync/internal/config"
	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/internal/metrics"
)

const subscribeBuffer = 64

// Service encodes change events and moves them through a Broker.
type Service struct {
	broker Broker
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewService(broker Broker, prefix string, logger *slog.Logger) *Service {
	return &Service{
		broker: broker,
		prefix: prefix,
		logger: logging.Component(logger, "live"),
		now:    time.Now,
	}
}

// Open builds the service described by cfg: NATS when a URL is configured,
// the in-process broker otherwise.
func Open(cfg config.LiveConfig, logger *slog.Logger) (*Service, error) {
	var broker Broker = NewMemoryBroker()
	if cfg.NATSURL != "" {
		nb, err := NewNATSBroker(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		broker = nb
	}
	return NewService(broker, cfg.SubjectPrefix, logger), nil
}

func (s *Service) Broker() Broker { return s.broker }

// Notify publishes ev on its collection subject. A zero timestamp is set to
// the current time.
func (s *Service) Notify(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	subject := Subject(s.prefix, ev.AppKey, ev.Collection)
	if err := s.broker.Publish(ctx, subject, data); err != nil {
		metrics.PublishErrors.WithLabelValues(s.broker.Name()).Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(s.broker.Name()).Inc()
	s.logger.Debug("event published", "subject", subject, "op", ev.Op, "ids", len(ev.IDs))
	return nil
}

// Subscribe follows events of one collection, or of every collection of the
// app when collection is empty. Undecodable messages are logged and dropped.
func (s *Service) Subscribe(ctx context.Context, appKey, collection string) (<-chan Event, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	src, _, err := s.broker.Subscribe(subCtx, Subject(s.prefix, appKey, collection), subscribeBuffer)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan Event, subscribeBuffer)
	go func() {
		defer close(out)
		for msg := range src {
			var ev Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				s.logger.Warn("dropping malformed event", "subject", msg.Subject, "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-subCtx.Done():
			}
		}
	}()
	return out, cancel, nil
}

func (s *Service) Close() error {
	return s.broker.Close()
}
