package sink

import (
	"context"
	"dm-core/contract"
	"dm-core/domain/event"
	"dm-core/observability"
	"log/slog"
)

var _ contract.EventSink = (*ChannelSink)(nil)

// ChannelSink buffers envelopes for one connection.
// When the buffer is full the event is dropped: a slow reader never stalls a publisher.
type ChannelSink struct {
	log     *slog.Logger
	monitor *observability.Monitor
	events  chan event.Envelope
}

func NewChannelSink(log *slog.Logger, monitor *observability.Monitor, bufferSize int) *ChannelSink {
	return &ChannelSink{log: log, monitor: monitor, events: make(chan event.Envelope, bufferSize)}
}

// Consume is called by the channel provider
// The connection handler drains Events()
func (s *ChannelSink) Consume(ctx context.Context, env event.Envelope) error {
	select {
	case s.events <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.monitor.IncrEventsDropped()
		s.log.Debug("Connection buffer full, event dropped", "kind", env.Kind)
		return nil
	}
}

func (s *ChannelSink) Events() <-chan event.Envelope {
	return s.events
}
