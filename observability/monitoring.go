package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// Stats is the snapshot served on the debug endpoint.
type Stats struct {
	MessagesSent     uint64 `json:"messages_sent"`
	EventsPublished  uint64 `json:"events_published"`
	PublishFailures  uint64 `json:"publish_failures"`
	EventsDropped    uint64 `json:"events_dropped"`
	ActiveSessions   int64  `json:"active_sessions"`
	ConversationsNew uint64 `json:"conversations_created"`
	AllocMemMb       uint64 `json:"alloc_mem_mb"`
	NumGC            uint32 `json:"num_gc"`
}

// Monitor aggregates delivery counters. The zero value is ready to use
// and a nil *Monitor ignores every call.
type Monitor struct {
	messagesSent     atomic.Uint64
	eventsPublished  atomic.Uint64
	publishFailures  atomic.Uint64
	eventsDropped    atomic.Uint64
	conversationsNew atomic.Uint64
	activeSessions   atomic.Int64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) IncrMessagesSent() {
	if m != nil {
		m.messagesSent.Add(1)
	}
}

func (m *Monitor) IncrEventsPublished() {
	if m != nil {
		m.eventsPublished.Add(1)
	}
}

func (m *Monitor) IncrPublishFailures() {
	if m != nil {
		m.publishFailures.Add(1)
	}
}

func (m *Monitor) IncrEventsDropped() {
	if m != nil {
		m.eventsDropped.Add(1)
	}
}

func (m *Monitor) IncrConversationsCreated() {
	if m != nil {
		m.conversationsNew.Add(1)
	}
}

func (m *Monitor) SessionOpened() {
	if m != nil {
		m.activeSessions.Add(1)
	}
}

func (m *Monitor) SessionClosed() {
	if m != nil {
		m.activeSessions.Add(-1)
	}
}

func (m *Monitor) Snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return Stats{
		MessagesSent:     m.messagesSent.Load(),
		EventsPublished:  m.eventsPublished.Load(),
		PublishFailures:  m.publishFailures.Load(),
		EventsDropped:    m.eventsDropped.Load(),
		ActiveSessions:   m.activeSessions.Load(),
		ConversationsNew: m.conversationsNew.Load(),
		AllocMemMb:       mem.Alloc / 1024 / 1024,
		NumGC:            mem.NumGC,
	}
}

// Reporter periodically logs a snapshot, run under the supervisor.
type Reporter struct {
	log      *slog.Logger
	monitor  *Monitor
	interval time.Duration
}

func NewReporter(log *slog.Logger, monitor *Monitor, interval time.Duration) *Reporter {
	return &Reporter{log: log, monitor: monitor, interval: interval}
}

func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := r.monitor.Snapshot()
			r.log.Debug("Delivery stats",
				"messages_sent", s.MessagesSent,
				"events_published", s.EventsPublished,
				"publish_failures", s.PublishFailures,
				"events_dropped", s.EventsDropped,
				"active_sessions", s.ActiveSessions,
				"mem_mb", s.AllocMemMb,
			)
		}
	}
}
