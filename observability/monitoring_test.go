package observability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	req := require.New(t)
	m := NewMonitor()

	m.IncrMessagesSent()
	m.IncrEventsPublished()
	m.IncrEventsPublished()
	m.IncrEventsDropped()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	s := m.Snapshot()
	req.Equal(uint64(1), s.MessagesSent)
	req.Equal(uint64(2), s.EventsPublished)
	req.Equal(uint64(1), s.EventsDropped)
	req.Equal(int64(1), s.ActiveSessions)
}

func TestMonitor_Nil_Is_Noop(t *testing.T) {
	var m *Monitor
	m.IncrMessagesSent()
	m.SessionOpened()
	require.Equal(t, Stats{}, m.Snapshot())
}
