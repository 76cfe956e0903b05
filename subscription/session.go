package subscription

import (
	"dm-core/contract"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/sink"
	"sync"
	"sync/atomic"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Session is one live binding of a client to its private channel.
type Session struct {
	gateway      *Gateway
	userID       domain.UserID
	channel      string
	sink         *sink.ChannelSink
	subscription contract.Subscription
	state        atomic.Int32
	once         sync.Once
	done         chan struct{}
}

func newSession(gateway *Gateway, userID domain.UserID, sink *sink.ChannelSink) *Session {
	return &Session{
		gateway: gateway,
		userID:  userID,
		channel: domain.ChannelName(userID),
		sink:    sink,
		done:    make(chan struct{}),
	}
}

func (s *Session) UserID() domain.UserID { return s.userID }

func (s *Session) Channel() string { return s.channel }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(state State) { s.state.Store(int32(state)) }

// Events stays open after Close, select on Done to stop reading.
func (s *Session) Events() <-chan event.Envelope { return s.sink.Events() }

func (s *Session) Done() <-chan struct{} { return s.done }

// Close releases the binding. Safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.setState(Disconnected)
		s.gateway.release(s)
		close(s.done)
	})
	return nil
}
