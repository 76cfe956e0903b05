// Package subscription binds a connected client to its private channel.
// A session receives what is published while it is Subscribed and nothing else:
// there is no replay, a reconnect is a new session and the client re-fetches.
package subscription

import (
	"context"
	"dm-core/contract"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/errors"
	"dm-core/observability"
	"dm-core/sink"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const presenceTimeout = time.Second

type Gateway struct {
	log              *slog.Logger
	provider         contract.IChannelProvider
	monitor          *observability.Monitor
	subscribeTimeout time.Duration
	bufferSize       int

	mu       sync.Mutex
	presence map[domain.UserID]int
	sessions map[*Session]struct{}
	closed   bool
}

func NewGateway(log *slog.Logger, provider contract.IChannelProvider, monitor *observability.Monitor,
	subscribeTimeout time.Duration, bufferSize int) *Gateway {
	return &Gateway{
		log:              log,
		provider:         provider,
		monitor:          monitor,
		subscribeTimeout: subscribeTimeout,
		bufferSize:       bufferSize,
		presence:         make(map[domain.UserID]int),
		sessions:         make(map[*Session]struct{}),
	}
}

type bindResult struct {
	subscription contract.Subscription
	err          error
}

// Connect opens a session on user-<id>. It fails with ErrTransport when the
// provider does not confirm the subscription within the subscribe timeout.
func (g *Gateway) Connect(ctx context.Context, userID domain.UserID) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: no identity", errors.ErrUnauthorized)
	}
	if g.isClosed() {
		return nil, fmt.Errorf("%w: gateway is shutting down", errors.ErrTransport)
	}
	session := newSession(g, userID, sink.NewChannelSink(g.log, g.monitor, g.bufferSize))
	session.setState(Connecting)

	subscribeCtx, cancel := context.WithTimeout(ctx, g.subscribeTimeout)
	defer cancel()

	// The provider may ignore its context, the timeout still holds.
	results := make(chan bindResult, 1)
	go func() {
		subscription, err := g.provider.Subscribe(subscribeCtx, session.channel, session.sink)
		results <- bindResult{subscription: subscription, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			session.setState(Disconnected)
			return nil, asTransport(session.channel, res.err)
		}
		session.subscription = res.subscription
	case <-subscribeCtx.Done():
		session.setState(Disconnected)
		go func() {
			// late confirmation, release it
			if res := <-results; res.err == nil {
				_ = res.subscription.Close()
			}
		}()
		return nil, fmt.Errorf("%w: subscribe %s: %v", errors.ErrTransport, session.channel, subscribeCtx.Err())
	}

	session.setState(Subscribed)
	count, ok := g.track(session)
	if !ok {
		session.setState(Disconnected)
		_ = session.subscription.Close()
		return nil, fmt.Errorf("%w: gateway is shutting down", errors.ErrTransport)
	}
	g.monitor.SessionOpened()
	g.log.Debug("Session subscribed", "user_id", userID, "channel", session.channel)
	g.publishPresence(userID, count)
	return session, nil
}

// Online reports how many sessions this instance holds for a user.
func (g *Gateway) Online(userID domain.UserID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.presence[userID]
}

// CloseAll ends every live session and refuses new ones.
// Stream handlers return once their session is done, so servers can stop gracefully.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	g.closed = true
	sessions := make([]*Session, 0, len(g.sessions))
	for session := range g.sessions {
		sessions = append(sessions, session)
	}
	g.mu.Unlock()

	for _, session := range sessions {
		_ = session.Close()
	}
	g.log.Info("Subscription gateway closed", "sessions", len(sessions))
}

func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// track registers the session and counts it in the same critical section as
// CloseAll, so a session is either closed by it or refused.
func (g *Gateway) track(session *Session) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, false
	}
	g.sessions[session] = struct{}{}
	g.presence[session.userID]++
	return g.presence[session.userID], true
}

func (g *Gateway) release(session *Session) {
	g.mu.Lock()
	delete(g.sessions, session)
	g.mu.Unlock()
	if session.subscription != nil {
		if err := session.subscription.Close(); err != nil {
			g.log.Debug("Subscription close failed", "channel", session.channel, "error", err)
		}
	}
	g.monitor.SessionClosed()
	g.log.Debug("Session closed", "user_id", session.userID)
	g.changePresence(session.userID, -1)
}

// changePresence publishes the new count on the user's own channel, so every
// other session of that user learns about it.
func (g *Gateway) changePresence(userID domain.UserID, delta int) {
	g.mu.Lock()
	count := g.presence[userID] + delta
	if count <= 0 {
		count = 0
		delete(g.presence, userID)
	} else {
		g.presence[userID] = count
	}
	g.mu.Unlock()
	g.publishPresence(userID, count)
}

func (g *Gateway) publishPresence(userID domain.UserID, count int) {
	env, err := event.Encode(event.PresenceChanged{UserID: userID, Count: count})
	if err != nil {
		g.log.Error("Presence encoding failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := g.provider.Publish(ctx, domain.ChannelName(userID), env); err != nil {
		g.log.Debug("Presence publish failed", "user_id", userID, "error", err)
	}
}

func asTransport(channel string, err error) error {
	if errors.Is(err, errors.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: subscribe %s: %v", errors.ErrTransport, channel, err)
}
