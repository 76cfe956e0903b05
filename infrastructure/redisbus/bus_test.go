package redisbus

import (
	"context"
	"dm-core/domain/event"
	"dm-core/errors"
	"dm-core/runtime"
	"dm-core/sink"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type node struct {
	bus   *Bus
	relay *Relay
}

func startNode(t *testing.T, addr string) node {
	t.Helper()
	log := silentLogger()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	local := runtime.NewLocalProvider(log, runtime.NewRegistry())
	n := node{bus: NewBus(log, client, local), relay: NewRelay(log, client, local)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.relay.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-n.relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay never subscribed")
	}
	return n
}

func TestBus_Cross_Instance_Delivery(t *testing.T) {
	req := require.New(t)
	server := miniredis.RunT(t)
	ctx := context.Background()

	// Given bob connected on node A and alice publishing from node B
	nodeA := startNode(t, server.Addr())
	nodeB := startNode(t, server.Addr())
	bob := sink.NewChannelSink(silentLogger(), nil, 4)
	sub, err := nodeA.bus.Subscribe(ctx, "user-bob", bob)
	req.NoError(err)
	defer func() { _ = sub.Close() }()

	payload, _ := json.Marshal(map[string]string{"content": "hej"})
	env := event.Envelope{Kind: event.MessageCreatedKind, Payload: payload}

	// When node B publishes on bob's channel
	req.NoError(nodeB.bus.Publish(ctx, "user-bob", env))

	// Then bob receives it through node A
	select {
	case got := <-bob.Events():
		req.Equal(event.MessageCreatedKind, got.Kind)
		req.JSONEq(string(payload), string(got.Payload))
	case <-time.After(2 * time.Second):
		req.Fail("event not relayed")
	}
}

func TestBus_Subscribe_Fails_When_Redis_Is_Down(t *testing.T) {
	req := require.New(t)
	server := miniredis.RunT(t)
	log := silentLogger()
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()
	bus := NewBus(log, client, runtime.NewLocalProvider(log, runtime.NewRegistry()))

	server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := bus.Subscribe(ctx, "user-bob", sink.NewChannelSink(log, nil, 1))
	req.ErrorIs(err, errors.ErrTransport)

	err = bus.Publish(ctx, "user-bob", event.Envelope{Kind: event.MessageCreatedKind})
	req.ErrorIs(err, errors.ErrTransport)
}
