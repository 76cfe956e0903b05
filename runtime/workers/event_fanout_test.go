package workers

import (
	"context"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/mocks"
	"dm-core/observability"
	"dm-core/runtime"
	"dm-core/sink"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func startWorkers(t *testing.T, publisher *FanoutPublisher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(silentLogger(), 0)
	sup.Add(publisher.Workers()...)
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func receive(t *testing.T, s *sink.ChannelSink) event.Envelope {
	t.Helper()
	select {
	case env := <-s.Events():
		return env
	case <-time.After(time.Second):
		t.Fatal("no event received in time")
		return event.Envelope{}
	}
}

func TestFanoutPublisher_Reaches_Participants_Only(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := silentLogger()
	monitor := observability.NewMonitor()
	provider := runtime.NewLocalProvider(log, runtime.NewRegistry())
	publisher := NewFanoutPublisher(log, provider, monitor, 2, 16, time.Second)
	startWorkers(t, publisher)

	// Given A, B and an unrelated D subscribed
	sinks := map[domain.UserID]*sink.ChannelSink{}
	for _, id := range []domain.UserID{"a", "b", "d"} {
		sinks[id] = sink.NewChannelSink(log, monitor, 8)
		_, err := provider.Subscribe(ctx, domain.ChannelName(id), sinks[id])
		req.NoError(err)
	}

	// When A's message is fanned out to the conversation participants
	message := domain.Message{ID: "m1", ConversationID: "c1", AuthorID: "a", Content: "hej"}
	publisher.Publish("c1", event.MessageCreated{Message: message, AuthorID: "a"}, []domain.UserID{"a", "b", "b"})

	// Then A and B get exactly one event tagged with the author
	for _, id := range []domain.UserID{"a", "b"} {
		env := receive(t, sinks[id])
		evt, err := event.Decode(env)
		req.NoError(err)
		req.Equal(domain.UserID("a"), evt.(event.MessageCreated).AuthorID)
	}
	time.Sleep(50 * time.Millisecond)
	req.Empty(sinks["b"].Events())
	req.Empty(sinks["d"].Events())
	req.Equal(uint64(2), monitor.Snapshot().EventsPublished)
}

func TestFanoutPublisher_Preserves_Order_Within_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := silentLogger()
	provider := runtime.NewLocalProvider(log, runtime.NewRegistry())
	publisher := NewFanoutPublisher(log, provider, nil, 4, 128, time.Second)
	startWorkers(t, publisher)

	bob := sink.NewChannelSink(log, nil, 128)
	_, err := provider.Subscribe(ctx, domain.ChannelName("b"), bob)
	req.NoError(err)

	const n = 50
	for i := 0; i < n; i++ {
		message := domain.Message{ID: domain.MessageID(fmt.Sprintf("m%02d", i)), ConversationID: "c1"}
		publisher.Publish("c1", event.MessageCreated{Message: message, AuthorID: "a"}, []domain.UserID{"b"})
	}

	for i := 0; i < n; i++ {
		evt, err := event.Decode(receive(t, bob))
		req.NoError(err)
		req.Equal(domain.MessageID(fmt.Sprintf("m%02d", i)), evt.(event.MessageCreated).Message.ID)
	}
}

func TestFanoutPublisher_Transport_Errors_Are_Swallowed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIChannelProvider(ctrl)
	monitor := observability.NewMonitor()
	publisher := NewFanoutPublisher(silentLogger(), provider, monitor, 1, 4, 50*time.Millisecond)

	done := make(chan struct{})
	// Given the first recipient channel fails
	provider.EXPECT().Publish(gomock.Any(), "user-a", gomock.Any()).Return(fmt.Errorf("redis down")).Times(1)
	// Then the second one is still attempted, once, no retry
	provider.EXPECT().Publish(gomock.Any(), "user-b", gomock.Any()).
		DoAndReturn(func(context.Context, string, event.Envelope) error {
			close(done)
			return nil
		}).Times(1)

	startWorkers(t, publisher)
	publisher.Publish("c1", event.MessageCreated{AuthorID: "a"}, []domain.UserID{"a", "b"})

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("second recipient was never attempted")
	}
	req.Eventually(func() bool { return monitor.Snapshot().PublishFailures == 1 }, time.Second, 10*time.Millisecond)
}

func TestFanoutPublisher_Never_Blocks_When_Queue_Full(t *testing.T) {
	req := require.New(t)
	monitor := observability.NewMonitor()
	// No worker is started: the queue can only fill up
	publisher := NewFanoutPublisher(silentLogger(), nil, monitor, 1, 1, time.Second)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			publisher.Publish("c1", event.MessageCreated{}, []domain.UserID{"a"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Publish blocked on a full queue")
	}
	req.Equal(uint64(9), monitor.Snapshot().EventsDropped)
}
