package workers

import (
	"context"
	"dm-core/contract"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/errors"
	"dm-core/observability"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

var _ contract.IPublisher = (*FanoutPublisher)(nil)

type fanoutJob struct {
	conversationID domain.ConversationID
	env            event.Envelope
	recipients     []domain.UserID
}

// FanoutPublisher delivers an event on the private channel of every recipient.
//
// It provides best-effort fan-out: no retries, no durability, no replay.
// Jobs are sharded by conversation so that events of one conversation
// are published in the order they were enqueued. Across conversations
// no order is guaranteed.
//
// Publish never blocks: when a shard queue is full the job is dropped
// and counted, the message itself is already durable.
type FanoutPublisher struct {
	log            *slog.Logger
	provider       contract.IChannelProvider
	monitor        *observability.Monitor
	shards         []chan fanoutJob
	publishTimeout time.Duration
}

func NewFanoutPublisher(log *slog.Logger, provider contract.IChannelProvider, monitor *observability.Monitor,
	numberOfShards, bufferSize int, publishTimeout time.Duration) *FanoutPublisher {
	if numberOfShards < 1 {
		numberOfShards = 1
	}
	shards := make([]chan fanoutJob, numberOfShards)
	for i := range shards {
		shards[i] = make(chan fanoutJob, bufferSize)
	}
	return &FanoutPublisher{
		log:            log,
		provider:       provider,
		monitor:        monitor,
		shards:         shards,
		publishTimeout: publishTimeout,
	}
}

func (p *FanoutPublisher) Publish(conversationID domain.ConversationID, evt event.DomainEvent, recipients []domain.UserID) {
	env, err := event.Encode(evt)
	if err != nil {
		p.log.Error("Unable to encode event", "conversation_id", conversationID, "error", err)
		return
	}
	job := fanoutJob{conversationID: conversationID, env: env, recipients: lo.Uniq(recipients)}

	select {
	case p.shards[p.shardOf(conversationID)] <- job:
	default:
		p.monitor.IncrEventsDropped()
		p.log.Warn("Fanout event lost", "conversation_id", conversationID,
			"error", errors.ErrQueueFull)
	}
}

func (p *FanoutPublisher) shardOf(conversationID domain.ConversationID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % uint32(len(p.shards)))
}

// Workers returns one worker per shard, to be run by the supervisor.
func (p *FanoutPublisher) Workers() []contract.Worker {
	workers := make([]contract.Worker, len(p.shards))
	for i := range p.shards {
		workers[i] = fanoutWorker{publisher: p, shard: i}
	}
	return workers
}

// deliver publishes one job. Channel provider failures are logged, never returned.
func (p *FanoutPublisher) deliver(ctx context.Context, job fanoutJob) {
	for _, recipient := range job.recipients {
		channel := domain.ChannelName(recipient)
		publishCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
		err := p.provider.Publish(publishCtx, channel, job.env)
		cancel()
		if err != nil {
			p.monitor.IncrPublishFailures()
			p.log.Warn("Fanout publish failed",
				"conversation_id", job.conversationID,
				"channel", channel,
				"error", fmt.Errorf("%w: %v", errors.ErrTransport, err))
			continue
		}
		p.monitor.IncrEventsPublished()
	}
}

type fanoutWorker struct {
	publisher *FanoutPublisher
	shard     int
}

func (w fanoutWorker) GetName() contract.WorkerName {
	return contract.WorkerName(fmt.Sprintf("fanout-%d", w.shard))
}

func (w fanoutWorker) Run(ctx context.Context) error {
	queue := w.publisher.shards[w.shard]
	for {
		select {
		case job := <-queue:
			w.publisher.deliver(ctx, job)
		case <-ctx.Done():
			w.publisher.log.Debug("Context done, stopping fanout", "shard", w.shard)
			return nil
		}
	}
}
