package actor

import (
	"context"
	"time"

	"library-network/internal/catalog"
	"library-network/internal/engine"
	"library-network/internal/outbox"
	"library-network/internal/wire"

	"github.com/sirupsen/logrus"
)

// EventActor is one topic's lazy-retry consumer (EA-return or
// EA-renew). It drains a dedicated Outbox and applies each event to
// the local engine only — async events never fail over to the peer
// (spec.md §4.4, control-flow summary).
type EventActor struct {
	topic   wire.Operation
	outbox  *outbox.Outbox
	local   *engine.Engine
	queue   chan outbox.Entry
	sleep   time.Duration
	timeout time.Duration
	log     *logrus.Entry
}

// NewEventActor returns an EventActor for topic, primed with any
// entries still pending from a prior run (ob's Open already replayed
// them).
func NewEventActor(topic wire.Operation, ob *outbox.Outbox, pending []outbox.Entry, local *engine.Engine, retrySleep, hopTimeout time.Duration, log *logrus.Entry) *EventActor {
	ea := &EventActor{
		topic:   topic,
		outbox:  ob,
		local:   local,
		queue:   make(chan outbox.Entry, 256),
		sleep:   retrySleep,
		timeout: hopTimeout,
		log:     log.WithField("topic", string(topic)),
	}
	for _, e := range pending {
		ea.queue <- e
	}
	return ea
}

// Publish hands a freshly appended entry to the actor without a disk
// round-trip — the in-process equivalent of the topic subscription the
// original PUB/SUB transport provided.
func (ea *EventActor) Publish(e outbox.Entry) {
	ea.queue <- e
}

// Run drains the queue until ctx is cancelled, applying each entry
// with indefinite lazy retry on failure (spec.md §4.4's retry policy).
func (ea *EventActor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ea.queue:
			ea.process(ctx, e)
		}
	}
}

func (ea *EventActor) process(ctx context.Context, e outbox.Entry) {
	if e.Event.Operation != ea.topic {
		ea.log.WithField("operation", e.Event.Operation).Warn("dropping event published on mismatched topic")
		return
	}

	for {
		applyCtx, cancel := context.WithTimeout(ctx, ea.timeout)
		_, _, err := ea.local.Apply(applyCtx, catalog.Operation(e.Event.Operation), e.Event.Payload.BookCode, e.Event.Payload.UserID, e.Event.Payload.AsOfDate)
		cancel()

		if err == nil {
			ea.markApplied(e)
			return
		}

		// A deterministic rejection (book already returned, no active
		// loan to renew, max renewals hit, ...) will never succeed no
		// matter how many times it's retried — spec.md §7 scopes async
		// ops to "logged only" on a domain-level SE error. Indefinite
		// lazy retry (§4.4) is reserved for genuine transport/timeout
		// failures reaching the local engine.
		if reason, ok := domainReason(err); ok {
			ea.log.WithFields(logrus.Fields{"seq": e.Seq, "reason": reason}).Warn("event rejected by storage engine, not retrying")
			ea.markApplied(e)
			return
		}

		ea.log.WithError(err).WithField("seq", e.Seq).Warn("event apply failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(ea.sleep):
		}
	}
}

func (ea *EventActor) markApplied(e outbox.Entry) {
	if err := ea.outbox.MarkApplied(e); err != nil {
		ea.log.WithError(err).Error("failed to mark outbox entry applied")
	}
}
