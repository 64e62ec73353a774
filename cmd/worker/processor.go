package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	appevents "github.com/imrishuroy/go-hotel-paymentflow/internal/events"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/idempotency"
)

// Processor delivers booking confirmation events taken off the events queue.
type Processor struct {
	mailer appevents.Mailer
	sent   *idempotency.Store
	logger *zap.Logger
}

// NewProcessor creates a worker processor. sent remembers delivered event ids so
// SQS redeliveries do not mail the guest twice.
func NewProcessor(mailer appevents.Mailer, sent *idempotency.Store, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{mailer: mailer, sent: sent, logger: logger}
}

// Handle processes a batch and reports only the failed messages, so SQS retries
// those and the rest are deleted.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func sentKey(eventID string) string {
	return "mail:" + eventID
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	ev, err := appevents.Decode(rec.Body)
	if err != nil {
		// left to the redrive policy, which parks it on the DLQ
		return err
	}
	log := p.logger.With(zap.String("event_id", ev.ID), zap.String("bill_no", ev.Booking.BillNo))

	if ev.Type != appevents.TypeBookingConfirmed {
		log.Warn("skipping unknown event type", zap.String("type", ev.Type))
		return nil
	}

	key := sentKey(ev.ID)
	prior, err := p.sent.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("check delivery log: %w", err)
	}
	if prior != nil && prior.Status == idempotency.StatusDone {
		log.Info("confirmation already sent")
		return nil
	}

	if ev.Booking.Recipient == "" {
		log.Warn("confirmation has no recipient")
		return nil
	}
	if err := p.mailer.SendBookingConfirmation(ctx, ev.Booking); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	// The mail is out; failing to record it only risks a duplicate on redelivery.
	created, err := p.sent.CreateIfNotExists(ctx, key, ev.Booking.BillNo, "")
	if err != nil {
		log.Warn("record delivery", zap.Error(err))
		return nil
	}
	if created {
		if err := p.sent.MarkDone(ctx, key, "", 200); err != nil {
			log.Warn("mark delivery done", zap.Error(err))
		}
	}
	log.Info("confirmation sent", zap.String("recipient", ev.Booking.Recipient))
	return nil
}
