package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/aromabay/storefront/internal/aws"
	"github.com/aromabay/storefront/internal/idempotency"
	"github.com/aromabay/storefront/internal/orders"
)

// Processor consumes order events and drives fulfilment transitions.
type Processor struct {
	orderStore  *orders.Store
	submissions *idempotency.Store
	metrics     *aws.MetricsEmitter
}

// NewProcessor wires the stores the worker needs.
func NewProcessor(dynamo aws.DynamoDBAPI, cw aws.CloudWatchAPI, submissionsTable, ordersTable string) *Processor {
	return &Processor{
		orderStore:  orders.NewStore(dynamo, ordersTable),
		submissions: idempotency.NewStore(dynamo, submissionsTable, 48*time.Hour),
		metrics:     aws.NewMetricsEmitter(cw, "Storefront/Worker"),
	}
}

// Handle processes an SQS batch. A returned error lets the runtime retry
// the batch; repeated failures land in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev aws.OrderEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received kind=%s order=%s corr=%s", ev.Kind, ev.OrderID, ev.CorrelationID)

	switch ev.Kind {
	case aws.EventOrderPlaced:
		return p.fulfil(ctx, ev)
	case aws.EventOrderCancelled:
		// Nothing to transition; the cancel already happened in the API.
		p.metrics.Count(ctx, "OrderCancelled", 1, nil)
		return nil
	default:
		log.Printf("[worker] ignoring unknown event kind %q", ev.Kind)
		return nil
	}
}

// fulfil moves a placed order Pending -> Processing -> Shipped. Every
// transition is a conditional write, so replayed or competing messages
// resolve without double-shipping.
func (p *Processor) fulfil(ctx context.Context, ev aws.OrderEvent) error {
	order, err := p.orderStore.Get(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", ev.OrderID)
	}

	err = p.orderStore.UpdateStatus(ctx, ev.OrderID, orders.StatusPending, orders.StatusProcessing)
	if errors.Is(err, orders.ErrStatusMismatch) {
		current, getErr := p.orderStore.Get(ctx, ev.OrderID)
		if getErr != nil || current == nil {
			return fmt.Errorf("recheck order %s: %v", ev.OrderID, getErr)
		}
		switch current.StatusID {
		case orders.StatusShipped, orders.StatusDelivered:
			log.Printf("[worker] order=%s already fulfilled", ev.OrderID)
			return nil
		case orders.StatusCancelled:
			// Cancelled between placement and pickup; nothing to ship.
			log.Printf("[worker] order=%s cancelled before fulfilment", ev.OrderID)
			p.metrics.Count(ctx, "CancelledBeforeFulfilment", 1, nil)
			return nil
		case orders.StatusProcessing:
			log.Printf("[worker] duplicate fulfilment event for order=%s", ev.OrderID)
			return nil
		default:
			return fmt.Errorf("unexpected status for order=%s: %s", ev.OrderID, current.StatusID)
		}
	}
	if err != nil {
		return fmt.Errorf("transition to processing: %w", err)
	}

	if err := p.ship(ctx, order); err != nil {
		return err
	}

	err = p.orderStore.UpdateStatus(ctx, ev.OrderID, orders.StatusProcessing, orders.StatusShipped)
	if errors.Is(err, orders.ErrStatusMismatch) {
		// Cancelled while we were packing; leave it alone.
		log.Printf("[worker] order=%s changed under us, skipping ship transition", ev.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("transition to shipped: %w", err)
	}

	if ev.IdempotencyKey != "" {
		body := fmt.Sprintf(`{"order_id":"%s","status_id":%d}`, ev.OrderID, orders.StatusShipped)
		if err := p.submissions.MarkDone(ctx, ev.IdempotencyKey, body, 200); err != nil {
			return fmt.Errorf("update submission record: %w", err)
		}
	}

	p.metrics.Count(ctx, "OrderShipped", 1, nil)
	log.Printf("[worker] shipped order=%s", ev.OrderID)
	return nil
}

// ship stands in for the warehouse integration.
func (p *Processor) ship(ctx context.Context, o *orders.Order) error {
	log.Printf("[worker] packing %d items for order=%s", len(o.Items), o.OrderID)
	return nil
}
