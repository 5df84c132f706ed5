package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends domain events to the broker.  Each publish dials a
// fresh connection; events are fire-and-forget from the caller's point
// of view, so errors are logged and returned for callers that want to
// ignore them without interrupting the request flow.
type Publisher struct {
	url string
}

// NewPublisher returns a Publisher for the given AMQP URL.
func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// publish declares the durable queue and sends one persistent JSON
// message to it on the default exchange.
func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}

// BookingConfirmed publishes a BookingConfirmedEvent.
func (p *Publisher) BookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
	return p.publish(ctx, QueueBookingConfirmed, ev)
}

// BookingCancelled publishes a BookingCancelledEvent.
func (p *Publisher) BookingCancelled(ctx context.Context, ev BookingCancelledEvent) error {
	return p.publish(ctx, QueueBookingCancelled, ev)
}

// TicketCheckedIn publishes a TicketCheckedInEvent.
func (p *Publisher) TicketCheckedIn(ctx context.Context, ev TicketCheckedInEvent) error {
	return p.publish(ctx, QueueTicketCheckedIn, ev)
}
