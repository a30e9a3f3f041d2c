// Package events consumes the platform events other services publish and
// turns them into schedule entries or contact records.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

const (
	// EventLabResultUpdated fires when a lab result row changes state.
	EventLabResultUpdated = "labresult.updated"
	// EventInstanceReleased fires when a participant releases a
	// questionnaire instance.
	EventInstanceReleased = "questionnaire_instance.released"

	routingKey = "notificationservice"
)

// Envelope wraps every event on the wire. ID correlates log lines across
// services, Type picks the handler and Payload is the event-specific body.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LabResultUpdated is the payload of EventLabResultUpdated.
type LabResultUpdated struct {
	ID string `json:"id"`
}

// InstanceReleased is the payload of EventInstanceReleased.
type InstanceReleased struct {
	InstanceID int `json:"instance_id"`
}

// EventQueue binds the service queue to the platform event exchange.
type EventQueue struct {
	Publisher *rabbitmq.Publisher
	Consumer  *rabbitmq.Consumer
}

// NewEventQueue declares the exchange and queue and returns a ready queue.
func NewEventQueue(ch *rabbitmq.Channel, exchangeName, queueName string) (*EventQueue, error) {
	exchange := rabbitmq.NewExchange(exchangeName, "direct")
	if err := exchange.BindToChannel(ch); err != nil {
		return nil, fmt.Errorf("failed to bind to exchange: %w", err)
	}

	qm := rabbitmq.NewQueueManager(ch)

	q, err := qm.DeclareQueue(queueName, rabbitmq.QueueConfig{Durable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to declare event queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange.Name(), false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind the exchange to the event queue: %w", err)
	}

	pub := rabbitmq.NewPublisher(ch, exchange.Name())
	cons := rabbitmq.NewConsumer(ch, rabbitmq.NewConsumerConfig(q.Name))

	return &EventQueue{Publisher: pub, Consumer: cons}, nil
}

// Publish sends one event to the exchange.
func (q *EventQueue) Publish(eventType string, payload any, strategy retry.Strategy) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	body, err := json.Marshal(Envelope{ID: uuid.New(), Type: eventType, Payload: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return q.Publisher.PublishWithRetry(body, routingKey, "application/json", strategy)
}

// Consume forwards decoded envelopes to out until the channel closes.
func (q *EventQueue) Consume(out chan<- Envelope, strategy retry.Strategy) error {
	msgChan := make(chan []byte)

	go func() {
		for m := range msgChan {
			var env Envelope
			if err := json.Unmarshal(m, &env); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to unmarshal event envelope")
				continue
			}

			out <- env
		}
	}()

	return q.Consumer.ConsumeWithRetry(msgChan, strategy)
}
