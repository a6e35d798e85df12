package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message wraps an AuditMessage with its RabbitMQ delivery information
type Message struct {
	Audit       *AuditMessage
	DeliveryTag uint64
	Acker       amqp.Acknowledger
}

// Ack acknowledges the message
func (m *Message) Ack() error {
	return m.Acker.Ack(m.DeliveryTag, false)
}

// Nack negatively acknowledges the message. Without requeue it goes to the DLQ.
func (m *Message) Nack(requeue bool) error {
	return m.Acker.Nack(m.DeliveryTag, false, requeue)
}

// GetAudit returns the decoded audit message
func (m *Message) GetAudit() *AuditMessage {
	return m.Audit
}

var _ MessageInterface = (*Message)(nil)
