package relay

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
)

// Declarer — подмножество методов *amqp.Channel для объявления топологии.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Topology — exchange событий загрузки и очередь потребителя.
// При DeadLetter рядом объявляются <exchange>.dlx и <queue>.dlq.
type Topology struct {
	Exchange   string
	Queue      string
	DeadLetter bool
}

// TopologyFromConfig собирает топологию из секции брокера.
func TopologyFromConfig(cfg config.BrokerConfig) Topology {
	return Topology{
		Exchange:   cfg.Exchange,
		Queue:      cfg.Queue,
		DeadLetter: cfg.DeadLetter,
	}
}

// DeadLetterExchange — имя DLX.
func (t Topology) DeadLetterExchange() string { return t.Exchange + ".dlx" }

// DeadLetterQueue — имя DLQ.
func (t Topology) DeadLetterQueue() string { return t.Queue + ".dlq" }

// DeclareExchange объявляет fanout exchange. Достаточно издателю.
func (t Topology) DeclareExchange(d Declarer) error {
	if err := d.ExchangeDeclare(t.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("объявление exchange %s: %w", t.Exchange, err)
	}
	return nil
}

// DeclareQueue объявляет exchange, очередь потребителя и её привязку.
// Аргументы очереди должны совпадать с уже существующей очередью,
// иначе брокер закроет канал с PRECONDITION_FAILED.
func (t Topology) DeclareQueue(d Declarer) error {
	if err := t.DeclareExchange(d); err != nil {
		return err
	}

	var args amqp.Table
	if t.DeadLetter {
		dlx, dlq := t.DeadLetterExchange(), t.DeadLetterQueue()
		if err := d.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("объявление exchange %s: %w", dlx, err)
		}
		if _, err := d.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("объявление очереди %s: %w", dlq, err)
		}
		if err := d.QueueBind(dlq, "", dlx, false, nil); err != nil {
			return fmt.Errorf("привязка %s к %s: %w", dlq, dlx, err)
		}
		args = amqp.Table{"x-dead-letter-exchange": dlx}
	}

	if _, err := d.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("объявление очереди %s: %w", t.Queue, err)
	}
	if err := d.QueueBind(t.Queue, "", t.Exchange, false, nil); err != nil {
		return fmt.Errorf("привязка %s к %s: %w", t.Queue, t.Exchange, err)
	}
	return nil
}
