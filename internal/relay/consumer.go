package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
)

// Handler обрабатывает тело сообщения. nil — сообщение подтверждается,
// ошибка — сообщение отклоняется без повторной постановки в очередь.
type Handler func(ctx context.Context, body []byte) error

var errDeliveriesClosed = errors.New("канал доставки закрыт брокером")

// Consumer читает очередь по одному сообщению (prefetch 1) с ручным
// подтверждением и переподписывается после потери канала.
type Consumer struct {
	conn     *Connection
	topology Topology
	retryMin time.Duration
	retryMax time.Duration
	logger   *slog.Logger
}

// NewConsumer создаёт потребителя очереди из секции брокера.
func NewConsumer(conn *Connection, cfg config.BrokerConfig, logger *slog.Logger) *Consumer {
	return &Consumer{
		conn:     conn,
		topology: TopologyFromConfig(cfg),
		retryMin: cfg.ReconnectMin,
		retryMax: cfg.ReconnectMax,
		logger:   logger.With(slog.String("component", "event_consumer")),
	}
}

// Run блокируется до отмены ctx. Ошибки подписки не завершают работу:
// потребитель повторяет подписку с экспоненциальной задержкой.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	b := newBackOff(c.retryMin, c.retryMax)

	for {
		err := c.consume(ctx, handler, b.Reset)
		if ctx.Err() != nil {
			c.logger.Info("Потребитель остановлен", slog.String("queue", c.topology.Queue))
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return err
		}

		wait := b.NextBackOff()
		c.logger.Warn("Подписка на очередь потеряна, повтор",
			slog.String("queue", c.topology.Queue),
			slog.Duration("next", wait),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("Потребитель остановлен", slog.String("queue", c.topology.Queue))
			return nil
		case <-timer.C:
		}
	}
}

// consume открывает канал, объявляет топологию и обрабатывает доставки,
// пока канал жив.
func (c *Consumer) consume(ctx context.Context, handler Handler, subscribed func()) error {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if !ch.IsClosed() {
			_ = ch.Close()
		}
	}()

	if err := c.topology.DeclareQueue(ch); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("установка prefetch: %w", err)
	}
	deliveries, err := ch.Consume(c.topology.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("подписка на очередь %s: %w", c.topology.Queue, err)
	}

	subscribed()
	c.logger.Info("Подписка на очередь установлена",
		slog.String("queue", c.topology.Queue),
		slog.String("exchange", c.topology.Exchange),
		slog.Bool("dead_letter", c.topology.DeadLetter),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handle(ctx, d, handler)
		}
	}
}

// handle вызывает обработчик и подтверждает или отклоняет доставку.
// Если обработка прервана остановкой сервиса, сообщение возвращается в очередь.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler Handler) {
	err := invoke(ctx, handler, d.Body)

	logAttrs := []any{
		slog.String("queue", c.topology.Queue),
		slog.String("message_id", d.MessageId),
		slog.Uint64("delivery_tag", d.DeliveryTag),
	}

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("Не удалось подтвердить сообщение",
				append(logAttrs, slog.String("error", ackErr.Error()))...)
			return
		}
		consumedTotal.WithLabelValues(c.topology.Queue, "ack").Inc()

	case ctx.Err() != nil:
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("Не удалось вернуть сообщение в очередь",
				append(logAttrs, slog.String("error", nackErr.Error()))...)
			return
		}
		consumedTotal.WithLabelValues(c.topology.Queue, "requeue").Inc()
		c.logger.Warn("Обработка прервана остановкой, сообщение возвращено в очередь", logAttrs...)

	default:
		c.logger.Error("Ошибка обработки сообщения, сообщение отклонено",
			append(logAttrs,
				slog.Bool("dead_letter", c.topology.DeadLetter),
				slog.String("error", err.Error()),
			)...)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Не удалось отклонить сообщение",
				append(logAttrs, slog.String("error", nackErr.Error()))...)
			return
		}
		consumedTotal.WithLabelValues(c.topology.Queue, "nack").Inc()
	}
}

// invoke превращает панику обработчика в ошибку.
func invoke(ctx context.Context, handler Handler, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в обработчике: %v", r)
		}
	}()
	return handler(ctx, body)
}
