package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
)

var errNacked = errors.New("брокер отклонил сообщение (nack)")

// confirmChannel — канал в режиме publisher confirms.
type confirmChannel interface {
	// publish отправляет сообщение и ждёт подтверждения брокера.
	publish(ctx context.Context, exchange string, msg amqp.Publishing) (acked bool, err error)
	close()
}

// amqpConfirmChannel — confirmChannel поверх *amqp.Channel.
type amqpConfirmChannel struct {
	ch *amqp.Channel
}

func (c *amqpConfirmChannel) publish(ctx context.Context, exchange string, msg amqp.Publishing) (bool, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, "", false, false, msg)
	if err != nil {
		return false, err
	}
	return dc.WaitContext(ctx)
}

func (c *amqpConfirmChannel) close() {
	if !c.ch.IsClosed() {
		_ = c.ch.Close()
	}
}

// Publisher публикует события в fanout exchange с подтверждением брокера.
// Канал открывается лениво и пересоздаётся после любой ошибки.
type Publisher struct {
	open           func(ctx context.Context) (confirmChannel, error)
	exchange       string
	confirmTimeout time.Duration
	attempts       int
	retryMin       time.Duration
	retryMax       time.Duration
	logger         *slog.Logger

	mu sync.Mutex
	ch confirmChannel
}

// NewPublisher создаёт издателя поверх соединения.
func NewPublisher(conn *Connection, cfg config.BrokerConfig, logger *slog.Logger) *Publisher {
	topology := TopologyFromConfig(cfg)
	open := func(ctx context.Context) (confirmChannel, error) {
		ch, err := conn.Channel(ctx)
		if err != nil {
			return nil, err
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("включение publisher confirms: %w", err)
		}
		if err := topology.DeclareExchange(ch); err != nil {
			_ = ch.Close()
			return nil, err
		}
		return &amqpConfirmChannel{ch: ch}, nil
	}
	return newPublisher(open, cfg, logger)
}

func newPublisher(open func(ctx context.Context) (confirmChannel, error), cfg config.BrokerConfig, logger *slog.Logger) *Publisher {
	attempts := cfg.PublishAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Publisher{
		open:           open,
		exchange:       cfg.Exchange,
		confirmTimeout: cfg.ConfirmTimeout,
		attempts:       attempts,
		retryMin:       cfg.ReconnectMin,
		retryMax:       cfg.ReconnectMax,
		logger:         logger.With(slog.String("component", "event_publisher")),
	}
}

// Publish сериализует сообщение в JSON и публикует его persistent-доставкой.
// Если брокер не подтвердил сообщение за все попытки — apperr.Unavailable.
func (p *Publisher) Publish(ctx context.Context, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("сериализация сообщения: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	attempt := 0
	operation := func() error {
		attempt++
		return p.publishOnce(ctx, msg)
	}
	notify := func(err error, next time.Duration) {
		p.logger.Warn("Публикация не подтверждена, повтор",
			slog.String("message_id", msg.MessageId),
			slog.Int("attempt", attempt),
			slog.Duration("next", next),
			slog.String("error", err.Error()),
		)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(p.retryMin, p.retryMax), uint64(p.attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		publishedTotal.WithLabelValues(p.exchange, "failed").Inc()
		p.logger.Error("Публикация события не удалась",
			slog.String("exchange", p.exchange),
			slog.String("message_id", msg.MessageId),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
		)
		return apperr.Unavailable(err, "брокер сообщений недоступен")
	}

	publishedTotal.WithLabelValues(p.exchange, "ok").Inc()
	p.logger.Debug("Событие опубликовано",
		slog.String("exchange", p.exchange),
		slog.String("message_id", msg.MessageId),
	)
	return nil
}

// publishOnce — одна попытка: канал, публикация, ожидание подтверждения.
func (p *Publisher) publishOnce(ctx context.Context, msg amqp.Publishing) error {
	ch, err := p.channel(ctx)
	if err != nil {
		publishAttemptsTotal.WithLabelValues("error").Inc()
		return err
	}

	confirmCtx := ctx
	if p.confirmTimeout > 0 {
		var cancel context.CancelFunc
		confirmCtx, cancel = context.WithTimeout(ctx, p.confirmTimeout)
		defer cancel()
	}

	acked, err := ch.publish(confirmCtx, p.exchange, msg)
	switch {
	case err != nil:
		publishAttemptsTotal.WithLabelValues("error").Inc()
		p.reset(ch)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	case !acked:
		publishAttemptsTotal.WithLabelValues("nack").Inc()
		return errNacked
	}

	publishAttemptsTotal.WithLabelValues("ack").Inc()
	return nil
}

func (p *Publisher) channel(ctx context.Context) (confirmChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("открытие канала публикации: %w", err)
	}
	p.ch = ch
	return ch, nil
}

// reset закрывает сломанный канал, следующая попытка откроет новый.
func (p *Publisher) reset(ch confirmChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == ch {
		p.ch = nil
	}
	ch.close()
}

// Close закрывает канал публикации.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.close()
		p.ch = nil
	}
}
