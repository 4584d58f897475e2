// Пакет relay — EventRelay поверх RabbitMQ: долгоживущее соединение
// с переподключением, объявление топологии, публикация с подтверждениями
// и потребитель с prefetch 1 и ручным подтверждением.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
)

// ErrClosed — соединение закрыто владельцем.
var ErrClosed = errors.New("relay: соединение закрыто")

// dialFunc открывает AMQP-соединение.
type dialFunc func(url string) (*amqp.Connection, error)

// Connection — явно принадлежащее сервису соединение с брокером.
// При потере соединения фоновый наблюдатель переподключается
// с экспоненциальным backoff, пока соединение не закрыто владельцем.
type Connection struct {
	url    string
	min    time.Duration
	max    time.Duration
	dial   dialFunc
	logger *slog.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	ready chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial устанавливает соединение (с повторами до отмены ctx)
// и запускает наблюдатель переподключения.
func Dial(ctx context.Context, cfg config.BrokerConfig, name string, logger *slog.Logger) (*Connection, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(name)

	return dial(ctx, cfg, logger, func(url string) (*amqp.Connection, error) {
		return amqp.DialConfig(url, amqp.Config{
			Heartbeat:  10 * time.Second,
			Locale:     "en_US",
			Properties: props,
		})
	})
}

func dial(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger, fn dialFunc) (*Connection, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		url:    cfg.URL,
		min:    cfg.ReconnectMin,
		max:    cfg.ReconnectMax,
		dial:   fn,
		logger: logger.With(slog.String("component", "relay")),
		ready:  make(chan struct{}),
		ctx:    runCtx,
		cancel: cancel,
	}

	conn, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
	}
	c.setConn(conn)

	c.wg.Add(1)
	go c.watch(conn)

	return c, nil
}

// newBackOff создаёт экспоненциальный backoff с границами из конфигурации.
// MaxElapsedTime = 0: повторять, пока не отменён контекст.
func newBackOff(minInterval, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if minInterval > 0 {
		b.InitialInterval = minInterval
	}
	if maxInterval > 0 {
		b.MaxInterval = maxInterval
	}
	b.MaxElapsedTime = 0
	return b
}

// connect повторяет подключение до успеха или отмены ctx.
func (c *Connection) connect(ctx context.Context) (*amqp.Connection, error) {
	attempt := 0
	operation := func() (*amqp.Connection, error) {
		attempt++
		conn, err := c.dial(c.url)
		if err != nil {
			return nil, err
		}
		if attempt > 1 {
			c.logger.Info("Соединение с RabbitMQ восстановлено", slog.Int("attempt", attempt))
		}
		return conn, nil
	}
	notify := func(err error, next time.Duration) {
		reconnectsTotal.Inc()
		c.logger.Warn("RabbitMQ недоступен, повтор подключения",
			slog.Int("attempt", attempt),
			slog.Duration("next", next),
			slog.String("error", err.Error()),
		)
	}

	return backoff.RetryNotifyWithData(operation,
		backoff.WithContext(newBackOff(c.min, c.max), ctx), notify)
}

// watch ждёт закрытия соединения и переподключается.
func (c *Connection) watch(conn *amqp.Connection) {
	defer c.wg.Done()

	for {
		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.ctx.Done():
			return
		case amqpErr, ok := <-closeCh:
			if c.ctx.Err() != nil {
				return
			}
			attrs := []any{}
			if ok && amqpErr != nil {
				attrs = append(attrs, slog.String("error", amqpErr.Error()))
			}
			c.logger.Warn("Соединение с RabbitMQ потеряно, переподключение", attrs...)
		}

		c.clearConn()

		next, err := c.connect(c.ctx)
		if err != nil {
			// отмена владельцем
			return
		}
		c.setConn(next)
		conn = next
	}
}

func (c *Connection) setConn(conn *amqp.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	close(c.ready)
}

func (c *Connection) clearConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.ready = make(chan struct{})
}

// Channel открывает канал, дожидаясь живого соединения.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	for {
		c.mu.RLock()
		conn, ready := c.conn, c.ready
		c.mu.RUnlock()

		if conn != nil && !conn.IsClosed() {
			ch, err := conn.Channel()
			if err == nil {
				return ch, nil
			}
			if !conn.IsClosed() {
				return nil, fmt.Errorf("открытие канала: %w", err)
			}
			// соединение закрылось между проверкой и открытием канала —
			// ждём наблюдателя
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, ErrClosed
		}
	}
}

// CheckReady — проверка готовности для health endpoint.
func (c *Connection) CheckReady() (status, message string) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return "fail", "соединение с RabbitMQ отсутствует, идёт переподключение"
	}
	return "ok", "соединение с RabbitMQ активно"
}

// Close останавливает наблюдатель и закрывает соединение.
func (c *Connection) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil && !conn.IsClosed() {
		err = conn.Close()
	}
	c.wg.Wait()
	c.logger.Info("Соединение с RabbitMQ закрыто")
	return err
}
