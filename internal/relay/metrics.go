package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики EventRelay.
var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_relay_published_total",
		Help: "Публикации событий по результату (ok, failed).",
	}, []string{"exchange", "result"})

	publishAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_relay_publish_attempts_total",
		Help: "Попытки публикации по исходу (ack, nack, error).",
	}, []string{"outcome"})

	consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_relay_consumed_total",
		Help: "Обработанные сообщения по результату (ack, nack, requeue).",
	}, []string{"queue", "result"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_relay_reconnects_total",
		Help: "Попытки переподключения к брокеру.",
	})
)
