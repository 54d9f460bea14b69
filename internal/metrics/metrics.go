// Package metrics содержит prometheus-метрики координатора.
// Все методы безопасны для nil-получателя, что позволяет не передавать
// метрики в тестах.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parkease"

// Metrics набор счётчиков координатора.
type Metrics struct {
	eventsPublished      *prometheus.CounterVec
	deliveriesDropped    prometheus.Counter
	connectedClients     prometheus.Gauge
	notificationsQueued  *prometheus.CounterVec
	notificationsSent    prometheus.Counter
	notificationsFailed  prometheus.Counter
	forcedLogouts        *prometheus.CounterVec
	lifecycleTransitions *prometheus.CounterVec
	restores             *prometheus.CounterVec
	taskRuns             *prometheus.CounterVec
	taskDuration         *prometheus.HistogramVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_published_total",
				Help:      "Published bus events by event name and outcome",
			},
			[]string{"event", "result"},
		),
		deliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "deliveries_dropped_total",
			Help:      "Deliveries skipped because the subscriber buffer was full",
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connected_clients",
			Help:      "Currently connected websocket clients",
		}),
		notificationsQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "enqueued_total",
				Help:      "Notifications written to the durable queue by type",
			},
			[]string{"type"},
		),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notifications delivered by the drain and marked sent",
		}),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "failed_total",
			Help:      "Drain attempts left pending for the next run",
		}),
		forcedLogouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "forced_logouts_total",
				Help:      "Sessions ended by someone other than their owner",
			},
			[]string{"reason"},
		),
		lifecycleTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Lifecycle actions applied to accounts",
			},
			[]string{"action"},
		),
		restores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backup",
				Name:      "restores_total",
				Help:      "Restore attempts by outcome",
			},
			[]string{"result"},
		),
		taskRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_runs_total",
				Help:      "Scheduled task runs by task and outcome",
			},
			[]string{"task", "result"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_duration_seconds",
				Help:      "Scheduled task run duration",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"task"},
		),
	}

	reg.MustRegister(
		m.eventsPublished,
		m.deliveriesDropped,
		m.connectedClients,
		m.notificationsQueued,
		m.notificationsSent,
		m.notificationsFailed,
		m.forcedLogouts,
		m.lifecycleTransitions,
		m.restores,
		m.taskRuns,
		m.taskDuration,
	)
	return m
}

func (m *Metrics) EventPublished(event string, delivered, dropped int) {
	if m == nil {
		return
	}
	result := "delivered"
	if delivered == 0 {
		result = "no_subscribers"
	}
	m.eventsPublished.WithLabelValues(event, result).Inc()
	if dropped > 0 {
		m.deliveriesDropped.Add(float64(dropped))
	}
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.connectedClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.connectedClients.Dec()
}

func (m *Metrics) NotificationEnqueued(typ string) {
	if m == nil {
		return
	}
	m.notificationsQueued.WithLabelValues(typ).Inc()
}

func (m *Metrics) NotificationDrained(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.notificationsSent.Inc()
		return
	}
	m.notificationsFailed.Inc()
}

func (m *Metrics) ForcedLogout(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.forcedLogouts.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) LifecycleAction(action string) {
	if m == nil {
		return
	}
	m.lifecycleTransitions.WithLabelValues(action).Inc()
}

func (m *Metrics) Restore(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "nothing_to_restore"
	}
	m.restores.WithLabelValues(result).Inc()
}

// TaskFinished фиксирует завершение запуска фоновой задачи.
func (m *Metrics) TaskFinished(task string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.taskRuns.WithLabelValues(task, result).Inc()
	m.taskDuration.WithLabelValues(task).Observe(took.Seconds())
}
