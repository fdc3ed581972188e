package eventbus

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	publishedTotal prometheus.Counter
	deliveredTotal prometheus.Counter
	droppedTotal   prometheus.Counter
	topics         prometheus.Gauge
	subscribers    prometheus.Gauge
}

// Instrument registers the bus collectors with reg. Call it before the bus is
// shared between goroutines.
func (b *Bus) Instrument(reg prometheus.Registerer) error {
	m := &metrics{
		publishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_events_published_total",
			Help: "Board events handed to the bus.",
		}),
		deliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_events_delivered_total",
			Help: "Board events enqueued for a subscriber.",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_events_dropped_total",
			Help: "Buffered board events evicted because a subscriber fell behind.",
		}),
		topics: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "board_topics_active",
			Help: "Boards with a live topic.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "board_subscribers_active",
			Help: "Live board subscriptions.",
		}),
	}
	for _, c := range []prometheus.Collector{m.publishedTotal, m.deliveredTotal, m.droppedTotal, m.topics, m.subscribers} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.metrics = m
	m.topics.Set(float64(len(b.topics)))
	b.mu.Unlock()
	return nil
}

func (m *metrics) published() {
	if m != nil {
		m.publishedTotal.Inc()
	}
}

func (m *metrics) delivered() {
	if m != nil {
		m.deliveredTotal.Inc()
	}
}

func (m *metrics) dropped() {
	if m != nil {
		m.droppedTotal.Inc()
	}
}

func (m *metrics) topicOpened() {
	if m != nil {
		m.topics.Inc()
	}
}

func (m *metrics) topicClosed() {
	if m != nil {
		m.topics.Dec()
	}
}

func (m *metrics) subscribed() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *metrics) unsubscribed() {
	if m != nil {
		m.subscribers.Dec()
	}
}
