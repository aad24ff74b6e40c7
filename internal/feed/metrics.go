package feed

import (
	"github.com/adi-253/chatfeed/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Source names the path a message arrived on.
type Source string

const (
	SourcePoll Source = "poll"
	SourcePush Source = "push"
	SourceSend Source = "send"
)

// Metrics are the synchronizer counters. A single Metrics value may be shared
// by several synchronizers; thread-scoped series carry a thread label.
type Metrics struct {
	rendered       *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	pollErrors     prometheus.Counter
	sendFailures   prometheus.Counter
	mirrorFailures prometheus.Counter
	pushEnabled    *prometheus.GaugeVec
	watermark      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfeed_messages_rendered_total",
			Help: "Messages rendered, by delivery path.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfeed_messages_duplicate_total",
			Help: "Messages dropped because their ID was at or below the watermark.",
		}, []string{"source"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfeed_poll_errors_total",
			Help: "Failed poll requests.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfeed_send_failures_total",
			Help: "Sends that did not return an authoritative message.",
		}),
		mirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfeed_push_mirror_failures_total",
			Help: "Sent messages that could not be mirrored to the realtime store.",
		}),
		pushEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatfeed_push_enabled",
			Help: "1 while the push transport is subscribed.",
		}, []string{"thread"}),
		watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatfeed_watermark",
			Help: "Highest rendered message ID.",
		}, []string{"thread"}),
	}
	if reg != nil {
		reg.MustRegister(m.rendered, m.duplicates, m.pollErrors, m.sendFailures,
			m.mirrorFailures, m.pushEnabled, m.watermark)
	}
	return m
}

func (m *Metrics) observeRender(src Source, thread, watermark models.ID) {
	m.rendered.WithLabelValues(string(src)).Inc()
	m.watermark.WithLabelValues(thread.String()).Set(float64(watermark))
}

func (m *Metrics) observeDuplicate(src Source) {
	m.duplicates.WithLabelValues(string(src)).Inc()
}

func (m *Metrics) setPushEnabled(thread models.ID, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	m.pushEnabled.WithLabelValues(thread.String()).Set(v)
}
