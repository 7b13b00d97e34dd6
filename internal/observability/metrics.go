// Package observability owns RPC metrics and the HTTP surface that
// exposes them.
package observability

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const k8sNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

var (
	registerOnce sync.Once

	serverLabels = []string{"hostname", "namespace", "remote", "handler", "signed", "tls"}
	clientLabels = []string{"hostname", "namespace", "remote", "signed", "tls"}

	serverReqSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirerpc",
			Subsystem: "server",
			Name:      "req_seconds",
			Help:      "Server-side request handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		serverLabels,
	)
	serverReqBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirerpc",
			Subsystem: "server",
			Name:      "req_bytes",
			Help:      "Server-side request payload size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
		serverLabels,
	)
	serverErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "server",
			Name:      "errors_total",
			Help:      "Server-side request failures by reason.",
		},
		append(serverLabels, "reason"),
	)

	clientReqSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirerpc",
			Subsystem: "client",
			Name:      "req_seconds",
			Help:      "Client-side call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		clientLabels,
	)
	clientReqBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirerpc",
			Subsystem: "client",
			Name:      "req_bytes",
			Help:      "Client-side request payload size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		},
		clientLabels,
	)
	clientErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "client",
			Name:      "errors_total",
			Help:      "Client-side call failures by reason.",
		},
		append(clientLabels, "reason"),
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			serverReqSeconds, serverReqBytes, serverErrors,
			clientReqSeconds, clientReqBytes, clientErrors,
		)
	})
}

// Peer identifies one side of an exchange for labeling.
type Peer struct {
	Remote  string
	Handler string
	Signed  bool
	TLS     bool
}

func (p Peer) serverValues() []string {
	return []string{
		Hostname(), K8sNamespace(), p.Remote, p.Handler,
		strconv.FormatBool(p.Signed), strconv.FormatBool(p.TLS),
	}
}

func (p Peer) clientValues() []string {
	return []string{
		Hostname(), K8sNamespace(), p.Remote,
		strconv.FormatBool(p.Signed), strconv.FormatBool(p.TLS),
	}
}

func RecordServerRequest(p Peer, duration time.Duration, bytes int) {
	RegisterMetrics()
	values := p.serverValues()
	serverReqSeconds.WithLabelValues(values...).Observe(duration.Seconds())
	serverReqBytes.WithLabelValues(values...).Observe(float64(bytes))
}

func RecordServerError(p Peer, reason string) {
	RegisterMetrics()
	serverErrors.WithLabelValues(append(p.serverValues(), reason)...).Inc()
}

func RecordClientRequest(p Peer, duration time.Duration, bytes int) {
	RegisterMetrics()
	values := p.clientValues()
	clientReqSeconds.WithLabelValues(values...).Observe(duration.Seconds())
	clientReqBytes.WithLabelValues(values...).Observe(float64(bytes))
}

func RecordClientError(p Peer, reason string) {
	RegisterMetrics()
	clientErrors.WithLabelValues(append(p.clientValues(), reason)...).Inc()
}

var (
	hostnameOnce  sync.Once
	hostnameValue string

	namespaceOnce  sync.Once
	namespaceValue string
)

// Hostname reads /etc/hostname, falling back to os.Hostname.
func Hostname() string {
	hostnameOnce.Do(func() {
		if data, err := os.ReadFile("/etc/hostname"); err == nil {
			hostnameValue = strings.TrimSpace(string(data))
			return
		}
		hostnameValue, _ = os.Hostname()
	})
	return hostnameValue
}

// K8sNamespace reads the serviceaccount namespace; empty off-cluster.
func K8sNamespace() string {
	namespaceOnce.Do(func() {
		if data, err := os.ReadFile(k8sNamespaceFile); err == nil {
			namespaceValue = strings.TrimSpace(string(data))
		}
	})
	return namespaceValue
}
