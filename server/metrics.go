package server

import "github.com/prometheus/client_golang/prometheus"

// metricsSet keeps the instance_status fields (spec §6 "Persisted
// state") as Prometheus gauges, grounded on the teacher's stats
// package convention of one gauge per reported counter. The gauges
// are exported only once Register attaches them to a registry.
type metricsSet struct {
	memoryUsage      prometheus.Gauge
	memoryLimit      prometheus.Gauge
	deferredRequests prometheus.Gauge
	ipcConnections   prometheus.Gauge
	rpcConnections   prometheus.Gauge
}

func newMetricsSet() *metricsSet {
	m := &metricsSet{
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vineyard", Subsystem: "instance", Name: "memory_usage_bytes",
			Help: "Bulk store bytes currently reserved.",
		}),
		memoryLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vineyard", Subsystem: "instance", Name: "memory_limit_bytes",
			Help: "Bulk store capacity configured for this instance.",
		}),
		deferredRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vineyard", Subsystem: "instance", Name: "deferred_requests",
			Help: "Requests parked on the deferred queue.",
		}),
		ipcConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vineyard", Subsystem: "instance", Name: "ipc_connections",
			Help: "Open IPC endpoint connections.",
		}),
		rpcConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vineyard", Subsystem: "instance", Name: "rpc_connections",
			Help: "Open RPC endpoint connections.",
		}),
	}
	return m
}

// Register attaches every gauge to reg; callers own the registry.
// Server itself never calls Register.
func (m *metricsSet) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.memoryUsage, m.memoryLimit, m.deferredRequests, m.ipcConnections, m.rpcConnections)
}

func (m *metricsSet) setUsage(used, limit int64) {
	m.memoryUsage.Set(float64(used))
	m.memoryLimit.Set(float64(limit))
}

func (m *metricsSet) setDeferred(n int) { m.deferredRequests.Set(float64(n)) }

func (m *metricsSet) setConns(ipc, rpc int) {
	m.ipcConnections.Set(float64(ipc))
	m.rpcConnections.Set(float64(rpc))
}
