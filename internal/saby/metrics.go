package saby

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	rpcCallCounter              *prometheus.CounterVec
	rpcErrorCounter             *prometheus.CounterVec
	tokenAcquisitionCounter     prometheus.Counter
	tokenAcquisitionFailCounter prometheus.Counter
}

func NewMetrics() *Metrics {
	metrics := new(Metrics)

	metrics.rpcCallCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saby_connector_rpc_call_count",
		Help: "The number of RPC calls made to the CRM per method",
	}, []string{"method"})

	metrics.rpcErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saby_connector_rpc_error_count",
		Help: "The number of failed RPC calls per method",
	}, []string{"method"})

	metrics.tokenAcquisitionCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saby_connector_token_acquisition_count",
		Help: "The number of access token acquisitions",
	})

	metrics.tokenAcquisitionFailCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saby_connector_token_acquisition_failure_count",
		Help: "The number of failed access token acquisitions",
	})

	return metrics
}

var (
	metrics = NewMetrics()
)
