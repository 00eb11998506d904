package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_classifications_total",
		Help: "Classification results by the stage that produced them",
	}, []string{"source"})

	oracleCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_oracle_calls_total",
		Help: "Oracle invocations by pipeline stage and outcome",
	}, []string{"stage", "outcome"})

	jsonRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_json_repairs_total",
		Help: "Classifier outputs recovered by each repair strategy",
	}, []string{"strategy"})

	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intent_cache_evictions_total",
		Help: "Analysis cache entries removed by expiry or ranking",
	})

	coalescedMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intent_coalesced_messages_total",
		Help: "Logical messages emitted by the coalescer by flush reason",
	}, []string{"reason"})
)
