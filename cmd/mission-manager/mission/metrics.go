package mission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionlink_frames_handled_total",
		Help: "Inbound mission protocol frames routed to a handler, by message.",
	}, []string{"msg"})

	transfersCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionlink_transfers_completed_total",
		Help: "Successfully completed list transfers, by kind and direction.",
	}, []string{"kind", "direction"})

	operationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missionlink_operation_timeouts_total",
		Help: "Transfers aborted because the partner went silent.",
	})

	storeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missionlink_store_errors_total",
		Help: "Dataman store read/write failures.",
	})
)
