package app

import (
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered on the default registry, which cometbft's instrumentation
// endpoint serves.
var (
	txTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authchain",
		Name:      "transactions_total",
		Help:      "Executed transactions by type and outcome",
	}, []string{"type", "status"})

	slashedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authchain",
		Name:      "verifier_slashed_amount_total",
		Help:      "Stake slashed from verifiers for missed deadlines",
	})

	disputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authchain",
		Name:      "disputes_closed_total",
		Help:      "Disputes closed by final status",
	}, []string{"status"})

	attestationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authchain",
		Name:      "attestations_total",
		Help:      "Accepted oracle attestations by submission path",
	}, []string{"path"})

	blockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "authchain",
		Name:      "block_height",
		Help:      "Height of the last finalized block",
	})
)

func recordTx(txType string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	txTotal.WithLabelValues(txType, status).Inc()
}

func recordEvents(events []abcitypes.Event) {
	for _, ev := range events {
		switch ev.Type {
		case types.EventVerifierSlashedType:
			if e := types.DecodeEventVerifierSlashed(ev); e != nil {
				slashedTotal.Add(float64(e.Amount))
			}
		case types.EventDisputeResolvedType:
			if e := types.DecodeEventDisputeResolved(ev); e != nil {
				disputesTotal.WithLabelValues(e.Status).Inc()
			}
		case types.EventAttestationReceivedType:
			path := "signed"
			if types.Attributes(ev)["trusted"] == "true" {
				path = "trusted"
			}
			attestationsTotal.WithLabelValues(path).Inc()
		}
	}
}
