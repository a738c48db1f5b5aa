// Package metrics counts bridge traffic and payment flow transitions.
package metrics

import "time"

// Event names recorded by the bridge and the flow orchestrator.
const (
	EventBridgeInvoke     = "bridge_invoke"
	EventBridgeTimeout    = "bridge_timeout"
	EventBridgeDropped    = "bridge_dropped_reply"
	EventFlowApproved     = "flow_approved"
	EventFlowSettled      = "flow_settled"
	EventFlowExpired      = "flow_expired"
	EventFlowAbandoned    = "flow_abandoned"
	EventHeaderBuildError = "header_build_error"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

type Noop struct{}

func (Noop) IncCounter(string, map[string]string)                    {}
func (Noop) ObserveLatency(string, time.Duration, map[string]string) {}
