package metric

import "github.com/prometheus/client_golang/prometheus"

const (
	// ClientRequestsName counts round trips to the menu API.
	ClientRequestsName = "kitchen_client_requests_total"

	// StateOperationsName counts state manager operations.
	StateOperationsName = "kitchen_state_operations_total"
)

// NewClientRequests registers the menu API request counter, labeled by
// operation and outcome.
func NewClientRequests(reg prometheus.Registerer) IncrementalCounter {
	return NewCounterWithRegistry(reg, ClientRequestsName,
		"Number of menu API requests by operation and outcome.", "op", "outcome")
}

// NewStateOperations registers the state manager operation counter, labeled
// by operation and outcome.
func NewStateOperations(reg prometheus.Registerer) IncrementalCounter {
	return NewCounterWithRegistry(reg, StateOperationsName,
		"Number of menu state operations by operation and outcome.", "op", "outcome")
}
