package metrics

import (
	"context"
	"time"

	"github.com/Proton-105/debtbot/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	activeUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_users",
			Help: "Current number of active users",
		},
	)
	usersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "users_by_state",
			Help: "Number of users per state",
		},
		[]string{"state"},
	)
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations labeled by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	settlementRemainder = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_settlement_remainder",
			Help:    "Unallocated part of settled payments",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		},
		[]string{"currency"},
	)
	conversionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_conversion_failures_total",
			Help: "Currency conversions that failed inside ledger operations",
		},
		[]string{"operation", "currency"},
	)
	rateLookupSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_lookup_duration_seconds",
			Help:    "Latency of exchange rate lookups",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "status"},
	)
	rateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter decisions by scope and result",
		},
		[]string{"scope", "result"},
	)
)

var trackedStates = []state.State{
	state.StateIdle,
	state.StateExpenseSelecting,
	state.StatePaymentAwaitingAmount,
	state.StateError,
}

func init() {
	state.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition tracks FSM transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// SetActiveUsers updates the gauge for current active users.
func SetActiveUsers(count int) {
	activeUsers.Set(float64(count))
}

// SetUsersByState updates the gauge for the given state.
func SetUsersByState(state string, count int) {
	if state == "" {
		state = "unknown"
	}

	usersByState.WithLabelValues(state).Set(float64(count))
}

// RecordLedgerOperation counts a ledger call by its outcome.
func RecordLedgerOperation(operation, outcome string) {
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	ledgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordSettlementRemainder observes the unallocated part of a payment.
func RecordSettlementRemainder(currency string, remainder float64) {
	if currency == "" {
		currency = "unknown"
	}

	settlementRemainder.WithLabelValues(currency).Observe(remainder)
}

// RecordConversionFailure counts a failed conversion inside a ledger operation.
func RecordConversionFailure(operation, currency string) {
	if operation == "" {
		operation = "unknown"
	}
	if currency == "" {
		currency = "unknown"
	}

	conversionFailuresTotal.WithLabelValues(operation, currency).Inc()
}

// RecordRateLookup observes a rate lookup against source ("cache", "provider").
func RecordRateLookup(source, status string, duration time.Duration) {
	rateLookupSeconds.WithLabelValues(source, status).Observe(duration.Seconds())
}

// RecordRateLimitDecision counts an allowed or rejected update.
func RecordRateLimitDecision(scope string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}

	rateLimitDecisionsTotal.WithLabelValues(scope, result).Inc()
}

// StateCollector periodically gathers FSM state counts and emits gauge metrics.
type StateCollector struct {
	fsm      state.StateMachine
	interval time.Duration
}

// NewStateCollector builds a metrics collector bound to the provided FSM.
func NewStateCollector(fsm state.StateMachine, interval time.Duration) *StateCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &StateCollector{fsm: fsm, interval: interval}
}

// Run polls the FSM every interval, updating active member gauges until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.fsm == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	states, err := c.fsm.GetAllStates(ctx)
	if err != nil {
		return err
	}

	SetActiveUsers(len(states))

	stateCounts := make(map[string]int, len(states))
	for _, st := range states {
		label := "unknown"
		if st != nil && st.CurrentState != "" {
			label = string(st.CurrentState)
		}
		stateCounts[label]++
	}

	usersByState.Reset()

	for _, tracked := range trackedStates {
		label := string(tracked)
		SetUsersByState(label, stateCounts[label])
		delete(stateCounts, label)
	}

	for label, count := range stateCounts {
		SetUsersByState(label, count)
	}

	return nil
}
