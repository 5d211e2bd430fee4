package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/telegram"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// State is the hierarchical system safety state. Transitions through
// Escalate only ever raise it; de-escalation is an explicit operator action.
type State int

const (
	StateNormal    State = iota // full automated operation
	StateDegraded               // limited operations, alerts active
	StateHalted                 // no new trades, existing monitored
	StateEmergency              // close all positions immediately
	StateShutdown               // system offline
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateDegraded:
		return "DEGRADED"
	case StateHalted:
		return "HALTED"
	case StateEmergency:
		return "EMERGENCY"
	case StateShutdown:
		return "SHUTDOWN"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

const maxAdjustmentsPerHour = 10

// Decision is the outcome of a safety gate check
type Decision struct {
	Allowed          bool
	Reason           string
	RequiresApproval bool
}

// ViolationRecorder persists safety violations for the audit trail
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, violationType, severity, triggeredBy string, details map[string]any) error
}

// Controller is the single source of truth for system safety. Every decided
// action passes through it before the capital gate and the broker.
type Controller struct {
	recorder ViolationRecorder
	alerter  telegram.Alerter

	mu                  sync.Mutex
	state               State
	mode                models.ExecutionMode
	consecutiveFailures int
	maxFailures         int
	adjustmentsThisHour int
	hourWindow          time.Time
	callbacks           []func(old, new State, reason string)
}

// NewController creates the safety controller. The recorder and alerter may
// be nil when persistence or alerting is disabled.
func NewController(mode models.ExecutionMode, maxFailures int, recorder ViolationRecorder, alerter telegram.Alerter) *Controller {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if alerter == nil {
		alerter = telegram.NopAlerter{}
	}
	return &Controller{
		state:       StateNormal,
		mode:        mode,
		maxFailures: maxFailures,
		recorder:    recorder,
		alerter:     alerter,
		hourWindow:  time.Now(),
	}
}

// State returns the current safety state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current execution mode
func (c *Controller) Mode() models.ExecutionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode changes the execution mode. Switching to full auto is refused
// unless the system is fully healthy.
func (c *Controller) SetMode(mode models.ExecutionMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == models.ModeFullAuto && c.state != StateNormal {
		return fmt.Errorf("cannot enable full auto while state is %s", c.state)
	}

	logger.Info("execution mode changed",
		zap.String("from", string(c.mode)),
		zap.String("to", string(mode)))
	c.mode = mode
	return nil
}

// CanExecuteTrade is the final safety gate before an order is dispatched.
// Exits stay allowed through HALTED so a frozen system can still flatten;
// only EMERGENCY and SHUTDOWN stop everything except the emergency close
// itself.
func (c *Controller) CanExecuteTrade(kind models.ActionKind) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	isExit := kind == models.KindExit

	if c.state >= StateEmergency {
		return Decision{Allowed: false, Reason: fmt.Sprintf("system state is %s", c.state)}
	}
	if c.state >= StateHalted && !isExit {
		return Decision{Allowed: false, Reason: fmt.Sprintf("no new trades in state %s", c.state)}
	}

	switch c.mode {
	case models.ModePaper:
		return Decision{Allowed: true, Reason: "paper trading"}
	case models.ModeSemiAuto:
		if isExit {
			return Decision{Allowed: true, Reason: "exit allowed in semi auto"}
		}
		return Decision{
			Allowed:          false,
			Reason:           "semi auto mode requires manual approval",
			RequiresApproval: true,
		}
	}

	return Decision{Allowed: true, Reason: "all checks passed"}
}

// CanAdjustTrade gates hedge adjustments, which additionally carry an hourly
// rate limit in full auto. Exceeding the limit degrades the system. The
// counter tracks dispatched hedges, not checks: the caller reports fills
// through RecordAdjustment.
func (c *Controller) CanAdjustTrade(ctx context.Context) Decision {
	decision := c.CanExecuteTrade(models.KindHedge)
	if !decision.Allowed {
		return decision
	}

	c.mu.Lock()
	if time.Since(c.hourWindow) >= time.Hour {
		c.hourWindow = time.Now()
		c.adjustmentsThisHour = 0
	}

	if c.mode == models.ModeFullAuto && c.adjustmentsThisHour >= maxAdjustmentsPerHour {
		count := c.adjustmentsThisHour
		c.mu.Unlock()

		c.Escalate(ctx, StateDegraded, "adjustment rate limit reached",
			map[string]any{"adjustments": count})
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("adjustment rate limit reached: %d/hour", count),
		}
	}

	c.mu.Unlock()
	return decision
}

// RecordAdjustment counts one dispatched hedge against the hourly rate limit
func (c *Controller) RecordAdjustment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.hourWindow) >= time.Hour {
		c.hourWindow = time.Now()
		c.adjustmentsThisHour = 0
	}
	c.adjustmentsThisHour++
}

// RecordFailure tracks a cycle failure. Crossing the consecutive failure
// threshold halts trading until an operator intervenes.
func (c *Controller) RecordFailure(ctx context.Context, failureType string, details map[string]any) {
	c.mu.Lock()
	c.consecutiveFailures++
	failures := c.consecutiveFailures
	c.mu.Unlock()

	severity := "MEDIUM"
	if failures > 3 {
		severity = "HIGH"
	}
	c.recordViolation(ctx, failureType, severity, "system", details)

	logger.Warn("failure recorded",
		zap.String("type", failureType),
		zap.Int("consecutive", failures))

	if failures >= c.maxFailures {
		c.Escalate(ctx, StateHalted, "consecutive failure limit reached",
			map[string]any{"failures": failures})
	}
}

// RecordSuccess resets the consecutive failure counter
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

// ConsecutiveFailures returns the current failure streak
func (c *Controller) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveFailures
}

// Escalate raises the system state. A target at or below the current state
// is ignored, so concurrent escalations cannot lower safety.
func (c *Controller) Escalate(ctx context.Context, target State, reason string, details map[string]any) {
	c.mu.Lock()
	old := c.state
	if target <= old {
		c.mu.Unlock()
		return
	}
	c.state = target
	callbacks := make([]func(State, State, string), len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()

	logger.Error("system state escalated",
		zap.String("from", old.String()),
		zap.String("to", target.String()),
		zap.String("reason", reason))

	if details == nil {
		details = map[string]any{}
	}
	details["from"] = old.String()
	details["to"] = target.String()
	details["reason"] = reason
	c.recordViolation(ctx, "state_escalation", "CRITICAL", "safety_controller", details)

	c.alerter.Alert(telegram.SeverityCritical, "State escalated",
		fmt.Sprintf("%s -> %s: %s", old, target, reason))

	for _, cb := range callbacks {
		cb(old, target, reason)
	}
}

// Deescalate lowers the system state, operator action only
func (c *Controller) Deescalate(target State, operator string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target >= c.state {
		return fmt.Errorf("cannot deescalate from %s to %s", c.state, target)
	}

	logger.Warn("system state deescalated",
		zap.String("from", c.state.String()),
		zap.String("to", target.String()),
		zap.String("operator", operator))
	c.state = target
	c.consecutiveFailures = 0
	return nil
}

// OnStateChange registers a callback invoked after every escalation
func (c *Controller) OnStateChange(cb func(old, new State, reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

// Status reports the controller state for the health endpoint
func (c *Controller) Status() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"system_state":          c.state.String(),
		"execution_mode":        string(c.mode),
		"consecutive_failures":  c.consecutiveFailures,
		"adjustments_this_hour": c.adjustmentsThisHour,
	}
}

func (c *Controller) recordViolation(ctx context.Context, violationType, severity, triggeredBy string, details map[string]any) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordViolation(ctx, violationType, severity, triggeredBy, details); err != nil {
		logger.Error("failed to persist safety violation", zap.Error(err))
	}
}
