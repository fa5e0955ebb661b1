package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/verify"
)

// CallbackType defines the points in the orchestration lifecycle where
// callbacks run.
//
// Callbacks observe committed facts: by the time a callback runs the state
// change it describes has already happened. An error returned by a callback
// is logged and stops later callbacks of the same type, but never rolls the
// state change back.
type CallbackType string

const (
	// CallbackOnSpawn runs after an agent (root or worker) was created.
	CallbackOnSpawn CallbackType = "on_spawn"

	// CallbackOnDismiss runs once per dismissal with the final snapshot of
	// the dismissed target.
	CallbackOnDismiss CallbackType = "on_dismiss"

	// CallbackOnTransition runs after every committed lifecycle transition,
	// including those fired during dismissal.
	CallbackOnTransition CallbackType = "on_transition"

	// CallbackOnEscalation runs after an escalation was routed.
	CallbackOnEscalation CallbackType = "on_escalation"

	// CallbackOnVerification runs after a verification round.
	CallbackOnVerification CallbackType = "on_verification"

	// CallbackOnPersistError runs when the store rejected a snapshot.
	CallbackOnPersistError CallbackType = "on_persist_error"
)

// CallbackContext carries the facts a callback may inspect. Only the fields
// relevant to the callback type are set.
type CallbackContext struct {
	// AgentID identifies the agent the callback is about.
	AgentID string

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Snapshot is the agent state after the change.
	Snapshot *core.Snapshot

	// Transition is set for CallbackOnTransition.
	Transition *core.Transition

	// Outcome is set for CallbackOnEscalation.
	Outcome *core.Outcome

	// Report is set for CallbackOnVerification.
	Report *verify.Report

	// Err is set for CallbackOnPersistError.
	Err error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for orchestration hooks.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	onFail := NewFunctionCallback(
//	    CallbackOnTransition,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        if cc.Transition.To == core.StateFailed {
//	            log.Printf("agent %s failed: %s", cc.AgentID, cc.Snapshot.FailureReason)
//	        }
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is the registry of callbacks. Registration and execution
// are safe for concurrent use; callbacks of one type run in registration
// order.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
// Execution stops at the first error, which is returned.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards a one-line description of each event to a
// logging function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackOnTransition, func(msg string) {
//	    log.Printf("[TREE] %s", msg)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	message := fmt.Sprintf("[%s] Agent: %s", c.callbackType, callbackCtx.AgentID)
	switch {
	case callbackCtx.Transition != nil:
		t := callbackCtx.Transition
		message += fmt.Sprintf(", %s --%s--> %s", t.From, t.Event, t.To)
	case callbackCtx.Outcome != nil:
		message += fmt.Sprintf(", escalation %s %s by %s", callbackCtx.Outcome.Escalation.ID, callbackCtx.Outcome.Kind, callbackCtx.Outcome.HandlerID)
	case callbackCtx.Report != nil:
		message += fmt.Sprintf(", verification passed=%d failed=%d", len(callbackCtx.Report.Passed), len(callbackCtx.Report.Failed))
	case callbackCtx.Err != nil:
		message += fmt.Sprintf(", error: %v", callbackCtx.Err)
	case callbackCtx.Snapshot != nil:
		message += fmt.Sprintf(", state: %s", callbackCtx.Snapshot.State)
	}
	c.logger(message)
	return nil
}
