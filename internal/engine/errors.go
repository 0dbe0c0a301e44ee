package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ruleunit/internal/ir"
)

// RuntimeError represents an error reported by a session or knowledge base.
//
// Runtime errors include:
//   - Duplicate identity: InsertWithID with an id the store already holds
//   - Session closed: any operation after Close
//   - Rule cycle exceeded: FireAll reached its firing cap
//   - Unknown query: Query with an unregistered name
//   - Action failed: a rule action returned an error
//   - Invalid rule: AddRule/AddQuery with a malformed descriptor
//
// Every error is returned synchronously by the call that triggered it.
// Nothing is retried.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session, if any.
	SessionID string

	// Rule names the rule involved (cycle, action and validation errors).
	Rule string

	// FactID identifies the fact involved (duplicate identity).
	FactID ir.FactID

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDuplicateIdentity indicates an explicit fact id is already in use.
	ErrCodeDuplicateIdentity RuntimeErrorCode = "DUPLICATE_IDENTITY"

	// ErrCodeSessionClosed indicates an operation on a closed session.
	ErrCodeSessionClosed RuntimeErrorCode = "SESSION_CLOSED"

	// ErrCodeRuleCycleExceeded indicates FireAll reached its firing cap.
	ErrCodeRuleCycleExceeded RuntimeErrorCode = "RULE_CYCLE_EXCEEDED"

	// ErrCodeUnknownQuery indicates a query name that was never registered.
	ErrCodeUnknownQuery RuntimeErrorCode = "UNKNOWN_QUERY"

	// ErrCodeActionFailed indicates a rule action returned an error.
	ErrCodeActionFailed RuntimeErrorCode = "ACTION_FAILED"

	// ErrCodeInvalidRule indicates a rule or query descriptor failed validation.
	ErrCodeInvalidRule RuntimeErrorCode = "INVALID_RULE"

	// ErrCodeInvalidArgument indicates a malformed call, such as a query
	// argument count mismatch or an update that changes a fact's type.
	ErrCodeInvalidArgument RuntimeErrorCode = "INVALID_ARGUMENT"
)

// Sentinels for errors.Is. A RuntimeError matches a sentinel with the same Code.
var (
	ErrDuplicateIdentity = &RuntimeError{Code: ErrCodeDuplicateIdentity}
	ErrSessionClosed     = &RuntimeError{Code: ErrCodeSessionClosed}
	ErrRuleCycleExceeded = &RuntimeError{Code: ErrCodeRuleCycleExceeded}
	ErrUnknownQuery      = &RuntimeError{Code: ErrCodeUnknownQuery}
	ErrActionFailed      = &RuntimeError{Code: ErrCodeActionFailed}
	ErrInvalidRule       = &RuntimeError{Code: ErrCodeInvalidRule}
	ErrInvalidArgument   = &RuntimeError{Code: ErrCodeInvalidArgument}
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var ctx []string
	if e.SessionID != "" {
		ctx = append(ctx, "session="+e.SessionID)
	}
	if e.Rule != "" {
		ctx = append(ctx, "rule="+e.Rule)
	}
	if e.FactID != 0 {
		ctx = append(ctx, "fact="+e.FactID.String())
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a RuntimeError with the same code.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsDuplicateIdentity returns true if err is a duplicate identity error.
func IsDuplicateIdentity(err error) bool { return hasCode(err, ErrCodeDuplicateIdentity) }

// IsSessionClosed returns true if err reports a closed session.
func IsSessionClosed(err error) bool { return hasCode(err, ErrCodeSessionClosed) }

// IsRuleCycleExceeded returns true if err reports an exhausted firing cap.
// Uses errors.As to handle wrapped errors.
func IsRuleCycleExceeded(err error) bool { return hasCode(err, ErrCodeRuleCycleExceeded) }

// IsUnknownQuery returns true if err reports an unregistered query.
func IsUnknownQuery(err error) bool { return hasCode(err, ErrCodeUnknownQuery) }

// IsActionFailed returns true if err wraps a failing rule action.
func IsActionFailed(err error) bool { return hasCode(err, ErrCodeActionFailed) }

// IsInvalidRule returns true if err reports a rejected descriptor.
func IsInvalidRule(err error) bool { return hasCode(err, ErrCodeInvalidRule) }

func newDuplicateIdentityError(sessionID string, id ir.FactID) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeDuplicateIdentity,
		Message:   "fact id already in use",
		SessionID: sessionID,
		FactID:    id,
	}
}

func newSessionClosedError(sessionID, op string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeSessionClosed,
		Message:   op + " called on closed session",
		SessionID: sessionID,
	}
}

// NewCycleError creates a RuntimeError for an exhausted firing cap.
// rule names the activation that would have fired next.
func NewCycleError(sessionID, rule string, firings, maxFirings int) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeRuleCycleExceeded,
		Message:   fmt.Sprintf("firing cap reached (%d > %d)", firings, maxFirings),
		SessionID: sessionID,
		Rule:      rule,
		Details: map[string]string{
			"firings":     fmt.Sprintf("%d", firings),
			"max_firings": fmt.Sprintf("%d", maxFirings),
		},
	}
}

func newUnknownQueryError(sessionID, name string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeUnknownQuery,
		Message:   fmt.Sprintf("query %q is not registered", name),
		SessionID: sessionID,
	}
}

func newActionError(sessionID, rule string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeActionFailed,
		Message:   "rule action failed",
		SessionID: sessionID,
		Rule:      rule,
		Err:       err,
	}
}

func newInvalidRuleError(name string, errs []ir.ValidationError) *RuntimeError {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return &RuntimeError{
		Code:    ErrCodeInvalidRule,
		Message: strings.Join(msgs, "; "),
		Rule:    name,
	}
}

func newInvalidArgumentError(sessionID, msg string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeInvalidArgument,
		Message:   msg,
		SessionID: sessionID,
	}
}
