// Package lifecycle implements the approval state machine shared by journal
// entries, budgets, payroll, tax returns and commercial documents.
//
// Every kind follows the same shape: DRAFT -> APPROVED -> final, where final
// is POSTED (PAID for payroll), and both DRAFT and APPROVED may be CANCELLED.
// POSTED, PAID and CANCELLED are terminal.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/fincore/internal/shared"
)

// State enumerates lifecycle states.
type State string

const (
	StateDraft     State = "DRAFT"
	StateApproved  State = "APPROVED"
	StatePosted    State = "POSTED"
	StatePaid      State = "PAID"
	StateCancelled State = "CANCELLED"
)

// Action enumerates requested moves.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionPost    Action = "POST"
	ActionPay     Action = "PAY"
	ActionCancel  Action = "CANCEL"
)

// Kind selects the transition table.
type Kind string

const (
	KindJournalEntry Kind = "JOURNAL_ENTRY"
	KindBudget       Kind = "BUDGET"
	KindTaxReturn    Kind = "TAX_RETURN"
	KindPayroll      Kind = "PAYROLL"
	KindDocument     Kind = "DOCUMENT"
)

type edge struct {
	from   State
	action Action
}

func table(finalAction Action, final State) map[edge]State {
	return map[edge]State{
		{StateDraft, ActionApprove}:   StateApproved,
		{StateApproved, finalAction}:  final,
		{StateDraft, ActionCancel}:    StateCancelled,
		{StateApproved, ActionCancel}: StateCancelled,
	}
}

var tables = map[Kind]map[edge]State{
	KindJournalEntry: table(ActionPost, StatePosted),
	KindBudget:       table(ActionPost, StatePosted),
	KindTaxReturn:    table(ActionPost, StatePosted),
	KindDocument:     table(ActionPost, StatePosted),
	KindPayroll:      table(ActionPay, StatePaid),
}

// Known reports whether k has a transition table.
func (k Kind) Known() bool {
	_, ok := tables[k]
	return ok
}

// ErrUnknownKind indicates a kind without a transition table.
var ErrUnknownKind = errors.New("lifecycle: unknown document kind")

// Terminal reports whether no transition may leave s.
func (s State) Terminal() bool {
	return s == StatePosted || s == StatePaid || s == StateCancelled
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateApproved, StatePosted, StatePaid, StateCancelled:
		return true
	}
	return false
}

// ParseState normalises user input into a State.
func ParseState(raw string) (State, error) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("lifecycle: unknown state %q: %w", raw, shared.ErrInvalidInput)
	}
	return s, nil
}

// ParseAction normalises user input into an Action.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(raw)))
	switch a {
	case ActionApprove, ActionPost, ActionPay, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("lifecycle: unknown action %q: %w", raw, shared.ErrInvalidInput)
}

// Next returns the target state for action from, if legal for kind.
func Next(kind Kind, from State, action Action) (State, bool) {
	t, ok := tables[kind]
	if !ok {
		return "", false
	}
	to, ok := t[edge{from, action}]
	return to, ok
}

// Allowed lists the actions legal from a state, sorted.
func Allowed(kind Kind, from State) []Action {
	var out []Action
	for e := range tables[kind] {
		if e.from == from {
			out = append(out, e.action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Precondition is a kind-specific rule evaluated after the move is known to
// be reachable. It receives the action and the target state.
type Precondition func(action Action, to State) error

// Request describes a transition attempt. Current is the state read from
// storage; Expected is the state the caller validated its inputs against.
// An empty Expected means the caller validated against Current.
type Request struct {
	Kind     Kind
	ID       string
	Current  State
	Expected State
	Action   Action
}

// Result is a validated transition. Repositories persist it with a
// conditional update on From.
type Result struct {
	Kind   Kind
	ID     string
	Action Action
	From   State
	To     State
}

// Apply validates a transition. It never mutates anything; on failure the
// state is unchanged and the error is one of StaleStateError,
// IllegalTransitionError or PreconditionFailedError.
func Apply(req Request, check Precondition) (Result, error) {
	if _, ok := tables[req.Kind]; !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
	}
	if req.Expected != "" && req.Expected != req.Current {
		return Result{}, &shared.StaleStateError{
			Entity:   strings.ToLower(string(req.Kind)),
			ID:       req.ID,
			Expected: string(req.Expected),
			Actual:   string(req.Current),
		}
	}
	to, ok := Next(req.Kind, req.Current, req.Action)
	if !ok {
		return Result{}, &shared.IllegalTransitionError{
			DocumentKind: string(req.Kind),
			From:         string(req.Current),
			Action:       string(req.Action),
		}
	}
	if check != nil {
		if err := check(req.Action, to); err != nil {
			var pf *shared.PreconditionFailedError
			if errors.As(err, &pf) {
				return Result{}, err
			}
			return Result{}, &shared.PreconditionFailedError{
				DocumentKind: string(req.Kind),
				Action:       string(req.Action),
				Reason:       "business rule not met",
				Err:          err,
			}
		}
	}
	return Result{Kind: req.Kind, ID: req.ID, Action: req.Action, From: req.Current, To: to}, nil
}

// Guard builds a Precondition that only runs rule for the listed actions.
func Guard(rule func() error, actions ...Action) Precondition {
	return func(action Action, _ State) error {
		for _, a := range actions {
			if a == action {
				return rule()
			}
		}
		return nil
	}
}

// Log converts an accepted transition into a history record.
func (r Result) Log(actorID int64, note string, at time.Time) shared.TransitionLog {
	return shared.TransitionLog{
		Kind:    string(r.Kind),
		RefID:   r.ID,
		ActorID: actorID,
		Action:  string(r.Action),
		From:    string(r.From),
		To:      string(r.To),
		Note:    note,
		At:      at,
	}
}
