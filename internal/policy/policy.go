// Package policy implements the authorization predicates checked before
// mutating operations. Deployments inject a Policy to restrict event
// creation and settlement independently.
package policy

import "github.com/bethouse/wager-engine/internal/model"

// Policy is the capability check consulted by the engine before event
// creation and before settlement.
type Policy interface {
	// CanCreateEvent reports whether caller may register new events.
	CanCreateEvent(caller string) bool

	// CanCloseEvent reports whether caller may declare the result of ev.
	CanCloseEvent(caller string, ev *model.Event) bool
}

// CreatorOnly is the default policy: any caller may create events; only
// the original creator, or the configured operator, may close one.
type CreatorOnly struct {
	// Operator is an optional identity allowed to close any event.
	// Empty means no operator override.
	Operator string
}

func (p CreatorOnly) CanCreateEvent(caller string) bool {
	return caller != ""
}

func (p CreatorOnly) CanCloseEvent(caller string, ev *model.Event) bool {
	if caller == "" {
		return false
	}
	return caller == ev.Creator || (p.Operator != "" && caller == p.Operator)
}
