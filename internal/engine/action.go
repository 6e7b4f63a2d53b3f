package engine

import "github.com/rosterlabs/signsync/internal/roster"

// Kind discriminates the actions a reconciliation pass can emit.
type Kind string

const (
	ActionInsert     Kind = "insert"
	ActionUpdate     Kind = "update"
	ActionDeactivate Kind = "deactivate"
	ActionSkip       Kind = "skip"
)

// SkipReason explains why a user produced no write action.
type SkipReason string

const (
	// SkipNotPresent marks a directory user absent from the roster while user
	// creation is disabled or unsupported.
	SkipNotPresent SkipReason = "not-present"
	// SkipNoUpdate marks a user whose group and roles already match.
	SkipNoUpdate SkipReason = "no-update-needed"
)

// Action is one decision of the reconciliation pass. Actions are produced
// once, never mutated, and consumed immediately by the roster connector.
type Action struct {
	Kind    Kind
	Email   string
	UserID  string
	Payload roster.UserPayload
	Reason  SkipReason

	// groupChanged/rolesChanged carry the classification of an update for
	// logging once the write succeeds.
	groupChanged bool
	rolesChanged bool
	group        string
}
