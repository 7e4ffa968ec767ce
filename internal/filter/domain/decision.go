package domain

// FilterAction is the verdict of the request filter.
type FilterAction uint8

const (
	// ActionAllow passes the request through unchanged.
	ActionAllow FilterAction = iota
	// ActionBlock substitutes a synthetic response.
	ActionBlock
)

// String returns a stable string representation of the action.
func (a FilterAction) String() string {
	if a == ActionBlock {
		return "block"
	}
	return "allow"
}

// FilterDecision is the outcome of filtering one Request. It is never persisted.
type FilterDecision struct {
	Action FilterAction
	Reason string // why the request was blocked; empty for Allow
	Body   string // synthetic HTML response body; empty for Allow

	// MatchedEntry is the blocklist token that caused a Block.
	MatchedEntry string
}

// Allow returns a pass-through decision.
func Allow() FilterDecision { return FilterDecision{Action: ActionAllow} }

// Block returns a blocking decision carrying the synthetic body.
func Block(reason, body string) FilterDecision {
	return FilterDecision{Action: ActionBlock, Reason: reason, Body: body}
}

// IsBlocked is a convenience accessor.
func (d FilterDecision) IsBlocked() bool { return d.Action == ActionBlock }
