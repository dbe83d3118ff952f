package domain

import "time"

// ChangeType tags a change-feed event.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Collections exposed on the change feed.
const (
	CollectionSamples = "samples"
	CollectionTeams   = "teams"
)

// ChangeEvent describes one mutation pushed to feed subscribers. Create
// and update events carry the document's full current state; delete events
// carry only the identifier. Seq is a per-collection monotonic sequence
// assigned at publish time so subscribers can discard stale updates.
type ChangeEvent struct {
	Collection string     `json:"collection"`
	Type       ChangeType `json:"type"`
	DocumentID string     `json:"document_id"`
	TeamID     string     `json:"team_id,omitempty"`
	Seq        uint64     `json:"seq"`
	Sample     *Sample    `json:"sample,omitempty"`
	Team       *Team      `json:"team,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
