package domain

import "encoding/json"

// Phase is the coarse state of a quiz session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseComplete   Phase = "complete"
)

// Response is a single recorded answer.
type Response struct {
	ScenarioID int   `json:"scenarioId"`
	Tribe      Tribe `json:"tribe"`
}

// ResponseSet holds at most one answer per scenario, in the order scenarios were
// first answered. It is a value type: mutators return a copy.
type ResponseSet struct {
	entries []Response
}

// NewResponseSet builds a set from responses in order; a repeated scenario
// overwrites the earlier tribe in place.
func NewResponseSet(responses ...Response) ResponseSet {
	var rs ResponseSet
	for _, r := range responses {
		rs = rs.With(r.ScenarioID, r.Tribe)
	}
	return rs
}

// Len is the number of answered scenarios.
func (rs ResponseSet) Len() int {
	return len(rs.entries)
}

// Get returns the tribe recorded for a scenario.
func (rs ResponseSet) Get(scenarioID int) (Tribe, bool) {
	for _, r := range rs.entries {
		if r.ScenarioID == scenarioID {
			return r.Tribe, true
		}
	}
	return "", false
}

// With returns a copy with the answer for scenarioID set. Overwriting keeps the
// original insertion position.
func (rs ResponseSet) With(scenarioID int, tribe Tribe) ResponseSet {
	next := make([]Response, len(rs.entries), len(rs.entries)+1)
	copy(next, rs.entries)
	for i := range next {
		if next[i].ScenarioID == scenarioID {
			next[i].Tribe = tribe
			return ResponseSet{entries: next}
		}
	}
	return ResponseSet{entries: append(next, Response{ScenarioID: scenarioID, Tribe: tribe})}
}

// Entries returns the responses in insertion order.
func (rs ResponseSet) Entries() []Response {
	out := make([]Response, len(rs.entries))
	copy(out, rs.entries)
	return out
}

// MarshalJSON encodes the set as an array so insertion order survives storage.
func (rs ResponseSet) MarshalJSON() ([]byte, error) {
	if rs.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rs.entries)
}

func (rs *ResponseSet) UnmarshalJSON(data []byte) error {
	var entries []Response
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*rs = NewResponseSet(entries...)
	return nil
}

// SessionState is the full persisted state of one quiz session. The step
// pointer and the responses live together so they cannot drift apart.
type SessionState struct {
	Step      int         `json:"step"`
	Responses ResponseSet `json:"responses"`
	Completed bool        `json:"completed"`
}
