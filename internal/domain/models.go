package domain

import (
	"fmt"
	"time"
)

// OptionsPerScenario is the fixed number of answers each scenario offers.
const OptionsPerScenario = 4

// Option is one answer to a scenario; choosing it votes for exactly one tribe.
type Option struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Tribe Tribe  `json:"tribe" yaml:"tribe"`
}

// Scenario is a single multiple-choice question in the fixed quiz sequence.
type Scenario struct {
	ID       int      `json:"id" yaml:"id"`
	Category string   `json:"category" yaml:"category"`
	Prompt   string   `json:"prompt" yaml:"prompt"`
	Options  []Option `json:"options" yaml:"options"`
}

// Option looks up an answer by key.
func (s Scenario) Option(key string) (Option, bool) {
	for _, opt := range s.Options {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// ScenarioSet is the versioned, ordered list of scenarios a quiz is built from.
type ScenarioSet struct {
	Version   string     `json:"version" yaml:"version"`
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}

// Scenario looks up a scenario by its 1-based identifier.
func (s ScenarioSet) Scenario(id int) (Scenario, bool) {
	if id < 1 || id > len(s.Scenarios) {
		return Scenario{}, false
	}
	return s.Scenarios[id-1], true
}

// Validate checks the static invariants: ids run 1..N in order, every scenario
// has exactly four options with unique keys, and each option maps to a known tribe.
func (s ScenarioSet) Validate() error {
	if len(s.Scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios", ErrInvalidScenarioSet)
	}
	for i, sc := range s.Scenarios {
		if sc.ID != i+1 {
			return fmt.Errorf("%w: scenario at position %d has id %d", ErrInvalidScenarioSet, i+1, sc.ID)
		}
		if len(sc.Options) != OptionsPerScenario {
			return fmt.Errorf("%w: scenario %d has %d options", ErrInvalidScenarioSet, sc.ID, len(sc.Options))
		}
		seen := make(map[string]struct{}, len(sc.Options))
		for _, opt := range sc.Options {
			if opt.Key == "" {
				return fmt.Errorf("%w: scenario %d has an option without a key", ErrInvalidScenarioSet, sc.ID)
			}
			if _, dup := seen[opt.Key]; dup {
				return fmt.Errorf("%w: scenario %d repeats option %q", ErrInvalidScenarioSet, sc.ID, opt.Key)
			}
			seen[opt.Key] = struct{}{}
			if !opt.Tribe.Valid() {
				return fmt.Errorf("%w: scenario %d option %q maps to %q", ErrInvalidScenarioSet, sc.ID, opt.Key, opt.Tribe)
			}
		}
	}
	return nil
}

// QuizResult is the terminal artifact of a completed quiz.
type QuizResult struct {
	Tribe       Tribe            `json:"tribe"`
	Scores      ScoreVector      `json:"scores"`
	Percentages PercentageVector `json:"percentages"`
	CompletedAt time.Time        `json:"completedAt"`
}

// ProfileTribe is what the profile collaborator upserts for a user.
type ProfileTribe struct {
	UserID      string    `json:"userId"`
	Tribe       Tribe     `json:"tribe"`
	CompletedAt time.Time `json:"completedAt"`
}

// PendingSave marks a profile write that exhausted its retries and should be
// attempted again on a later visit.
type PendingSave struct {
	UserID      string    `json:"userId"`
	Tribe       Tribe     `json:"tribe"`
	CompletedAt time.Time `json:"completedAt"`
	Attempts    int       `json:"attempts"`
}

// Profile returns the payload the profile collaborator expects.
func (p PendingSave) Profile() ProfileTribe {
	return ProfileTribe{UserID: p.UserID, Tribe: p.Tribe, CompletedAt: p.CompletedAt}
}

// Progress is the live tuple handed to the presentation layer after every mutation.
type Progress struct {
	Scores        ScoreVector      `json:"scores"`
	Percentages   PercentageVector `json:"percentages"`
	TotalAnswered int              `json:"totalAnswered"`
	Winner        *Tribe           `json:"winner"`
}

// StepView describes where the session pointer is.
type StepView struct {
	Step      int   `json:"step"`
	Total     int   `json:"total"`
	Phase     Phase `json:"phase"`
	Completed bool  `json:"completed"`
}

// Snapshot bundles everything a client needs to render a session.
type Snapshot struct {
	SessionID string      `json:"sessionId"`
	Step      StepView    `json:"step"`
	Progress  Progress    `json:"progress"`
	Result    *QuizResult `json:"result,omitempty"`
}

// EventType distinguishes state snapshots from save notices.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventNotice   EventType = "notice"
)

// Event is pushed to session subscribers.
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Notice   string
}
