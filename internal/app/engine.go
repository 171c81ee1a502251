package app

import (
	"time"

	"tribe-quiz-service/internal/domain"
)

// Engine turns scenario answers into live progress and a final tribe. Every
// method is pure: states go in, new states come out.
type Engine struct {
	scenarios domain.ScenarioSet
}

// NewEngine validates the scenario set and builds an engine over it.
func NewEngine(scenarios domain.ScenarioSet) (*Engine, error) {
	if err := scenarios.Validate(); err != nil {
		return nil, err
	}
	return &Engine{scenarios: scenarios}, nil
}

// Size is N, the number of scenarios in the quiz.
func (e *Engine) Size() int {
	return len(e.scenarios.Scenarios)
}

// Scenarios returns the set the engine was built from.
func (e *Engine) Scenarios() domain.ScenarioSet {
	return e.scenarios
}

// Start moves a fresh session onto the first scenario.
func (e *Engine) Start(state domain.SessionState) domain.SessionState {
	if e.Phase(state) != domain.PhaseNotStarted {
		return state
	}
	state.Step = 1
	return state
}

// RecordAnswer sets the answer for a scenario and auto-advances the pointer.
// Unknown scenarios or tribes leave the state untouched.
func (e *Engine) RecordAnswer(state domain.SessionState, scenarioID int, tribe domain.Tribe) domain.SessionState {
	if _, ok := e.scenarios.Scenario(scenarioID); !ok || !tribe.Valid() {
		return state
	}
	next := domain.SessionState{
		Step:      state.Step,
		Responses: state.Responses.With(scenarioID, tribe),
	}
	next.Completed = next.Responses.Len() >= e.Size()
	return e.Advance(next)
}

// Advance moves the step pointer forward by one, capped at N.
func (e *Engine) Advance(state domain.SessionState) domain.SessionState {
	if state.Step < e.Size() {
		state.Step++
	}
	if state.Step < 0 {
		state.Step = 0
	}
	return state
}

// Skip advances without recording an answer.
func (e *Engine) Skip(state domain.SessionState) domain.SessionState {
	return e.Advance(state)
}

// Reset returns the NotStarted state used for "retake quiz".
func (e *Engine) Reset() domain.SessionState {
	return domain.SessionState{}
}

// Phase derives the coarse session state.
func (e *Engine) Phase(state domain.SessionState) domain.Phase {
	switch {
	case state.Completed:
		return domain.PhaseComplete
	case state.Step == 0 && state.Responses.Len() == 0:
		return domain.PhaseNotStarted
	default:
		return domain.PhaseInProgress
	}
}

// ComputeScores folds the responses into per-tribe counts.
func ComputeScores(responses domain.ResponseSet) domain.ScoreVector {
	scores := make(domain.ScoreVector, len(domain.AllTribes))
	for _, t := range domain.AllTribes {
		scores[t] = 0
	}
	for _, r := range responses.Entries() {
		scores[r.Tribe]++
	}
	return scores
}

// ComputePercentages rounds each tribe's share half-up, independently, so the
// values need not sum to exactly 100.
func ComputePercentages(scores domain.ScoreVector, totalAnswered int) domain.PercentageVector {
	denom := totalAnswered
	if denom < 1 {
		denom = 1
	}
	out := make(domain.PercentageVector, len(domain.AllTribes))
	for _, t := range domain.AllTribes {
		// floor(100*s/d + 1/2) in integers
		out[t] = (200*scores[t] + denom) / (2 * denom)
	}
	return out
}

// ComputeWinner returns the winning tribe once every scenario is answered.
// Ties go to whichever tied tribe appears first in answer insertion order.
func (e *Engine) ComputeWinner(scores domain.ScoreVector, responses domain.ResponseSet) (domain.Tribe, bool) {
	if responses.Len() < e.Size() {
		return "", false
	}

	best := -1
	var leaders []domain.Tribe
	for _, t := range domain.AllTribes {
		switch n := scores[t]; {
		case n > best:
			best = n
			leaders = []domain.Tribe{t}
		case n == best:
			leaders = append(leaders, t)
		}
	}
	if len(leaders) == 1 {
		return leaders[0], true
	}

	for _, r := range responses.Entries() {
		for _, t := range leaders {
			if r.Tribe == t {
				return t, true
			}
		}
	}
	return "", false
}

// Progress builds the presentation tuple for a state.
func (e *Engine) Progress(state domain.SessionState) domain.Progress {
	scores := ComputeScores(state.Responses)
	total := state.Responses.Len()
	progress := domain.Progress{
		Scores:        scores,
		Percentages:   ComputePercentages(scores, total),
		TotalAnswered: total,
	}
	if winner, ok := e.ComputeWinner(scores, state.Responses); ok {
		progress.Winner = &winner
	}
	return progress
}

// StepView reports the pointer position for a state.
func (e *Engine) StepView(state domain.SessionState) domain.StepView {
	return domain.StepView{
		Step:      state.Step,
		Total:     e.Size(),
		Phase:     e.Phase(state),
		Completed: state.Completed,
	}
}

// Result builds the terminal artifact; false until every scenario is answered.
func (e *Engine) Result(state domain.SessionState, completedAt time.Time) (domain.QuizResult, bool) {
	scores := ComputeScores(state.Responses)
	winner, ok := e.ComputeWinner(scores, state.Responses)
	if !ok {
		return domain.QuizResult{}, false
	}
	return domain.QuizResult{
		Tribe:       winner,
		Scores:      scores,
		Percentages: ComputePercentages(scores, state.Responses.Len()),
		CompletedAt: completedAt,
	}, true
}
