package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session has not been opened.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrScenarioSetNotFound indicates the scenario catalog could not be loaded.
	ErrScenarioSetNotFound = errors.New("scenario set not found")
	// ErrInvalidScenarioSet is wrapped with details when static scenario data is malformed.
	ErrInvalidScenarioSet = errors.New("invalid scenario set")
	// ErrScenarioNotFound indicates a submitted scenario ID is out of range.
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrOptionNotFound indicates a submitted option key is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidTribe indicates a value outside the four known tribes.
	ErrInvalidTribe = errors.New("invalid tribe")
	// ErrQuizIncomplete is returned when a result is requested before every scenario is answered.
	ErrQuizIncomplete = errors.New("quiz not complete")
	// ErrNoResult is returned when there is no stored result to claim.
	ErrNoResult = errors.New("no quiz result to claim")
	// ErrMissingUser is returned when a profile operation has no user id.
	ErrMissingUser = errors.New("user id required")
)
