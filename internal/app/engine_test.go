package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tribe-quiz-service/internal/catalog"
	"tribe-quiz-service/internal/domain"
)

const (
	t1 = domain.TribeOwl
	t2 = domain.TribeFox
	t3 = domain.TribeBear
	t4 = domain.TribeHummingbird
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(catalog.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func responses(tribes ...domain.Tribe) domain.ResponseSet {
	var rs domain.ResponseSet
	for i, tr := range tribes {
		rs = rs.With(i+1, tr)
	}
	return rs
}

func TestComputeScoresClearMajority(t *testing.T) {
	e := newTestEngine(t)
	rs := responses(t1, t1, t2, t2, t1)

	scores := ComputeScores(rs)
	want := domain.ScoreVector{t1: 3, t2: 2, t3: 0, t4: 0}
	if diff := cmp.Diff(want, scores); diff != "" {
		t.Fatalf("scores mismatch (-want +got):\n%s", diff)
	}

	winner, ok := e.ComputeWinner(scores, rs)
	if !ok || winner != t1 {
		t.Fatalf("expected %s to win, got %q ok=%v", t1, winner, ok)
	}
}

func TestComputeWinnerIncomplete(t *testing.T) {
	e := newTestEngine(t)
	rs := responses(t2, t1, t1, t2)

	if _, ok := e.ComputeWinner(ComputeScores(rs), rs); ok {
		t.Fatalf("expected no winner with %d of %d answered", rs.Len(), e.Size())
	}
	for n := 0; n < e.Size(); n++ {
		partial := responses([]domain.Tribe{t1, t2, t3, t4, t1}[:n]...)
		if _, ok := e.ComputeWinner(ComputeScores(partial), partial); ok {
			t.Fatalf("expected no winner for size %d", n)
		}
	}
}

func TestComputeWinnerTieBreakFirstSelected(t *testing.T) {
	e := newTestEngine(t)
	rs := responses(t1, t2, t1, t2, t3)

	scores := ComputeScores(rs)
	want := domain.ScoreVector{t1: 2, t2: 2, t3: 1, t4: 0}
	if diff := cmp.Diff(want, scores); diff != "" {
		t.Fatalf("scores mismatch (-want +got):\n%s", diff)
	}
	winner, ok := e.ComputeWinner(scores, rs)
	if !ok || winner != t1 {
		t.Fatalf("expected tie to go to %s, got %q", t1, winner)
	}
}

func TestTieBreakDependsOnInsertionOrder(t *testing.T) {
	e := newTestEngine(t)

	// Same distribution {fox:2, bear:2, hummingbird:1}, different first leader.
	foxFirst := domain.NewResponseSet(
		domain.Response{ScenarioID: 1, Tribe: t2},
		domain.Response{ScenarioID: 2, Tribe: t3},
		domain.Response{ScenarioID: 3, Tribe: t4},
		domain.Response{ScenarioID: 4, Tribe: t3},
		domain.Response{ScenarioID: 5, Tribe: t2},
	)
	bearFirst := domain.NewResponseSet(
		domain.Response{ScenarioID: 1, Tribe: t3},
		domain.Response{ScenarioID: 2, Tribe: t2},
		domain.Response{ScenarioID: 3, Tribe: t4},
		domain.Response{ScenarioID: 4, Tribe: t2},
		domain.Response{ScenarioID: 5, Tribe: t3},
	)
	if diff := cmp.Diff(ComputeScores(foxFirst), ComputeScores(bearFirst)); diff != "" {
		t.Fatalf("expected identical distributions:\n%s", diff)
	}

	if w, _ := e.ComputeWinner(ComputeScores(foxFirst), foxFirst); w != t2 {
		t.Fatalf("expected fox, got %s", w)
	}
	if w, _ := e.ComputeWinner(ComputeScores(bearFirst), bearFirst); w != t3 {
		t.Fatalf("expected bear, got %s", w)
	}

	// Insertion order, not scenario order, decides.
	outOfOrder := domain.NewResponseSet(
		domain.Response{ScenarioID: 5, Tribe: t3},
		domain.Response{ScenarioID: 1, Tribe: t2},
		domain.Response{ScenarioID: 2, Tribe: t2},
		domain.Response{ScenarioID: 3, Tribe: t3},
		domain.Response{ScenarioID: 4, Tribe: t1},
	)
	if w, _ := e.ComputeWinner(ComputeScores(outOfOrder), outOfOrder); w != t3 {
		t.Fatalf("expected bear (inserted first), got %s", w)
	}
}

func TestScoreSumMatchesResponses(t *testing.T) {
	sets := []domain.ResponseSet{
		{},
		responses(t4),
		responses(t1, t1, t1),
		responses(t1, t2, t3, t4, t4),
	}
	for _, rs := range sets {
		if got := ComputeScores(rs).Total(); got != rs.Len() {
			t.Fatalf("score sum %d != responses %d", got, rs.Len())
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	rs := responses(t3, t1, t3, t4)
	first := ComputeScores(rs)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, ComputeScores(rs)); diff != "" {
			t.Fatalf("scores changed between runs:\n%s", diff)
		}
		if diff := cmp.Diff(ComputePercentages(first, rs.Len()), ComputePercentages(ComputeScores(rs), rs.Len())); diff != "" {
			t.Fatalf("percentages changed between runs:\n%s", diff)
		}
	}
}

func TestComputePercentages(t *testing.T) {
	cases := []struct {
		name   string
		scores domain.ScoreVector
		total  int
		want   domain.PercentageVector
	}{
		{
			name:   "empty guards division",
			scores: domain.ScoreVector{t1: 0, t2: 0, t3: 0, t4: 0},
			total:  0,
			want:   domain.PercentageVector{t1: 0, t2: 0, t3: 0, t4: 0},
		},
		{
			name:   "thirds round independently",
			scores: domain.ScoreVector{t1: 1, t2: 1, t3: 1, t4: 0},
			total:  3,
			want:   domain.PercentageVector{t1: 33, t2: 33, t3: 33, t4: 0},
		},
		{
			name:   "half rounds up",
			scores: domain.ScoreVector{t1: 1, t2: 7, t3: 0, t4: 0},
			total:  8,
			want:   domain.PercentageVector{t1: 13, t2: 88, t3: 0, t4: 0},
		},
		{
			name:   "two thirds",
			scores: domain.ScoreVector{t1: 2, t2: 1, t3: 0, t4: 0},
			total:  3,
			want:   domain.PercentageVector{t1: 67, t2: 33, t3: 0, t4: 0},
		},
		{
			name:   "fifths",
			scores: domain.ScoreVector{t1: 3, t2: 2, t3: 0, t4: 0},
			total:  5,
			want:   domain.PercentageVector{t1: 60, t2: 40, t3: 0, t4: 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, ComputePercentages(tc.scores, tc.total)); diff != "" {
				t.Fatalf("percentages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordAnswerOverwriteKeepsSize(t *testing.T) {
	e := newTestEngine(t)
	st := e.Start(e.Reset())
	st = e.RecordAnswer(st, 1, t1)
	st = e.RecordAnswer(st, 2, t3)
	before := st.Responses.Len()

	st = e.RecordAnswer(st, 1, t4)
	if st.Responses.Len() != before {
		t.Fatalf("expected size %d after overwrite, got %d", before, st.Responses.Len())
	}
	if got, _ := st.Responses.Get(1); got != t4 {
		t.Fatalf("expected scenario 1 to be %s, got %s", t4, got)
	}
	if first := st.Responses.Entries()[0]; first.ScenarioID != 1 {
		t.Fatalf("expected overwrite to keep insertion position, got %+v", st.Responses.Entries())
	}
}

func TestRecordAnswerIgnoresInvalidInput(t *testing.T) {
	e := newTestEngine(t)
	st := e.Start(e.Reset())

	if got := e.RecordAnswer(st, 0, t1); got.Responses.Len() != 0 || got.Step != 1 {
		t.Fatalf("expected unknown scenario to be ignored, got %+v", got)
	}
	if got := e.RecordAnswer(st, 6, t1); got.Responses.Len() != 0 {
		t.Fatalf("expected out-of-range scenario to be ignored")
	}
	if got := e.RecordAnswer(st, 1, domain.Tribe("cat")); got.Responses.Len() != 0 {
		t.Fatalf("expected unknown tribe to be ignored")
	}
}

func TestStateMachine(t *testing.T) {
	e := newTestEngine(t)
	st := e.Reset()
	if e.Phase(st) != domain.PhaseNotStarted {
		t.Fatalf("expected not started, got %s", e.Phase(st))
	}

	st = e.Start(st)
	if st.Step != 1 || e.Phase(st) != domain.PhaseInProgress {
		t.Fatalf("expected step 1 in progress, got %+v", st)
	}
	if again := e.Start(st); again.Step != 1 {
		t.Fatalf("start should be a no-op once running")
	}

	st = e.RecordAnswer(st, 1, t1)
	st = e.Skip(st)
	if st.Step != 3 || st.Responses.Len() != 1 {
		t.Fatalf("expected skip to advance without recording, got %+v", st)
	}
	st = e.RecordAnswer(st, 3, t2)
	st = e.RecordAnswer(st, 4, t2)
	st = e.RecordAnswer(st, 5, t3)
	if st.Step != 5 || st.Completed {
		t.Fatalf("expected step capped at 5 and incomplete after a skip, got %+v", st)
	}
	if next := e.Advance(st); next.Step != 5 {
		t.Fatalf("advance at the cap must be a no-op, got %d", next.Step)
	}

	st = e.RecordAnswer(st, 2, t1)
	if !st.Completed || e.Phase(st) != domain.PhaseComplete {
		t.Fatalf("expected complete after answering the skipped scenario, got %+v", st)
	}
	res, ok := e.Result(st, time.Unix(0, 0))
	if !ok || res.Tribe != t1 {
		t.Fatalf("expected owl result, got %+v ok=%v", res, ok)
	}

	st = e.Reset()
	if st.Step != 0 || st.Responses.Len() != 0 || e.Phase(st) != domain.PhaseNotStarted {
		t.Fatalf("expected reset to NotStarted, got %+v", st)
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	st := e.Start(e.Reset())
	st = e.RecordAnswer(st, 2, t4)
	st = e.RecordAnswer(st, 1, t2)
	st = e.Skip(st)

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back domain.SessionState
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(st, back, cmp.AllowUnexported(domain.ResponseSet{})); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestProgressTuple(t *testing.T) {
	e := newTestEngine(t)
	st := e.Start(e.Reset())
	st = e.RecordAnswer(st, 1, t1)
	st = e.RecordAnswer(st, 2, t2)
	st = e.RecordAnswer(st, 3, t1)

	p := e.Progress(st)
	if p.TotalAnswered != 3 || p.Winner != nil {
		t.Fatalf("unexpected partial progress %+v", p)
	}
	if p.Percentages[t1] != 67 || p.Percentages[t2] != 33 {
		t.Fatalf("unexpected percentages %+v", p.Percentages)
	}

	st = e.RecordAnswer(st, 4, t2)
	st = e.RecordAnswer(st, 5, t3)
	p = e.Progress(st)
	if p.Winner == nil || *p.Winner != t1 {
		t.Fatalf("expected owl winner, got %+v", p.Winner)
	}
}

func TestNewEngineRejectsBadScenarios(t *testing.T) {
	set := catalog.Default()
	set.Scenarios[1].ID = 7
	if _, err := NewEngine(set); err == nil {
		t.Fatalf("expected invalid ids to be rejected")
	}
}
