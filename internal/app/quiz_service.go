package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tribe-quiz-service/internal/domain"
	"tribe-quiz-service/internal/retry"
)

// Keys under which a session's records live in the durable store.
const (
	StateKey       = "quiz_state"
	ResultKey      = "quiz_result"
	PendingSaveKey = "quiz_pending_save"
)

// SessionKey namespaces a fixed key by session.
func SessionKey(sessionID, name string) string {
	return "quiz:" + sessionID + ":" + name
}

// KeyValueStore is the durable string store session state is persisted to.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// SessionRepository keeps the in-process session hubs.
type SessionRepository interface {
	GetOrCreate(sessionID string) *Session
	Get(sessionID string) (*Session, bool)
	DeleteIfIdle(sessionID string) bool
}

// ScenarioRepository loads the static scenario catalog (from cache/backing store).
type ScenarioRepository interface {
	GetScenarioSet(ctx context.Context, version string) (domain.ScenarioSet, error)
}

// ProfileRepository upserts a user's tribe.
type ProfileRepository interface {
	SaveTribe(ctx context.Context, profile domain.ProfileTribe) error
}

// SaveLease lets one owner at a time run a session's profile save when
// several instances share the durable store. Acquire succeeds when the lease
// is free or already held by token, refreshing its ttl.
type SaveLease interface {
	Acquire(ctx context.Context, sessionID, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, sessionID, token string) error
}

// storedResult is the persisted result plus the profile it was saved to.
type storedResult struct {
	domain.QuizResult
	SavedTo string `json:"savedTo,omitempty"`
}

// leaseSlack covers the time spent inside attempts on top of the backoff budget.
const leaseSlack = time.Minute

const (
	noticeSaved    = "Your tribe has been saved to your profile."
	noticeDeferred = "We couldn't save your tribe yet, we'll retry later."
)

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions  SessionRepository
	scenarios ScenarioRepository
	store     KeyValueStore
	profiles  ProfileRepository
	lease     SaveLease

	version string
	policy  retry.Policy
	logger  *zap.Logger
	now     func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithScenarioVersion selects which scenario set version sessions use.
func WithScenarioVersion(version string) Option {
	return func(s *QuizService) { s.version = version }
}

// WithRetryPolicy overrides the profile-save retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *QuizService) { s.policy = p }
}

// WithSaveLease coordinates profile saves with other instances.
func WithSaveLease(l SaveLease) Option {
	return func(s *QuizService) { s.lease = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *QuizService) { s.logger = l }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func NewQuizService(sessions SessionRepository, scenarios ScenarioRepository, store KeyValueStore, profiles ProfileRepository, opts ...Option) *QuizService {
	ctx, stop := context.WithCancel(context.Background())
	s := &QuizService{
		sessions:  sessions,
		scenarios: scenarios,
		store:     store,
		profiles:  profiles,
		policy:    retry.DefaultPolicy(),
		logger:    zap.NewNop(),
		now:       time.Now,
		ctx:       ctx,
		stop:      stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scenarios returns the active scenario set.
func (s *QuizService) Scenarios(ctx context.Context) (domain.ScenarioSet, error) {
	engine, err := s.engine(ctx)
	if err != nil {
		return domain.ScenarioSet{}, err
	}
	return engine.Scenarios(), nil
}

// Open resumes (or creates) a session. An empty sessionID gets a fresh one.
// When a user is attached, any pending or unclaimed result is saved to their profile.
func (s *QuizService) Open(ctx context.Context, sessionID, userID string) (domain.Snapshot, error) {
	engine, err := s.engine(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session := s.sessions.GetOrCreate(sessionID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if userID != "" {
		session.userID = userID
	}
	state, err := s.loadState(ctx, engine, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot, err := s.snapshot(ctx, engine, sessionID, state)
	if err != nil {
		return domain.Snapshot{}, err
	}

	if session.userID != "" && !session.saveInFlightLocked() {
		if err := s.resumeLocked(ctx, session); err != nil {
			s.logger.Warn("resume profile save", zap.String("session", sessionID), zap.Error(err))
		}
	}
	return snapshot, nil
}

// Start moves a NotStarted session onto the first scenario.
func (s *QuizService) Start(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, func(e *Engine, st domain.SessionState) domain.SessionState {
		return e.Start(st)
	})
}

// Answer records the option picked for a scenario.
func (s *QuizService) Answer(ctx context.Context, sessionID string, scenarioID int, optionKey string) (domain.Snapshot, error) {
	engine, err := s.engine(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	scenario, ok := engine.Scenarios().Scenario(scenarioID)
	if !ok {
		return domain.Snapshot{}, domain.ErrScenarioNotFound
	}
	opt, ok := scenario.Option(optionKey)
	if !ok {
		return domain.Snapshot{}, domain.ErrOptionNotFound
	}
	return s.RecordTribe(ctx, sessionID, scenarioID, opt.Tribe)
}

// RecordTribe records a tribe directly for a scenario.
func (s *QuizService) RecordTribe(ctx context.Context, sessionID string, scenarioID int, tribe domain.Tribe) (domain.Snapshot, error) {
	if !tribe.Valid() {
		return domain.Snapshot{}, domain.ErrInvalidTribe
	}
	engine, err := s.engine(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if _, ok := engine.Scenarios().Scenario(scenarioID); !ok {
		return domain.Snapshot{}, domain.ErrScenarioNotFound
	}
	return s.mutate(ctx, sessionID, func(e *Engine, st domain.SessionState) domain.SessionState {
		return e.RecordAnswer(e.Start(st), scenarioID, tribe)
	})
}

// Skip advances past the current scenario without answering it.
func (s *QuizService) Skip(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, func(e *Engine, st domain.SessionState) domain.SessionState {
		return e.Skip(e.Start(st))
	})
}

// Reset clears the in-progress state for a retake. The stored result is kept
// so a guest can still claim it; the next completion replaces it.
func (s *QuizService) Reset(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, sessionID, func(e *Engine, _ domain.SessionState) domain.SessionState {
		return e.Reset()
	})
}

// Claim attaches a guest's stored result to a newly created profile.
func (s *QuizService) Claim(ctx context.Context, sessionID, userID string) (domain.QuizResult, error) {
	if userID == "" {
		return domain.QuizResult{}, domain.ErrMissingUser
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.QuizResult{}, domain.ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	stored, ok, err := s.loadResult(ctx, sessionID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	if !ok {
		return domain.QuizResult{}, domain.ErrNoResult
	}
	session.userID = userID
	if stored.SavedTo == userID {
		return stored.QuizResult, nil
	}
	pending := domain.PendingSave{UserID: userID, Tribe: stored.Tribe, CompletedAt: stored.CompletedAt}
	if err := s.beginSaveLocked(ctx, session, pending); err != nil {
		return domain.QuizResult{}, err
	}
	return stored.QuizResult, nil
}

// ResumePending retries a profile save left behind by an earlier visit.
// It reports whether a save was started.
func (s *QuizService) ResumePending(ctx context.Context, sessionID string) (bool, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.saveInFlightLocked() {
		return false, nil
	}

	pending, ok, err := s.loadPending(ctx, sessionID)
	if err != nil || !ok {
		return false, err
	}
	return s.spawnSaveLocked(ctx, session, pending), nil
}

// Subscribe returns a channel of session events, starting with the current snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	engine, err := s.engine(ctx)
	if err != nil {
		return nil, nil, err
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}

	session.mu.Lock()
	state, err := s.loadState(ctx, engine, sessionID)
	var snapshot domain.Snapshot
	if err == nil {
		snapshot, err = s.snapshot(ctx, engine, sessionID, state)
	}
	session.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	ch, cancel := session.subscribe(domain.Event{Type: domain.EventSnapshot, Snapshot: snapshot})
	return ch, cancel, nil
}

// Close is called when a client navigates away. Once nobody is listening,
// in-flight retries stop and the hub is dropped.
func (s *QuizService) Close(_ context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.mu.Lock()
	session.abandonLocked()
	session.mu.Unlock()
	if !s.sessions.DeleteIfIdle(sessionID) {
		s.logger.Debug("session still in use", zap.String("session", sessionID))
	}
}

// Wait blocks until every background profile save has returned.
func (s *QuizService) Wait() {
	s.wg.Wait()
}

// Shutdown waits for background saves, cancelling them if ctx expires first.
func (s *QuizService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.stop()
		return nil
	case <-ctx.Done():
		s.stop()
		<-done
		return ctx.Err()
	}
}

type transition func(e *Engine, st domain.SessionState) domain.SessionState

func (s *QuizService) mutate(ctx context.Context, sessionID string, fn transition) (domain.Snapshot, error) {
	engine, err := s.engine(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	state, err := s.loadState(ctx, engine, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	wasComplete := state.Completed

	next := fn(engine, state)
	if wasComplete && next.Completed {
		// Complete is left only through Reset.
		next = state
	}
	if err := s.saveRecord(ctx, SessionKey(sessionID, StateKey), next); err != nil {
		return domain.Snapshot{}, err
	}

	if next.Completed && !wasComplete {
		if err := s.completeLocked(ctx, engine, session, next); err != nil {
			return domain.Snapshot{}, err
		}
	}

	snapshot, err := s.snapshot(ctx, engine, sessionID, next)
	if err != nil {
		return domain.Snapshot{}, err
	}
	session.broadcastLocked(domain.Event{Type: domain.EventSnapshot, Snapshot: snapshot})
	return snapshot, nil
}

func (s *QuizService) completeLocked(ctx context.Context, engine *Engine, session *Session, state domain.SessionState) error {
	result, ok := engine.Result(state, s.now().UTC())
	if !ok {
		return domain.ErrQuizIncomplete
	}
	if err := s.saveRecord(ctx, SessionKey(session.id, ResultKey), storedResult{QuizResult: result}); err != nil {
		return err
	}
	s.logger.Info("quiz completed",
		zap.String("session", session.id),
		zap.String("tribe", string(result.Tribe)),
	)
	if session.userID == "" {
		return nil
	}
	return s.beginSaveLocked(ctx, session, domain.PendingSave{
		UserID:      session.userID,
		Tribe:       result.Tribe,
		CompletedAt: result.CompletedAt,
	})
}

func (s *QuizService) resumeLocked(ctx context.Context, session *Session) error {
	pending, ok, err := s.loadPending(ctx, session.id)
	if err != nil {
		return err
	}
	if ok {
		s.spawnSaveLocked(ctx, session, pending)
		return nil
	}

	stored, ok, err := s.loadResult(ctx, session.id)
	if err != nil || !ok || stored.SavedTo != "" {
		return err
	}
	return s.beginSaveLocked(ctx, session, domain.PendingSave{
		UserID:      session.userID,
		Tribe:       stored.Tribe,
		CompletedAt: stored.CompletedAt,
	})
}

// beginSaveLocked writes the recovery marker first so a crash mid-retry still
// leaves something to resume, then starts the background write.
func (s *QuizService) beginSaveLocked(ctx context.Context, session *Session, pending domain.PendingSave) error {
	if err := s.saveRecord(ctx, SessionKey(session.id, PendingSaveKey), pending); err != nil {
		return err
	}
	s.spawnSaveLocked(ctx, session, pending)
	return nil
}

// spawnSaveLocked starts the background write unless another instance holds
// the session's save lease. The pending marker stays for whoever owns it.
func (s *QuizService) spawnSaveLocked(ctx context.Context, session *Session, pending domain.PendingSave) bool {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, session.id, session.leaseToken, s.policy.Budget()+leaseSlack)
		switch {
		case err != nil:
			s.logger.Warn("acquire save lease", zap.String("session", session.id), zap.Error(err))
		case !ok:
			s.logger.Info("profile save owned by another instance", zap.String("session", session.id))
			return false
		}
	}

	saveCtx, cancel := context.WithCancel(s.ctx)
	seq := session.beginSaveLocked(cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer session.finishSave(seq)
		s.runSave(saveCtx, session, seq, pending)
	}()
	return true
}

func (s *QuizService) runSave(ctx context.Context, session *Session, seq uint64, pending domain.PendingSave) {
	log := s.logger.With(zap.String("session", session.id), zap.String("user", pending.UserID))
	profile := pending.Profile()

	attempts := 0
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		attempts++
		return s.profiles.SaveTribe(ctx, profile)
	}, func(attempt int, err error, next time.Duration) {
		log.Warn("profile save failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})

	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.currentSaveLocked(seq) {
		// a newer completion or claim owns the records now
		log.Info("superseded profile save dropped", zap.Int("attempts", attempts), zap.NamedError("result", err))
		return
	}

	// The marker must be updated even when the session went away.
	storeCtx := context.WithoutCancel(ctx)
	defer s.releaseLease(storeCtx, session)

	switch {
	case err == nil:
		s.settleSaved(storeCtx, session.id, pending, log)
		log.Info("profile tribe saved", zap.String("tribe", string(profile.Tribe)), zap.Int("attempts", attempts))
		session.broadcastLocked(domain.Event{Type: domain.EventNotice, Notice: noticeSaved})
	case ctx.Err() != nil:
		pending.Attempts += attempts
		if mkErr := s.saveRecord(storeCtx, SessionKey(session.id, PendingSaveKey), pending); mkErr != nil {
			log.Warn("store pending save", zap.Error(mkErr))
		}
		log.Info("profile save abandoned", zap.Int("attempts", attempts))
	default:
		pending.Attempts += attempts
		if mkErr := s.saveRecord(storeCtx, SessionKey(session.id, PendingSaveKey), pending); mkErr != nil {
			log.Warn("store pending save", zap.Error(mkErr))
		}
		log.Warn("profile save deferred", zap.Int("attempts", attempts), zap.Error(err))
		session.broadcastLocked(domain.Event{Type: domain.EventNotice, Notice: noticeDeferred})
	}
}

// settleSaved clears the pending marker and stamps the stored result with the
// profile it went to. Records that no longer match the saved tribe are left alone.
func (s *QuizService) settleSaved(ctx context.Context, sessionID string, saved domain.PendingSave, log *zap.Logger) {
	if pending, ok, err := s.loadPending(ctx, sessionID); err == nil && ok && samePending(pending, saved) {
		if rmErr := s.store.Remove(ctx, SessionKey(sessionID, PendingSaveKey)); rmErr != nil {
			log.Warn("clear pending save", zap.Error(rmErr))
		}
	}

	stored, ok, err := s.loadResult(ctx, sessionID)
	if err != nil || !ok {
		return
	}
	if stored.Tribe != saved.Tribe || !stored.CompletedAt.Equal(saved.CompletedAt) {
		return
	}
	stored.SavedTo = saved.UserID
	if mkErr := s.saveRecord(ctx, SessionKey(sessionID, ResultKey), stored); mkErr != nil {
		log.Warn("mark result saved", zap.Error(mkErr))
	}
}

func (s *QuizService) releaseLease(ctx context.Context, session *Session) {
	if s.lease == nil {
		return
	}
	if err := s.lease.Release(ctx, session.id, session.leaseToken); err != nil {
		s.logger.Warn("release save lease", zap.String("session", session.id), zap.Error(err))
	}
}

func samePending(a, b domain.PendingSave) bool {
	return a.UserID == b.UserID && a.Tribe == b.Tribe && a.CompletedAt.Equal(b.CompletedAt)
}

func (s *QuizService) snapshot(ctx context.Context, engine *Engine, sessionID string, state domain.SessionState) (domain.Snapshot, error) {
	snapshot := domain.Snapshot{
		SessionID: sessionID,
		Step:      engine.StepView(state),
		Progress:  engine.Progress(state),
	}
	if !state.Completed {
		return snapshot, nil
	}
	stored, ok, err := s.loadResult(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if ok {
		result := stored.QuizResult
		snapshot.Result = &result
	}
	return snapshot, nil
}

func (s *QuizService) engine(ctx context.Context) (*Engine, error) {
	set, err := s.scenarios.GetScenarioSet(ctx, s.version)
	if err != nil {
		return nil, err
	}
	return NewEngine(set)
}

// loadState reads the persisted state; a corrupt entry is discarded and the
// session falls back to NotStarted.
func (s *QuizService) loadState(ctx context.Context, engine *Engine, sessionID string) (domain.SessionState, error) {
	var state domain.SessionState
	key := SessionKey(sessionID, StateKey)
	ok, err := s.loadRecord(ctx, key, &state)
	if err != nil || !ok {
		return engine.Reset(), err
	}
	if err := checkState(engine, state); err != nil {
		s.discard(ctx, key, err)
		return engine.Reset(), nil
	}
	state.Completed = state.Responses.Len() >= engine.Size()
	return state, nil
}

func checkState(engine *Engine, state domain.SessionState) error {
	if state.Step < 0 || state.Step > engine.Size() {
		return fmt.Errorf("step %d out of range", state.Step)
	}
	for _, r := range state.Responses.Entries() {
		if _, ok := engine.Scenarios().Scenario(r.ScenarioID); !ok {
			return fmt.Errorf("response for unknown scenario %d", r.ScenarioID)
		}
		if !r.Tribe.Valid() {
			return fmt.Errorf("response with unknown tribe %q", r.Tribe)
		}
	}
	return nil
}

func (s *QuizService) loadResult(ctx context.Context, sessionID string) (storedResult, bool, error) {
	var stored storedResult
	ok, err := s.loadRecord(ctx, SessionKey(sessionID, ResultKey), &stored)
	if ok && !stored.Tribe.Valid() {
		s.discard(ctx, SessionKey(sessionID, ResultKey), domain.ErrInvalidTribe)
		return storedResult{}, false, nil
	}
	return stored, ok, err
}

func (s *QuizService) loadPending(ctx context.Context, sessionID string) (domain.PendingSave, bool, error) {
	var pending domain.PendingSave
	ok, err := s.loadRecord(ctx, SessionKey(sessionID, PendingSaveKey), &pending)
	if ok && (pending.UserID == "" || !pending.Tribe.Valid()) {
		s.discard(ctx, SessionKey(sessionID, PendingSaveKey), errors.New("incomplete pending save"))
		return domain.PendingSave{}, false, nil
	}
	return pending, ok, err
}

// loadRecord decodes a JSON record. Malformed JSON is removed and reported as absent.
func (s *QuizService) loadRecord(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.discard(ctx, key, err)
		return false, nil
	}
	return true, nil
}

func (s *QuizService) saveRecord(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *QuizService) discard(ctx context.Context, key string, cause error) {
	s.logger.Warn("discarding corrupt session record", zap.String("key", key), zap.Error(cause))
	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.Warn("remove corrupt record", zap.String("key", key), zap.Error(err))
	}
}
