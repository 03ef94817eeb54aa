// Package workflow drives the recruiting saga: authenticate, search, then save
// every candidate found, folding each step's outcome into a single Report.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/recruiting-assistant/internal/agents"
	"github.com/jonathan/recruiting-assistant/internal/logging"
	"github.com/jonathan/recruiting-assistant/internal/metrics"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/types"
)

// MaxSaveConcurrency bounds Options.SaveConcurrency.
const MaxSaveConcurrency = 32

// Capabilities are the three remote operations the saga needs.
type Capabilities interface {
	Authenticate(ctx context.Context, creds types.Credentials) (*types.Session, error)
	SearchCandidates(ctx context.Context, criteria types.SearchCriteria, session *types.Session) ([]types.Candidate, error)
	SaveCandidate(ctx context.Context, candidate types.Candidate, session *types.Session) types.SaveOutcome
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, report *Report) error
}

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	RunID    string             `json:"run_id"`
	Type     string             `json:"type"` // "state" or "save"
	State    State              `json:"state"`
	Message  string             `json:"message"`
	Position int                `json:"position,omitempty"` // 1-based candidate position
	Total    int                `json:"total,omitempty"`
	Outcome  *types.SaveOutcome `json:"outcome,omitempty"`
}

// ProgressCallback is called when run progress occurs. Calls are serialized.
type ProgressCallback func(event ProgressEvent)

// Options configures an Orchestrator.
type Options struct {
	// SaveConcurrency is the number of saves in flight at once; 1 saves strictly in order.
	SaveConcurrency int
	// SaveTimeout bounds each save call; zero leaves it to the invoker's timeout.
	SaveTimeout time.Duration
	Recorder    Recorder
	Logger      *zap.Logger
	Now         func() time.Time
}

// Request carries the caller-supplied input of one run.
type Request struct {
	Credentials types.Credentials
	Criteria    types.SearchCriteria
	OnProgress  ProgressCallback
}

// Orchestrator runs sagas. It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	caps        Capabilities
	concurrency int
	saveTimeout time.Duration
	recorder    Recorder
	log         *zap.Logger
	now         func() time.Time
}

// New creates an Orchestrator. A nil opts uses defaults.
func New(caps Capabilities, opts *Options) *Orchestrator {
	if opts == nil {
		opts = &Options{}
	}
	o := &Orchestrator{
		caps:        caps,
		concurrency: opts.SaveConcurrency,
		saveTimeout: opts.SaveTimeout,
		recorder:    opts.Recorder,
		log:         logging.OrNop(opts.Logger).Named("workflow"),
		now:         opts.Now,
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.concurrency > MaxSaveConcurrency {
		o.concurrency = MaxSaveConcurrency
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// run is the state of one saga. The session lives here and nowhere else.
type run struct {
	o          *Orchestrator
	report     *Report
	session    *types.Session
	log        *zap.Logger
	onProgress ProgressCallback
	emitMu     sync.Mutex
}

// Run executes one saga and always returns a report; failures are recorded in it.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Report {
	criteria := req.Criteria.Normalized()
	report := &Report{
		RunID:     uuid.NewString(),
		State:     StateInit,
		Username:  req.Credentials.Username,
		Criteria:  criteria,
		StartedAt: o.now(),
		History:   []Transition{},
	}
	report.Outcomes = []types.SaveOutcome{}

	r := &run{
		o:          o,
		report:     report,
		onProgress: req.OnProgress,
		log:        o.log.With(zap.String("run_id", report.RunID), zap.String("username", req.Credentials.Username)),
	}
	r.log.Info("workflow started", zap.String("title", criteria.Title), zap.Strings("skills", criteria.Skills))

	if err := validateInput(req.Credentials, criteria); err != nil {
		r.transition(StateValidationFailed)
		r.fail(TopLevelValidation, rpc.KindValidation, err.Error())
		return r.finish(ctx)
	}

	r.transition(StateAuthenticating)
	session, err := o.caps.Authenticate(ctx, req.Credentials)
	if err != nil {
		r.transition(StateAuthFailed)
		kind, reason := classify(err)
		r.fail(topLevel(TopLevelAuthFailed, kind), kind, reason)
		return r.finish(ctx)
	}
	r.session = session
	r.transition(StateAuthenticated)

	r.transition(StateSearching)
	candidates, err := o.caps.SearchCandidates(ctx, criteria, r.session)
	if err != nil {
		r.transition(StateSearchFailed)
		kind, reason := classify(err)
		r.fail(topLevel(TopLevelSearchFailed, kind), kind, reason)
		return r.finish(ctx)
	}
	if len(candidates) == 0 {
		r.transition(StateSearchEmpty)
		return r.finish(ctx)
	}

	report.FoundCount = len(candidates)
	r.transition(StateCandidatesFound)
	r.transition(StateSaving)
	r.saveAll(ctx, candidates)
	r.transition(StateComplete)
	return r.finish(ctx)
}

func validateInput(creds types.Credentials, criteria types.SearchCriteria) error {
	merged := &types.ValidationError{}
	for _, err := range []error{creds.Validate(), criteria.Validate()} {
		if err == nil {
			continue
		}
		var verr *types.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		merged.Errors = append(merged.Errors, verr.Errors...)
	}
	if len(merged.Errors) == 0 {
		return nil
	}
	return merged
}

// classify extracts the failure kind and a caller-facing reason from an adapter error.
func classify(err error) (rpc.Kind, string) {
	var af *agents.AuthFailure
	if errors.As(err, &af) {
		return af.Kind, af.Reason
	}
	var sf *agents.SearchFailure
	if errors.As(err, &sf) {
		return sf.Kind, sf.Reason
	}
	if kind := rpc.KindOf(err); kind != "" {
		return kind, err.Error()
	}
	return rpc.KindTransport, err.Error()
}

func topLevel(def string, kind rpc.Kind) string {
	if kind == rpc.KindResolution {
		return TopLevelUnresolvable
	}
	return def
}

func (r *run) transition(to State) {
	from := r.report.State
	mustTransition(from, to)
	r.report.State = to
	r.report.History = append(r.report.History, Transition{From: from, To: to, At: r.o.now()})
	r.log.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	r.emit(ProgressEvent{Type: "state", State: to, Message: fmt.Sprintf("%s -> %s", from, to)})
}

func (r *run) fail(topLevelError string, kind rpc.Kind, detail string) {
	r.report.TopLevelError = topLevelError
	r.report.ErrorKind = string(kind)
	r.report.ErrorDetail = detail
}

func (r *run) emit(event ProgressEvent) {
	if r.onProgress == nil {
		return
	}
	event.RunID = r.report.RunID
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.onProgress(event)
}

// saveAll saves every candidate and stores one outcome per candidate at the
// candidate's position, whatever order the saves complete in.
func (r *run) saveAll(ctx context.Context, candidates []types.Candidate) {
	total := len(candidates)
	outcomes := make([]types.SaveOutcome, total)
	attempted := make([]bool, total)

	var (
		unresolved   atomic.Bool
		resolveOnce  sync.Once
		resolveError string
		saved        atomic.Int32
	)
	firstSeen := make(map[string]int, total)

	// errgroup without a derived context: one failed save must not cancel the others.
	g := new(errgroup.Group)
	g.SetLimit(r.o.concurrency)

	for i, candidate := range candidates {
		if ctx.Err() != nil || unresolved.Load() {
			break
		}

		if candidate.ID != "" {
			if first, dup := firstSeen[candidate.ID]; dup {
				outcomes[i] = types.SaveOutcome{
					CandidateRef: candidate.ID,
					Name:         candidate.Name,
					Status:       types.SaveStatusFailed,
					ErrorKind:    string(rpc.KindValidation),
					ErrorDetail:  fmt.Sprintf("duplicate candidate id (same as position %d)", first+1),
				}
				attempted[i] = true
				r.recordOutcome(i, total, outcomes[i], saved.Load())
				continue
			}
			firstSeen[candidate.ID] = i
		}

		g.Go(func() error {
			if ctx.Err() != nil || unresolved.Load() {
				return nil
			}
			saveCtx, cancel := r.saveContext(ctx)
			defer cancel()

			outcome := r.o.caps.SaveCandidate(saveCtx, candidate, r.session)
			outcome = normalizeOutcome(outcome, candidate)
			outcomes[i] = outcome
			attempted[i] = true

			if outcome.ErrorKind == string(rpc.KindResolution) {
				unresolved.Store(true)
				resolveOnce.Do(func() { resolveError = outcome.ErrorDetail })
			}
			running := saved.Load()
			if outcome.Saved() {
				running = saved.Add(1)
			}
			r.recordOutcome(i, total, outcome, running)
			return nil
		})
	}
	_ = g.Wait()

	for i, candidate := range candidates {
		if attempted[i] {
			continue
		}
		kind, detail := rpc.KindTransport, "not attempted: run canceled"
		if unresolved.Load() {
			kind, detail = rpc.KindResolution, "not attempted: records service could not be resolved"
		}
		outcomes[i] = types.SaveOutcome{
			CandidateRef: candidate.ID,
			Name:         candidate.Name,
			Status:       types.SaveStatusFailed,
			ErrorKind:    string(kind),
			ErrorDetail:  detail,
		}
		r.recordOutcome(i, total, outcomes[i], saved.Load())
	}

	r.report.Outcomes = outcomes
	r.report.SavedCount = countSaved(outcomes)
	if unresolved.Load() {
		r.fail(TopLevelUnresolvable, rpc.KindResolution, resolveError)
	}
}

func (r *run) saveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.o.saveTimeout > 0 {
		return context.WithTimeout(ctx, r.o.saveTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *run) recordOutcome(i, total int, outcome types.SaveOutcome, saved int32) {
	metrics.IncreaseCandidateSaves(string(outcome.Status))
	fields := []zap.Field{
		zap.String("candidate", outcome.CandidateRef),
		zap.Int("position", i+1),
		zap.String("status", string(outcome.Status)),
	}
	if outcome.Saved() {
		r.log.Info("candidate saved", fields...)
	} else {
		r.log.Warn("candidate not saved", append(fields, zap.String("kind", outcome.ErrorKind), zap.String("detail", outcome.ErrorDetail))...)
	}
	r.emit(ProgressEvent{
		Type:     "save",
		State:    StateSaving,
		Message:  fmt.Sprintf("%d/%d %s: %s (%d saved so far)", i+1, total, outcome.Name, outcome.Status, saved),
		Position: i + 1,
		Total:    total,
		Outcome:  &outcome,
	})
}

// normalizeOutcome guarantees the outcome identifies its candidate and has a status.
func normalizeOutcome(outcome types.SaveOutcome, candidate types.Candidate) types.SaveOutcome {
	if outcome.CandidateRef == "" {
		outcome.CandidateRef = candidate.ID
	}
	if outcome.Name == "" {
		outcome.Name = candidate.Name
	}
	if outcome.Status != types.SaveStatusSaved && outcome.Status != types.SaveStatusFailed {
		outcome.Status = types.SaveStatusFailed
		if outcome.ErrorDetail == "" {
			outcome.ErrorDetail = "save returned no status"
		}
		if outcome.ErrorKind == "" {
			outcome.ErrorKind = string(rpc.KindProtocol)
		}
	}
	return outcome
}

func countSaved(outcomes []types.SaveOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Saved() {
			n++
		}
	}
	return n
}

func (r *run) finish(ctx context.Context) *Report {
	report := r.report
	report.FinishedAt = r.o.now()
	r.session = nil

	if err := report.CheckInvariants(); err != nil {
		r.log.DPanic("report invariant violated", zap.Error(err))
	}
	metrics.IncreaseWorkflowRuns(string(report.State))

	if r.o.recorder != nil {
		if err := r.o.recorder.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			r.log.Warn("failed to record run", zap.Error(err))
		}
	}

	r.log.Info("workflow finished",
		zap.String("state", string(report.State)),
		zap.Int("found", report.FoundCount),
		zap.Int("saved", report.SavedCount),
		zap.String("error_kind", report.ErrorKind),
		zap.Duration("duration", report.Duration()))
	return report
}
