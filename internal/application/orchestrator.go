package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/logging"
	"github.com/wms-platform/scanner-service/pkg/metrics"
)

const (
	channelItem        = "item"
	channelDestination = "destination"

	subscriberBuffer = 8
)

// SessionInfo identifies a scanner session.
type SessionInfo struct {
	ID         string
	DeviceID   string
	OperatorID string
	Operation  domain.Operation
	CreatedAt  time.Time
}

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Gateway   Gateway
	Store     SnapshotStore
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	Now       func() time.Time
	NewKey    func() string
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewKey == nil {
		d.NewKey = uuid.NewString
	}
	return d
}

// Options tune per-session behaviour.
type Options struct {
	DebounceWindow time.Duration
	CueBuffer      int
	// EffectTimeout bounds persistence and publishing after a commit.
	EffectTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: DefaultDebounceWindow,
		CueBuffer:      DefaultCueBuffer,
		EffectTimeout:  5 * time.Second,
	}
}

// ticket is an outstanding remote call. Its token is compared with the
// orchestrator generation when the result arrives.
type ticket struct {
	ctx    context.Context
	cancel context.CancelFunc
	token  uint64
	kind   CallKind
}

// Orchestrator drives one scanner session: it turns operator intents into
// gateway calls and engine events, fires feedback, and publishes snapshots.
// The state is only ever changed through domain.Transition under mu.
type Orchestrator struct {
	info     SessionInfo
	deps     Dependencies
	opts     Options
	logger   *logging.Logger
	cues     *CueDispatcher
	debounce *Debouncer

	mu          sync.Mutex
	state       domain.State
	generation  uint64
	pending     *ticket
	lastFailed  *FailedCall
	lastActive  time.Time
	effects     []func(context.Context)
	subscribers map[uint64]chan Snapshot
	nextSubID   uint64
	closed      bool

	// persistMu orders snapshot writes against finish.
	persistMu sync.Mutex
	finished  bool
}

// NewOrchestrator starts a fresh session in scan_source.
func NewOrchestrator(info SessionInfo, deps Dependencies, feedback Feedback, opts Options) (*Orchestrator, error) {
	if deps.Gateway == nil {
		return nil, errors.New("orchestrator requires a gateway")
	}
	state, err := domain.NewState(info.Operation)
	if err != nil {
		return nil, err
	}
	return newOrchestrator(info, state, deps, feedback, opts), nil
}

// RestoreOrchestrator rebuilds a session from its persisted record. A call
// that was in flight when the record was written becomes a failure the
// operator can retry; an interrupted submission keeps its key.
func RestoreOrchestrator(ctx context.Context, rec SessionRecord, deps Dependencies, feedback Feedback, opts Options) (*Orchestrator, error) {
	if deps.Gateway == nil {
		return nil, errors.New("orchestrator requires a gateway")
	}
	if err := rec.State.Validate(); err != nil {
		return nil, fmt.Errorf("restore session %s: %w", rec.SessionID, err)
	}

	info := SessionInfo{
		ID:         rec.SessionID,
		DeviceID:   rec.DeviceID,
		OperatorID: rec.OperatorID,
		Operation:  rec.State.Operation,
		CreatedAt:  rec.CreatedAt,
	}
	o := newOrchestrator(info, rec.State, deps, feedback, opts)

	o.mu.Lock()
	s := o.state
	if s.Error != nil && rec.LastFailed != nil {
		failed := *rec.LastFailed
		o.lastFailed = &failed
	}

	interrupted := domain.Failure{
		Kind:    domain.ErrorKindInterrupted,
		Code:    domain.CodeInterrupted,
		Message: "the session was interrupted before the backend answered",
	}
	var err error
	switch {
	case s.Phase == domain.PhaseSubmitting:
		sub, buildErr := domain.BuildSubmission(s)
		if buildErr != nil {
			o.mu.Unlock()
			o.Close()
			return nil, fmt.Errorf("restore session %s: %w", rec.SessionID, buildErr)
		}
		err = o.commitLocked(domain.SubmitFailed{Failure: interrupted}, &FailedCall{Kind: CallSubmit, Submission: &sub})
	case s.Phase == domain.PhaseViewSuggestion && s.SuggestionStatus == domain.SuggestionStatusPending && s.Source != nil:
		err = o.commitLocked(domain.SuggestionFailed{Failure: interrupted}, &FailedCall{Kind: CallSuggestion, ItemID: s.Source.ID})
	}
	o.release(ctx)
	if err != nil {
		o.Close()
		return nil, fmt.Errorf("restore session %s: %w", rec.SessionID, err)
	}

	o.logger.Info("Session restored", "phase", o.Snapshot().State.Phase, "revision", rec.State.Revision)
	return o, nil
}

func newOrchestrator(info SessionInfo, state domain.State, deps Dependencies, feedback Feedback, opts Options) *Orchestrator {
	deps = deps.withDefaults()
	if feedback == nil {
		feedback = silentFeedback{}
	}
	if opts.EffectTimeout <= 0 {
		opts.EffectTimeout = DefaultOptions().EffectTimeout
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = deps.Now()
	}

	logger := deps.Logger.WithSession(info.ID, string(info.Operation)).WithComponent("orchestrator")
	return &Orchestrator{
		info:        info,
		deps:        deps,
		opts:        opts,
		logger:      logger,
		cues:        NewCueDispatcher(feedback, opts.CueBuffer, deps.Metrics, logger),
		debounce:    NewDebouncer(opts.DebounceWindow, deps.Now),
		state:       state,
		lastActive:  deps.Now(),
		subscribers: make(map[uint64]chan Snapshot),
	}
}

// Info returns the session identity.
func (o *Orchestrator) Info() SessionInfo {
	return o.info
}

// LastActive returns the time of the last accepted transition.
func (o *Orchestrator) LastActive() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActive
}

// Snapshot returns the current presentation view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Record returns the persisted form of the session.
func (o *Orchestrator) Record() SessionRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recordLocked()
}

// ScanItem resolves a source scan. Identical codes within the debounce
// window are ignored; a newer scan supersedes one still being looked up.
func (o *Orchestrator) ScanItem(ctx context.Context, raw string) (Snapshot, error) {
	code, err := domain.NormalizeBarcode(raw)
	if err != nil {
		o.cues.Dispatch(CueError)
		return o.Snapshot(), err
	}

	o.mu.Lock()
	if o.debounce.Duplicate(channelItem, code) {
		o.deps.Metrics.RecordDuplicateScan(string(o.info.Operation), channelItem)
		return o.releaseSnapshot(ctx, nil)
	}
	if err := o.admitLocked(IntentScanItem); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	t := o.beginLocked(ctx, CallItemLookup)
	o.release(ctx)

	return o.runItemLookup(ctx, t, code)
}

// ScanDestination resolves a destination scan.
func (o *Orchestrator) ScanDestination(ctx context.Context, raw string) (Snapshot, error) {
	code, err := domain.NormalizeBarcode(raw)
	if err != nil {
		o.cues.Dispatch(CueError)
		return o.Snapshot(), err
	}

	o.mu.Lock()
	if o.debounce.Duplicate(channelDestination, code) {
		o.deps.Metrics.RecordDuplicateScan(string(o.info.Operation), channelDestination)
		return o.releaseSnapshot(ctx, nil)
	}
	if err := o.admitLocked(IntentScanDestination); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	t := o.beginLocked(ctx, CallDestinationLookup)
	o.release(ctx)

	return o.runDestinationLookup(ctx, t, code)
}

// EnterQuantity records the captured quantity.
func (o *Orchestrator) EnterQuantity(ctx context.Context, qty float64) (Snapshot, error) {
	return o.apply(ctx, IntentEnterQuantity, domain.QuantityEntered{Quantity: qty})
}

// Proceed leaves the suggestion screen.
func (o *Orchestrator) Proceed(ctx context.Context) (Snapshot, error) {
	return o.apply(ctx, IntentProceed, domain.ProceedRequested{})
}

// ChooseOverride accepts the scanned destination despite the mismatch.
func (o *Orchestrator) ChooseOverride(ctx context.Context, reason string) (Snapshot, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > domain.MaxOverrideReasonLength {
		return o.Snapshot(), fmt.Errorf("%w: override reason longer than %d characters", ErrInvalidInput, domain.MaxOverrideReasonLength)
	}
	return o.apply(ctx, IntentOverride, domain.OverrideChosen{Reason: reason})
}

// UseSuggested discards the mismatched destination. The discarded code may
// be scanned again straight away.
func (o *Orchestrator) UseSuggested(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if err := o.admitLocked(IntentUseSuggested); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	o.supersedeLocked()
	err := o.commitLocked(domain.UseSuggestedChosen{}, nil)
	if err == nil {
		o.debounce.Forget(channelDestination)
	}
	return o.releaseSnapshot(ctx, err)
}

// GoBack returns to the previous phase, clearing what it captured.
func (o *Orchestrator) GoBack(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if err := o.admitLocked(IntentBack); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	o.supersedeLocked()
	o.debounce.Reset()
	err := o.commitLocked(domain.BackRequested{}, nil)
	return o.releaseSnapshot(ctx, err)
}

// Reset abandons the current operation. It is accepted in every phase; a
// submission still in flight completes on the backend but its result is
// discarded.
func (o *Orchestrator) Reset(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if err := o.admitLocked(IntentReset); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	o.supersedeLocked()
	o.debounce.Reset()
	err := o.commitLocked(domain.ResetRequested{}, nil)
	return o.releaseSnapshot(ctx, err)
}

// Submit sends the confirmed operation. Outside confirm it does nothing.
// The submission key is generated once and reused by every later attempt.
func (o *Orchestrator) Submit(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if err := o.openLocked(); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	if o.state.Phase != domain.PhaseConfirm {
		return o.releaseSnapshot(ctx, nil)
	}

	key := o.state.SubmissionKey
	if key == "" {
		key = o.deps.NewKey()
	}
	o.supersedeLocked()
	if err := o.commitLocked(domain.SubmitRequested{SubmissionKey: key}, nil); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	sub, err := domain.BuildSubmission(o.state)
	if err != nil {
		_ = o.commitLocked(domain.SubmitFailed{Failure: domain.Failure{Kind: domain.ErrorKindValidation, Message: err.Error()}}, nil)
		return o.releaseSnapshot(ctx, err)
	}
	t := o.beginLocked(ctx, CallSubmit)
	o.release(ctx)

	return o.runSubmit(ctx, t, sub)
}

// Retry re-issues the last failed remote call with the same inputs.
func (o *Orchestrator) Retry(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	if err := o.admitLocked(IntentRetry); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	call := *o.lastFailed
	o.supersedeLocked()
	if err := o.commitLocked(domain.RetryRequested{}, nil); err != nil {
		return o.releaseSnapshot(ctx, err)
	}

	o.logger.Info("Retrying failed call", "call", string(call.Kind))

	switch call.Kind {
	case CallItemLookup:
		t := o.beginLocked(ctx, CallItemLookup)
		o.release(ctx)
		return o.runItemLookup(ctx, t, call.Code)

	case CallDestinationLookup:
		t := o.beginLocked(ctx, CallDestinationLookup)
		o.release(ctx)
		return o.runDestinationLookup(ctx, t, call.Code)

	case CallSuggestion:
		t := o.beginLocked(ctx, CallSuggestion)
		o.release(ctx)
		return o.runSuggestion(ctx, t, call.ItemID)

	case CallSubmit:
		sub := call.Submission
		if sub == nil {
			built, err := domain.BuildSubmission(o.state)
			if err != nil {
				return o.releaseSnapshot(ctx, err)
			}
			sub = &built
		}
		if err := o.commitLocked(domain.SubmitRequested{SubmissionKey: sub.Key}, nil); err != nil {
			return o.releaseSnapshot(ctx, err)
		}
		t := o.beginLocked(ctx, CallSubmit)
		o.release(ctx)
		return o.runSubmit(ctx, t, *sub)
	}

	return o.releaseSnapshot(ctx, fmt.Errorf("unknown call kind %q", call.Kind))
}

// Subscribe streams snapshots after every change, starting with the
// current one. Slow subscribers only see the latest snapshot.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = ch
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.subscribers[id]; ok {
				delete(o.subscribers, id)
				close(c)
			}
		})
	}
}

// Close ends the session: outstanding calls are abandoned, subscribers are
// disconnected and queued cues are flushed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.supersedeLocked()
	for id, ch := range o.subscribers {
		delete(o.subscribers, id)
		close(ch)
	}
	o.mu.Unlock()

	o.cues.Close()
}

// finish closes the session and waits for an in-flight snapshot write.
// Writes still queued afterwards are dropped, so a deleted snapshot stays
// deleted.
func (o *Orchestrator) finish() {
	o.Close()
	o.persistMu.Lock()
	o.finished = true
	o.persistMu.Unlock()
}

func (o *Orchestrator) apply(ctx context.Context, intent Intent, e domain.Event) (Snapshot, error) {
	o.mu.Lock()
	if err := o.admitLocked(intent); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	o.supersedeLocked()
	err := o.commitLocked(e, nil)
	return o.releaseSnapshot(ctx, err)
}

func (o *Orchestrator) runItemLookup(ctx context.Context, t ticket, code string) (Snapshot, error) {
	item, callErr := o.deps.Gateway.LookupItem(t.ctx, o.info.Operation, code)

	o.mu.Lock()
	if !o.settleLocked(t) {
		return o.releaseSnapshot(ctx, ErrSuperseded)
	}
	if callErr != nil {
		o.logger.WithError(callErr).Warn("Item lookup failed", "code", code)
		err := o.commitLocked(domain.ItemLookupFailed{Failure: domain.FailureFromError(callErr)}, &FailedCall{Kind: CallItemLookup, Code: code})
		return o.releaseSnapshot(ctx, err)
	}
	if err := o.commitLocked(domain.ItemScanned{Item: item}, nil); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	o.debounce.Accept(channelItem, code)

	if o.state.Phase != domain.PhaseViewSuggestion {
		return o.releaseSnapshot(ctx, nil)
	}
	next := o.beginLocked(ctx, CallSuggestion)
	o.release(ctx)
	return o.runSuggestion(ctx, next, item.ID)
}

func (o *Orchestrator) runSuggestion(ctx context.Context, t ticket, itemID string) (Snapshot, error) {
	sug, callErr := o.deps.Gateway.FetchSuggestion(t.ctx, o.info.Operation, itemID)

	o.mu.Lock()
	if !o.settleLocked(t) {
		return o.releaseSnapshot(ctx, ErrSuperseded)
	}

	var (
		e      domain.Event
		failed *FailedCall
	)
	switch {
	case callErr == nil:
		e = domain.SuggestionReady{Suggestion: sug}
	case isKind(callErr, domain.ErrorKindNoneAvailable):
		e = domain.SuggestionUnavailable{Reason: domain.FailureFromError(callErr).Message}
	default:
		o.logger.WithError(callErr).Warn("Suggestion fetch failed", "itemId", itemID)
		e = domain.SuggestionFailed{Failure: domain.FailureFromError(callErr)}
		failed = &FailedCall{Kind: CallSuggestion, ItemID: itemID}
	}
	err := o.commitLocked(e, failed)
	return o.releaseSnapshot(ctx, err)
}

func (o *Orchestrator) runDestinationLookup(ctx context.Context, t ticket, code string) (Snapshot, error) {
	dest, callErr := o.deps.Gateway.LookupDestination(t.ctx, o.info.Operation, code)

	o.mu.Lock()
	if !o.settleLocked(t) {
		return o.releaseSnapshot(ctx, ErrSuperseded)
	}
	if callErr != nil {
		o.logger.WithError(callErr).Warn("Destination lookup failed", "code", code)
		err := o.commitLocked(domain.DestinationLookupFailed{Failure: domain.FailureFromError(callErr)}, &FailedCall{Kind: CallDestinationLookup, Code: code})
		return o.releaseSnapshot(ctx, err)
	}
	if err := o.commitLocked(domain.DestinationScanned{Destination: dest}, nil); err != nil {
		return o.releaseSnapshot(ctx, err)
	}
	if o.state.Error == nil {
		o.debounce.Accept(channelDestination, code)
	}
	if m, pending := o.state.Mismatch(); pending {
		o.logger.Info("Destination differs from suggestion",
			"suggested", m.SuggestedCode,
			"scanned", m.ScannedCode,
			"nearMiss", m.NearMiss,
			"alternative", m.IsAlternative,
		)
	}
	return o.releaseSnapshot(ctx, nil)
}

func (o *Orchestrator) runSubmit(ctx context.Context, t ticket, sub domain.Submission) (Snapshot, error) {
	start := o.deps.Now()
	res, callErr := o.deps.Gateway.SubmitOperation(t.ctx, sub)

	o.mu.Lock()
	if !o.settleLocked(t) {
		o.logger.Warn("Submission finished after the session moved on", "submissionKey", sub.Key, "failed", callErr != nil)
		return o.releaseSnapshot(ctx, ErrSuperseded)
	}

	var err error
	if callErr != nil {
		o.logger.WithError(callErr).Warn("Submission failed", "submissionKey", sub.Key)
		err = o.commitLocked(domain.SubmitFailed{Failure: domain.FailureFromError(callErr)}, &FailedCall{Kind: CallSubmit, Submission: &sub})
	} else {
		err = o.commitLocked(domain.SubmitSucceeded{Result: res}, nil)
		o.logger.Performance(ctx, "scanner.submit", o.deps.Now().Sub(start), slog.String("submissionKey", sub.Key))
	}
	return o.releaseSnapshot(ctx, err)
}

func isKind(err error, kind domain.ErrorKind) bool {
	var gwErr *domain.GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == kind
}

func (o *Orchestrator) openLocked() error {
	if o.closed {
		return ErrSessionClosed
	}
	return nil
}

func (o *Orchestrator) admitLocked(intent Intent) error {
	if err := o.openLocked(); err != nil {
		return err
	}
	if !intentAllowed(o.state, o.lastFailed, intent) {
		return &IntentError{Intent: intent, Phase: o.state.Phase}
	}
	return nil
}

// supersedeLocked invalidates any outstanding call. Lookups are cancelled;
// a submission is left to finish on the backend.
func (o *Orchestrator) supersedeLocked() {
	o.generation++
	if o.pending != nil {
		if o.pending.kind != CallSubmit {
			o.pending.cancel()
		}
		o.pending = nil
	}
}

func (o *Orchestrator) beginLocked(ctx context.Context, kind CallKind) ticket {
	o.supersedeLocked()
	callCtx, cancel := context.WithCancel(logging.ContextWithSessionID(context.WithoutCancel(ctx), o.info.ID))
	t := ticket{ctx: callCtx, cancel: cancel, token: o.generation, kind: kind}
	o.pending = &t
	o.notifyLocked()
	return t
}

// settleLocked reports whether t is still the current call and clears it.
func (o *Orchestrator) settleLocked(t ticket) bool {
	t.cancel()
	if t.token != o.generation {
		o.deps.Metrics.RecordStaleResponse(string(o.info.Operation), string(t.kind))
		o.logger.Debug("Discarding stale response", "call", string(t.kind))
		return false
	}
	o.pending = nil
	return true
}

// commitLocked applies e and queues the side effects of the new state.
// failed becomes the retryable call; every other commit clears it.
func (o *Orchestrator) commitLocked(e domain.Event, failed *FailedCall) error {
	op := string(o.info.Operation)
	prev := o.state
	next, err := domain.Transition(prev, e)
	if err != nil {
		o.deps.Metrics.RecordTransition(op, string(e.Type()), "rejected")
		o.logger.Warn("Transition rejected", "event", string(e.Type()), "phase", string(prev.Phase), "error", err.Error())
		return err
	}
	o.deps.Metrics.RecordTransition(op, string(e.Type()), "accepted")

	o.state = next
	o.lastFailed = failed
	o.lastActive = o.deps.Now()

	if cue, ok := CueFor(prev, next, e); ok {
		o.cues.Dispatch(cue)
	}
	o.logger.Debug("Transition applied",
		"event", string(e.Type()),
		"from", string(prev.Phase),
		"to", string(next.Phase),
		"revision", next.Revision,
	)

	o.queuePersistLocked()
	o.queueOutcomeLocked(prev, next, e)
	o.notifyLocked()
	return nil
}

func (o *Orchestrator) queuePersistLocked() {
	if o.deps.Store == nil {
		return
	}
	rec := o.recordLocked()
	o.effects = append(o.effects, func(ctx context.Context) {
		o.persistMu.Lock()
		defer o.persistMu.Unlock()
		if o.finished {
			return
		}
		if err := o.deps.Store.Save(ctx, rec); err != nil {
			o.logger.WithError(err).Warn("Failed to persist session snapshot", "revision", rec.State.Revision)
		}
	})
}

func (o *Orchestrator) queueOutcomeLocked(prev, next domain.State, e domain.Event) {
	op := string(o.info.Operation)

	switch ev := e.(type) {
	case domain.SubmitSucceeded:
		sub, err := domain.BuildSubmission(prev)
		if err != nil {
			return
		}
		o.deps.Metrics.RecordOperationCompleted(op)
		if sub.Override {
			o.deps.Metrics.RecordOverride(op)
		}
		completion := Completion{
			SessionID:   o.info.ID,
			DeviceID:    o.info.DeviceID,
			OperatorID:  o.info.OperatorID,
			Submission:  sub,
			Result:      ev.Result,
			Warnings:    append([]domain.Warning(nil), next.Warnings...),
			CompletedAt: o.deps.Now().UTC(),
		}
		o.effects = append(o.effects, func(ctx context.Context) {
			if sub.Override {
				o.logger.Audit(ctx, "destination_override", o.info.OperatorID,
					slog.String("sessionId", o.info.ID),
					slog.String("operation", op),
					slog.String("submissionKey", sub.Key),
					slog.String("suggestedDestinationId", sub.SuggestedDestinationID),
					slog.String("chosenDestinationId", sub.DestinationID),
					slog.String("reason", sub.OverrideReason),
				)
			}
			if o.deps.Publisher == nil {
				return
			}
			if err := o.deps.Publisher.PublishCompleted(ctx, completion); err != nil {
				o.logger.WithError(err).Error("Failed to publish operation completed event", "submissionKey", sub.Key)
			}
		})

	case domain.SubmitFailed:
		if o.deps.Publisher == nil {
			return
		}
		sub, err := domain.BuildSubmission(prev)
		if err != nil {
			return
		}
		failure := SubmissionFailure{
			SessionID:  o.info.ID,
			DeviceID:   o.info.DeviceID,
			Submission: sub,
			Failure:    ev.Failure,
		}
		o.effects = append(o.effects, func(ctx context.Context) {
			if err := o.deps.Publisher.PublishSubmissionFailed(ctx, failure); err != nil {
				o.logger.WithError(err).Warn("Failed to publish submission failed event", "submissionKey", sub.Key)
			}
		})
	}
}

func (o *Orchestrator) notifyLocked() {
	if len(o.subscribers) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest so the subscriber catches up on the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	var pending CallKind
	if o.pending != nil {
		pending = o.pending.kind
	}
	return buildSnapshot(o.info, o.state, o.lastFailed, pending)
}

func (o *Orchestrator) recordLocked() SessionRecord {
	rec := SessionRecord{
		SessionID:  o.info.ID,
		DeviceID:   o.info.DeviceID,
		OperatorID: o.info.OperatorID,
		State:      o.state.Clone(),
		CreatedAt:  o.info.CreatedAt,
		UpdatedAt:  o.deps.Now().UTC(),
	}
	if o.lastFailed != nil {
		failed := *o.lastFailed
		rec.LastFailed = &failed
	}
	return rec
}

// release unlocks mu and runs the effects queued while it was held.
func (o *Orchestrator) release(ctx context.Context) {
	effects := o.effects
	o.effects = nil
	o.mu.Unlock()

	if len(effects) == 0 {
		return
	}
	effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.EffectTimeout)
	defer cancel()
	for _, fn := range effects {
		fn(effectCtx)
	}
}

func (o *Orchestrator) releaseSnapshot(ctx context.Context, err error) (Snapshot, error) {
	snap := o.snapshotLocked()
	o.release(ctx)
	return snap, err
}

type silentFeedback struct{}

func (silentFeedback) SignalSuccess() {}
func (silentFeedback) SignalError()   {}
func (silentFeedback) SignalWarning() {}
func (silentFeedback) SignalConfirm() {}
