package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/scanner-service/internal/domain"
)

type stubGateway struct {
	LookupItemFn        func(ctx context.Context, op domain.Operation, code string) (domain.ScannedEntity, error)
	LookupDestinationFn func(ctx context.Context, op domain.Operation, code string) (domain.DestinationEntity, error)
	FetchSuggestionFn   func(ctx context.Context, op domain.Operation, itemID string) (domain.Suggestion, error)
	SubmitOperationFn   func(ctx context.Context, sub domain.Submission) (domain.Result, error)

	mu          sync.Mutex
	itemCalls   int
	submissions []domain.Submission
}

func (g *stubGateway) LookupItem(ctx context.Context, op domain.Operation, code string) (domain.ScannedEntity, error) {
	g.mu.Lock()
	g.itemCalls++
	g.mu.Unlock()
	if g.LookupItemFn != nil {
		return g.LookupItemFn(ctx, op, code)
	}
	return domain.ScannedEntity{ID: "id-" + code, Code: code, LocationID: "loc-stage", LocationCode: "STAGE"}, nil
}

func (g *stubGateway) LookupDestination(ctx context.Context, op domain.Operation, code string) (domain.DestinationEntity, error) {
	if g.LookupDestinationFn != nil {
		return g.LookupDestinationFn(ctx, op, code)
	}
	return domain.DestinationEntity{ID: code, Code: code}, nil
}

func (g *stubGateway) FetchSuggestion(ctx context.Context, op domain.Operation, itemID string) (domain.Suggestion, error) {
	if g.FetchSuggestionFn != nil {
		return g.FetchSuggestionFn(ctx, op, itemID)
	}
	return domain.Suggestion{TargetID: "A1", TargetCode: "A1", Reason: "same SKU zone"}, nil
}

func (g *stubGateway) SubmitOperation(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	g.mu.Lock()
	g.submissions = append(g.submissions, sub)
	g.mu.Unlock()
	if g.SubmitOperationFn != nil {
		return g.SubmitOperationFn(ctx, sub)
	}
	return domain.Result{Reference: "REF-" + sub.Key}, nil
}

func (g *stubGateway) ItemCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.itemCalls
}

func (g *stubGateway) Submissions() []domain.Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Submission(nil), g.submissions...)
}

type recordingFeedback struct {
	mu   sync.Mutex
	cues []Cue
}

func (f *recordingFeedback) record(c Cue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cues = append(f.cues, c)
}

func (f *recordingFeedback) SignalSuccess() { f.record(CueSuccess) }
func (f *recordingFeedback) SignalError()   { f.record(CueError) }
func (f *recordingFeedback) SignalWarning() { f.record(CueWarning) }
func (f *recordingFeedback) SignalConfirm() { f.record(CueConfirm) }

func (f *recordingFeedback) Cues() []Cue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Cue(nil), f.cues...)
}

type memoryStore struct {
	mu      sync.Mutex
	records map[string]SessionRecord
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]SessionRecord)}
}

func (s *memoryStore) Save(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if cur, ok := s.records[rec.SessionID]; ok && cur.State.Revision > rec.State.Revision {
		return nil
	}
	s.records[rec.SessionID] = rec
	return nil
}

func (s *memoryStore) Load(_ context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

func (s *memoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.records, sessionID)
	return nil
}

func (s *memoryStore) FindByDevice(_ context.Context, deviceID string, limit int64) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SessionRecord
	for _, rec := range s.records {
		if rec.DeviceID == deviceID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Get(sessionID string) (SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	return rec, ok
}

type recordingPublisher struct {
	mu          sync.Mutex
	completions []Completion
	failures    []SubmissionFailure
}

func (p *recordingPublisher) PublishCompleted(_ context.Context, c Completion) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions = append(p.completions, c)
	return nil
}

func (p *recordingPublisher) PublishSubmissionFailed(_ context.Context, f SubmissionFailure) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, f)
	return nil
}

func (p *recordingPublisher) Completions() []Completion {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Completion(nil), p.completions...)
}

func (p *recordingPublisher) Failures() []SubmissionFailure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SubmissionFailure(nil), p.failures...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
