package ingest

// Test doubles shared by orchestrator and manager tests.

import (
	"context"
	"sync"
)

type fakeSource struct {
	mu        sync.Mutex
	initErr   error
	status    *Status
	execErr   error
	panicExec bool
	initCalls int
	execCalls int
}

func (s *fakeSource) InitClient(ctx context.Context) error {
	s.mu.Lock()
	s.initCalls++
	s.mu.Unlock()
	return s.initErr
}

func (s *fakeSource) Execute(ctx context.Context, payload map[string]any) (*Status, error) {
	s.mu.Lock()
	s.execCalls++
	s.mu.Unlock()
	if s.panicExec {
		panic("source exploded")
	}
	if s.execErr != nil {
		return nil, s.execErr
	}
	return s.status, nil
}

func (s *fakeSource) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls, s.execCalls
}

type fakeDestination struct {
	mu      sync.Mutex
	initErr error
	status  *Status
	procErr error
	batches [][]Record
}

func (d *fakeDestination) Init(config map[string]any) error {
	return d.initErr
}

func (d *fakeDestination) ProcessData(ctx context.Context, records []Record) (*Status, error) {
	d.mu.Lock()
	d.batches = append(d.batches, records)
	d.mu.Unlock()
	if d.procErr != nil {
		return nil, d.procErr
	}
	return d.status, nil
}

func (d *fakeDestination) delivered() [][]Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

// passthroughTransformer turns each raw item into one record.
func passthroughTransformer(ctx context.Context, rawItems []any, payload map[string]any) ([]Record, error) {
	records := make([]Record, 0, len(rawItems))
	for i, item := range rawItems {
		records = append(records, Record{
			ID:      string(rune('a' + i)),
			Content: item,
		})
	}
	return records, nil
}

// emptyTransformer always yields zero records.
func emptyTransformer(ctx context.Context, rawItems []any, payload map[string]any) ([]Record, error) {
	return nil, nil
}

// sourceItems builds a successful source status carrying raw items.
func sourceItems(items ...any) *Status {
	return OKWithData("fetched", map[string]any{DataKeyItems: items})
}

// eventRecorder captures all bus events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(bus *Bus) *eventRecorder {
	r := &eventRecorder{}
	bus.SubscribeAll(func(evt Event) {
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) byType(t EventType) []Event {
	var out []Event
	for _, evt := range r.all() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func (r *eventRecorder) terminalCount() int {
	return len(r.byType(EventTaskCompleted)) + len(r.byType(EventTaskFailed))
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
