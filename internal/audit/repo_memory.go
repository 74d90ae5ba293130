package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryRepo keeps the audit trail in process. Lookups return copies in
// append order.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// ForLead returns the trail of one lead.
func (r *MemoryRepo) ForLead(leadID string) []Event {
	return r.filter(func(e Event) bool { return e.LeadID == leadID })
}

// ForCall returns the events recorded against one platform call.
func (r *MemoryRepo) ForCall(callID string) []Event {
	return r.filter(func(e Event) bool { return e.CallID == callID })
}

// Types lists event types in append order, for compact assertions.
func Types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.events)
	return slices.DeleteFunc(out, func(e Event) bool { return !keep(e) })
}
