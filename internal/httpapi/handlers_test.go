package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"call-orchestrator/internal/dispatch"
	"call-orchestrator/internal/intake"

	"github.com/gin-gonic/gin"
)

type memAdmitter struct {
	mu   sync.Mutex
	seen map[string]bool
	keys []string
}

func (m *memAdmitter) Admit(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	m.keys = append(m.keys, key)
	if m.seen[key] {
		return false
	}
	m.seen[key] = true
	return true
}

type inlineJobs struct{ names []string }

func (j *inlineJobs) Submit(ctx context.Context, job dispatch.Job) error {
	j.names = append(j.names, job.Name)
	return job.Run(ctx)
}

type recordingIntake struct{ events []intake.Event }

func (r *recordingIntake) HandleEvent(_ context.Context, ev intake.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.POST("/webhook/hubspot", h.HubSpotWebhook)
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/hubspot", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newRouter(Handlers{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != `{"status":"healthy"}` {
		t.Fatalf("unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestHubSpotWebhook_AcceptsSingleEvent(t *testing.T) {
	dedup := &memAdmitter{}
	jobs := &inlineJobs{}
	in := &recordingIntake{}
	r := newRouter(Handlers{Dedup: dedup, Jobs: jobs, Intake: in})

	w := post(r, `{"eventId": 55, "subscriptionType": "contact.creation", "objectId": 101}`)
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), `"accepted"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if len(dedup.keys) != 1 || dedup.keys[0] != "hs:55" {
		t.Fatalf("unexpected dedup keys %v", dedup.keys)
	}
	if len(in.events) != 1 || in.events[0].ObjectID() != "101" {
		t.Fatalf("unexpected events %v", in.events)
	}
	if jobs.names[0] != "hubspot.contact_event" {
		t.Fatalf("unexpected job name %q", jobs.names[0])
	}
}

func TestHubSpotWebhook_BatchDedupsAndSkipsNonObjects(t *testing.T) {
	dedup := &memAdmitter{}
	in := &recordingIntake{}
	r := newRouter(Handlers{Dedup: dedup, Jobs: &inlineJobs{}, Intake: in})

	w := post(r, `[{"objectId": 1}, {"objectId": 1}, 7, "x", {"objectId": 2}]`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", w.Code)
	}
	if len(in.events) != 2 {
		t.Fatalf("expected two distinct events, got %d", len(in.events))
	}

	w = post(r, `{"objectId": 2}`)
	if w.Code != http.StatusAccepted || len(in.events) != 2 {
		t.Fatalf("expected replay to be accepted and dropped, got %d events", len(in.events))
	}
}

func TestHubSpotWebhook_BadAndIgnoredBodies(t *testing.T) {
	dedup := &memAdmitter{}
	r := newRouter(Handlers{Dedup: dedup, Jobs: &inlineJobs{}, Intake: &recordingIntake{}})

	w := post(r, `{not json`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "bad json") {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
	w = post(r, `"hello"`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ignored") {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if len(dedup.keys) != 0 {
		t.Fatalf("expected no dedup lookups, got %v", dedup.keys)
	}
}

func TestEventKey(t *testing.T) {
	cases := []struct {
		ev   map[string]any
		want string
	}{
		{map[string]any{"eventId": "e1", "objectId": "o1"}, "e1"},
		{map[string]any{"eventId": "", "objectId": "o1"}, "o1"},
		{map[string]any{"b": 2.0, "a": "x"}, `{"a":"x","b":2}`},
	}
	for _, tc := range cases {
		if got := EventKey(tc.ev); got != tc.want {
			t.Fatalf("EventKey(%v) = %q, want %q", tc.ev, got, tc.want)
		}
	}
}
