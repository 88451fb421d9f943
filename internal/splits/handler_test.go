package splits

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T, buffer int) (*chi.Mux, *Timer, *ManualClock, *InMemoryStore) {
	t.Helper()
	timer, clock, store := newTestTimer(t, nil, nil)
	loop := NewLoop(timer, buffer, nil, nil)
	h := NewHandler(timer, loop, store, nil)
	r := chi.NewRouter()
	h.Register(r)
	return r, timer, clock, store
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandler_Advance_queuesTrigger(t *testing.T) {
	r, _, _, _ := newTestRouter(t, 1)

	if rec := do(r, http.MethodPost, "/advance"); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	// nothing drains the loop, so the buffer of one is now full
	if rec := do(r, http.MethodPost, "/advance"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/advance"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandler_Board(t *testing.T) {
	r, timer, clock, _ := newTestRouter(t, 1)
	timer.Start()
	clock.Set(5000)
	timer.Refresh()

	rec := do(r, http.MethodGet, "/board")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var b struct {
		Status string `json:"status"`
		Rows   []struct {
			Name      string `json:"name"`
			Total     string `json:"total"`
			Indicator string `json:"indicator"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Status != "running" || len(b.Rows) != 3 {
		t.Fatalf("board: %+v", b)
	}
	if b.Rows[0].Name != "A" || b.Rows[0].Total != "0:05" || b.Rows[0].Indicator != "normal" {
		t.Errorf("row 0: %+v", b.Rows[0])
	}
}

func TestHandler_ResetRetryDiscard_conflicts(t *testing.T) {
	r, timer, _, _ := newTestRouter(t, 1)

	for _, path := range []string{"/reset", "/retry", "/discard"} {
		if rec := do(r, http.MethodPost, path); rec.Code != http.StatusConflict {
			t.Errorf("%s while idle: expected 409, got %d", path, rec.Code)
		}
	}

	timer.Start()
	if rec := do(r, http.MethodPost, "/reset"); rec.Code != http.StatusOK {
		t.Errorf("reset while running: expected 200, got %d", rec.Code)
	}
}

func TestHandler_StatusAndHistory(t *testing.T) {
	r, timer, clock, _ := newTestRouter(t, 1)
	timer.Start()
	for _, ms := range []int64{1000, 2000, 3000} {
		clock.Set(ms)
		if _, err := timer.Split(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	rec := do(r, http.MethodGet, "/status")
	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["status"] != "idle" || raw["last_new_pb"] != true {
		t.Errorf("status: %v", raw)
	}

	rec = do(r, http.MethodGet, "/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	var runs []Record
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || times(&runs[0])[2] != 3000 {
		t.Errorf("history: %+v", runs)
	}
}
