package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"speedy/internal/platform/logger"
	"speedy/internal/platform/metrics"
	"speedy/internal/splits"
)

func TestLoadSequence(t *testing.T) {
	ctx := context.Background()
	store := splits.NewInMemoryStore()

	if _, err := loadSequence(ctx, store, "sm64", nil); !errors.Is(err, splits.ErrUnknownGame) {
		t.Errorf("unknown game without sections: %v", err)
	}

	seq, err := loadSequence(ctx, store, "sm64", []string{"A", "B"})
	if err != nil || !seq.Equal(splits.SectionSequence{"A", "B"}) {
		t.Fatalf("register: %v %v", seq, err)
	}

	seq, err = loadSequence(ctx, store, "sm64", nil)
	if err != nil || len(seq) != 2 {
		t.Errorf("stored: %v %v", seq, err)
	}

	if _, err := loadSequence(ctx, store, "sm64", []string{"A", "C"}); !errors.Is(err, splits.ErrConfigMismatch) {
		t.Errorf("differing sections: %v", err)
	}
}

func TestNewServer_routes(t *testing.T) {
	store := splits.NewInMemoryStore()
	met := metrics.New()
	timer, err := splits.NewTimer(splits.TimerConfig{
		Game:     "sm64",
		Sequence: splits.SectionSequence{"A", "B"},
		Engine:   splits.NewEngine(store, nil, met),
		Metrics:  met,
	})
	if err != nil {
		t.Fatal(err)
	}
	loop := splits.NewLoop(timer, 1, nil, met)
	srv := newServer(":0", timer, loop, store, logger.New("error", "text", io.Discard), met)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/advance", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("advance: %d", rec.Code)
	}

	timer.Start()
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "speedy_runs_started_total 1") || !strings.Contains(body, "speedy_current_section 0") {
		t.Errorf("metrics scrape:\n%s", body)
	}
	if !strings.Contains(body, `speedy_http_requests_total{method="POST",route="/advance"} 1`) {
		t.Errorf("request middleware not counting:\n%s", body)
	}
}
