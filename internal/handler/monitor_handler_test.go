package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stemsi/psikotes-backend/internal/config"
	"github.com/stemsi/psikotes-backend/internal/model"
)

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestMonitorExamSSE(t *testing.T) {
	s := newTestServer(t, false)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/admin/exams/"+s.exam.ID.String()+"/monitor", nil)
	req.Header.Set("Authorization", "Bearer "+s.adminToken(t, model.PermissionResultsRead))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}

	stream := bufio.NewReader(res.Body)
	first := readSSE(t, stream)
	if first.name != "snapshot" {
		t.Fatalf("first event = %q", first.name)
	}
	var snap model.MonitorSnapshot
	if err := json.Unmarshal([]byte(first.data), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.TotalQuestions != 10 || snap.Stats.InProgress != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}

	channel := config.CacheKey.ExamMonitorChannel(s.exam.ID.String())
	deadline := time.Now().Add(2 * time.Second)
	for s.mr.PubSubNumSub(channel)[channel] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("monitor never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	st := s.begin(t, s.candidateToken(t, 7))

	ev := readSSE(t, stream)
	if ev.name != "attempt" {
		t.Fatalf("event = %q, want attempt", ev.name)
	}
	var got model.MonitorEvent
	if err := json.Unmarshal([]byte(ev.data), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Type != model.MonitorAttemptStarted || got.AttemptID != st.AttemptID {
		t.Fatalf("event = %+v", got)
	}
}

func TestMonitorExamSSE_Guards(t *testing.T) {
	s := newTestServer(t, false)

	w, _ := s.do(t, http.MethodGet, "/api/v1/admin/exams/"+s.exam.ID.String()+"/monitor", s.adminToken(t, model.PermissionScoringRun), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing permission = %d, want 403", w.Code)
	}
	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/exams/x/monitor", s.adminToken(t, model.PermissionResultsRead), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d, want 400", w.Code)
	}
}
