package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stemsi/psikotes-backend/internal/model"
	"github.com/stemsi/psikotes-backend/internal/response"
	"github.com/stemsi/psikotes-backend/internal/scoring"
)

func srqVector(yes ...int) []string {
	v := strings.Split(strings.Repeat("T", 29), "")
	for _, item := range yes {
		v[item-1] = "Y"
	}
	return v
}

func TestScorePSS(t *testing.T) {
	s := newTestServer(t, false)
	tok := s.adminToken(t, model.PermissionScoringRun)

	tests := []struct {
		name   string
		body   any
		status int
		total  int
		label  scoring.PSSLabel
		code   response.ErrCode
	}{
		{"moderate", map[string]any{"answers": []int{2, 2, 2, 2, 2, 2, 2, 2, 2, 2}}, http.StatusOK, 20, scoring.PSSModerate, ""},
		{"reverse items", map[string]any{"answers": []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, "reverse_items": []int{4, 5, 7, 8}}, http.StatusOK, 16, scoring.PSSModerate, ""},
		{"wrong count", map[string]any{"answers": []int{1, 2, 3}}, http.StatusBadRequest, 0, "", response.ErrWrongItemCount},
		{"value out of range", map[string]any{"answers": []int{0, 0, 5, 0, 0, 0, 0, 0, 0, 0}}, http.StatusBadRequest, 0, "", response.ErrInvalidAnswerValue},
		{"reverse item out of range", map[string]any{"answers": []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, "reverse_items": []int{11}}, http.StatusBadRequest, 0, "", response.ErrValidation},
		{"missing answers", map[string]any{}, http.StatusBadRequest, 0, "", response.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, "/api/v1/admin/scoring/pss", tok, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if env.Error == nil || env.Error.Code != tt.code {
					t.Fatalf("error = %+v, want %s", env.Error, tt.code)
				}
				return
			}
			var res scoring.PSSResult
			if err := json.Unmarshal(env.Data, &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.TotalScore != tt.total || res.Label != tt.label {
				t.Fatalf("got %d %q, want %d %q", res.TotalScore, res.Label, tt.total, tt.label)
			}
		})
	}
}

func TestScorePSS_InvalidValueDetails(t *testing.T) {
	s := newTestServer(t, false)
	tok := s.adminToken(t, model.PermissionScoringRun)

	_, env := s.do(t, http.MethodPost, "/api/v1/admin/scoring/pss", tok, map[string]any{
		"answers": []int{0, 0, 0, 0, 0, 0, -1, 0, 0, 0},
	})
	if env.Error == nil || env.Error.Details["item"] != float64(7) {
		t.Fatalf("details = %+v, want item 7", env.Error)
	}
}

func TestScoreSRQ29(t *testing.T) {
	s := newTestServer(t, false)
	tok := s.adminToken(t, model.PermissionScoringRun)

	tests := []struct {
		name   string
		yes    []int
		status int
		label  scoring.SRQLabel
		code   response.ErrCode
	}{
		{"normal", nil, http.StatusOK, scoring.SRQNormal, ""},
		{"ptsd only", []int{25, 26, 27, 28, 29}, http.StatusOK, scoring.SRQPTSDOnly, ""},
		{"anxiety threshold", []int{1, 2, 3, 4, 5}, http.StatusOK, scoring.SRQAnxietyDepression, ""},
		{"substance alone is unclassified", []int{21}, http.StatusUnprocessableEntity, "", response.ErrUnclassifiedAnswerSet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, "/api/v1/admin/scoring/srq29", tok, map[string]any{"answers": srqVector(tt.yes...)})
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if env.Error == nil || env.Error.Code != tt.code {
					t.Fatalf("error = %+v, want %s", env.Error, tt.code)
				}
				if env.Error.Details["total_score"] != float64(len(tt.yes)) {
					t.Fatalf("details = %+v", env.Error.Details)
				}
				return
			}
			var res scoring.SRQ29Result
			if err := json.Unmarshal(env.Data, &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Label != tt.label || res.TotalScore != len(tt.yes) {
				t.Fatalf("got %q/%d, want %q/%d", res.Label, res.TotalScore, tt.label, len(tt.yes))
			}
		})
	}
}

func TestScoreSRQ29_BadInput(t *testing.T) {
	s := newTestServer(t, false)
	tok := s.adminToken(t, model.PermissionScoringRun)

	w, env := s.do(t, http.MethodPost, "/api/v1/admin/scoring/srq29", tok, map[string]any{"answers": []string{"Y", "T"}})
	if w.Code != http.StatusBadRequest || env.Error.Code != response.ErrWrongItemCount {
		t.Fatalf("got %d %+v, want 400 WRONG_ITEM_COUNT", w.Code, env.Error)
	}

	bad := srqVector()
	bad[9] = "maybe"
	w, env = s.do(t, http.MethodPost, "/api/v1/admin/scoring/srq29", tok, map[string]any{"answers": bad})
	if w.Code != http.StatusBadRequest || env.Error.Code != response.ErrInvalidAnswerValue {
		t.Fatalf("got %d %+v, want 400 INVALID_ANSWER_VALUE", w.Code, env.Error)
	}
	if env.Error.Details["item"] != float64(10) {
		t.Fatalf("item = %v, want 10", env.Error.Details["item"])
	}
}
