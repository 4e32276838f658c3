package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
	"github.com/0tSystemsPublicRepos/mirage/internal/deception"
	"github.com/0tSystemsPublicRepos/mirage/internal/pipeline"
	"github.com/0tSystemsPublicRepos/mirage/internal/response"
	"github.com/0tSystemsPublicRepos/mirage/internal/scoring"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dcfg := &config.DeceptionConfig{
		Honeypots: map[string]config.HoneypotTemplate{
			"fake_ssh": {Name: "Fake SSH Server", Protocol: "ssh", Port: 0, Sensitivity: "high"},
		},
		PostureTable: map[string][]string{
			"OFF": {},
			"LOW": {"fake_ssh"},
		},
		EventBufferSize: 16,
		LogCapacity:     16,
		SendGraceMS:     100,
	}
	rcfg := &config.ResponseConfig{
		Workers:              2,
		ActionTimeoutSeconds: 5,
		IncidentLogCapacity:  16,
		Policies: map[string]config.PolicyRow{
			"test_threat": {Actions: []string{"ALERT_ADMIN"}},
		},
	}
	scfg := &config.ScoringConfig{
		BaseScores: map[string]float64{"test_threat": 0.5},
		RepeatStep: 0.1, RepeatCap: 3, SurgeStep: 0.05, SurgeThreshold: 10,
	}

	scorer := scoring.NewHeuristicScorer(scfg)
	controller := response.NewController(rcfg, scorer, nil, nil)
	manager := deception.NewManager(dcfg)
	coordinator := pipeline.NewCoordinator(manager, controller, nil, rcfg.Workers)
	coordinator.Start()
	t.Cleanup(coordinator.Stop)

	s := NewAPIServer(":0", coordinator, nil)
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out interface{}) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]string
	if code := getJSON(t, srv.URL+"/api/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestDeceptionPostureEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]interface{}
	code := postJSON(t, srv.URL+"/api/deception/posture", `{"posture": "LOW"}`, &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, body)
	}
	if body["summary"] != "1/1 honeypots running" {
		t.Errorf("summary = %v", body["summary"])
	}

	code = postJSON(t, srv.URL+"/api/deception/posture", `{"posture": "STEALTH"}`, nil)
	if code != http.StatusBadRequest {
		t.Errorf("invalid posture status = %d, want 400", code)
	}

	if code := getJSON(t, srv.URL+"/api/deception/posture", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", code)
	}
}

func TestResponsePostureAndTestIncident(t *testing.T) {
	srv := newTestServer(t)

	code := postJSON(t, srv.URL+"/api/response/posture", `{"active": true, "level": "AGGRESSIVE"}`, nil)
	if code != http.StatusOK {
		t.Fatalf("activate status = %d", code)
	}

	var full pipeline.Status
	if code := getJSON(t, srv.URL+"/api/status", &full); code != http.StatusOK {
		t.Fatalf("status endpoint = %d", code)
	}
	if !full.Response.Active || full.Response.Posture != response.PostureAggressive {
		t.Errorf("response stats = %+v, want active AGGRESSIVE", full.Response)
	}

	var res response.IncidentResult
	if code := postJSON(t, srv.URL+"/api/response/test", ``, &res); code != http.StatusOK {
		t.Fatalf("test incident status = %d", code)
	}
	if res.Status != response.StatusHandled {
		t.Errorf("test incident = %q, want handled", res.Status)
	}

	var incidents []response.Incident
	if code := getJSON(t, srv.URL+"/api/incidents", &incidents); code != http.StatusOK {
		t.Fatalf("incidents status = %d", code)
	}
	if len(incidents) != 1 {
		t.Errorf("got %d incidents, want 1", len(incidents))
	}
}

func TestHistoryEndpointsWithoutDB(t *testing.T) {
	srv := newTestServer(t)

	if code := getJSON(t, srv.URL+"/api/incidents/history", nil); code != http.StatusServiceUnavailable {
		t.Errorf("history status = %d, want 503", code)
	}
	if code := getJSON(t, srv.URL+"/api/sources", nil); code != http.StatusServiceUnavailable {
		t.Errorf("sources status = %d, want 503", code)
	}
}

func TestBlockedEndpointEmpty(t *testing.T) {
	srv := newTestServer(t)

	var blocked []string
	if code := getJSON(t, srv.URL+"/api/blocked", &blocked); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(blocked) != 0 {
		t.Errorf("blocked = %v, want empty", blocked)
	}
}
