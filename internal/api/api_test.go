package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/monitor"
	"github.com/rewired-gh/scorepulse/internal/predictor"
)

type fakePredictor struct {
	offline bool
	last    predictor.Request
}

func (f *fakePredictor) Predict(_ context.Context, req predictor.Request) *models.Prediction {
	f.last = req
	if f.offline {
		return &models.Prediction{Home: req.Home, Away: req.Away, Tier: req.Tier,
			Error: predictor.ErrEngineOffline.Error(), ErrorCode: models.CodeEngineOffline}
	}
	if req.Away == "Nowhere FC" {
		return &models.Prediction{Home: req.Home, Away: req.Away, Tier: req.Tier,
			Error: "Nowhere FC not found", ErrorCode: models.CodeTeamNotFound}
	}
	return &models.Prediction{
		Home:       req.Home,
		Away:       req.Away,
		Tier:       req.Tier,
		ModelUsed:  "RF",
		WinProb:    &models.WinProb{Home: 55, Draw: 25, Away: 20},
		TotalGoals: 2.4,
		Score:      &models.Scoreline{Home: 2, Away: 0},
		Confidence: &models.Confidence{Label: models.ConfidenceMedium, Tier: req.Tier},
	}
}

func (f *fakePredictor) TeamReport(_ context.Context, team string) (*models.TeamReport, error) {
	if team != "Arsenal" {
		return nil, fmt.Errorf("%s %w", team, predictor.ErrTeamNotFound)
	}
	return &models.TeamReport{Name: team, Rating: 1850, PPG: 2.2, GDTrend: "+4.0", XG: 1.68, Form: 11}, nil
}

func (f *fakePredictor) HeadToHead(_ context.Context, home, away string) ([]models.HeadToHead, error) {
	return []models.HeadToHead{{Date: "2023-05-01", Score: "2-1", Winner: home}}, nil
}

func (f *fakePredictor) Hierarchy(context.Context) (predictor.Hierarchy, error) {
	return predictor.Hierarchy{"England": {"Premier League": {"Arsenal", "Chelsea"}}}, nil
}

func (f *fakePredictor) Upcoming(count int) ([]models.Fixture, error) {
	all := []models.Fixture{
		{Date: "2024-03-09", Home: "Leeds", Away: "Fulham", League: "E1"},
		{Date: "2024-03-10", Home: "Ajax", Away: "PSV", League: "N1"},
	}
	return all[:min(count, len(all))], nil
}

type fakeMaintenance struct {
	running bool
	started int
}

func (f *fakeMaintenance) LastReport() (*models.HealthReport, error) {
	return &models.HealthReport{Status: models.StatusHealthy, ActiveAlerts: []models.ModelAlert{}, ModelsMonitored: []string{"wld"}}, nil
}

func (f *fakeMaintenance) JobStatus() (*models.JobStatus, error) {
	return &models.JobStatus{Status: models.JobIdle, Logs: []string{}}, nil
}

func (f *fakeMaintenance) Start(context.Context, bool) (string, error) {
	if f.running {
		return "", monitor.ErrCycleRunning
	}
	f.started++
	return "job-1", nil
}

func newTestHandler(p *fakePredictor, m *fakeMaintenance) *Handler {
	h := New(Config{
		Predictor:   p,
		Maintenance: m,
		Logger:      zap.NewNop(),
		AdminToken:  "secret",
		CORSOrigins: []string{"*"},
		EnableMCP:   true,
		Version:     "test",
	})
	h.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }
	return h
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestPredictEndpoint(t *testing.T) {
	p := &fakePredictor{}
	router := newTestHandler(p, &fakeMaintenance{}).Router()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantError  string
	}{
		{"ok", "home=Arsenal&away=Chelsea", http.StatusOK, ""},
		{"premium with odds", "home=Arsenal&away=Chelsea&tier=premium&odd_home=1.9&odd_draw=3.5&odd_away=4.0", http.StatusOK, ""},
		{"missing away", "home=Arsenal", http.StatusBadRequest, "Missing Away"},
		{"same team", "home=Arsenal&away=Arsenal", http.StatusBadRequest, "Home and away must be different teams"},
		{"bad tier", "home=Arsenal&away=Chelsea&tier=platinum", http.StatusBadRequest, "Tier must be free or premium"},
		{"odds not a number", "home=Arsenal&away=Chelsea&odd_home=abc", http.StatusBadRequest, "Invalid odd_home"},
		{"infinite odds", "home=Arsenal&away=Chelsea&odd_home=Inf&odd_draw=3&odd_away=4", http.StatusBadRequest, "Invalid odd_home"},
		{"NaN odds", "home=Arsenal&away=Chelsea&odd_home=1.9&odd_draw=NaN&odd_away=4", http.StatusBadRequest, "Invalid odd_draw"},
		{"partial odds", "home=Arsenal&away=Chelsea&odd_home=1.9", http.StatusBadRequest, "Missing OddDraw"},
		{"odds too low", "home=Arsenal&away=Chelsea&odd_home=1&odd_draw=3&odd_away=4", http.StatusBadRequest, "OddHome must be greater than 1"},
		{"bad date", "home=Arsenal&away=Chelsea&date=09/03/2024", http.StatusBadRequest, "Date must be YYYY-MM-DD"},
		{"team not found", "home=Arsenal&away=Nowhere+FC", http.StatusNotFound, "Nowhere FC not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, http.MethodGet, "/api/predict?"+tt.query, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			var body map[string]any
			decode(t, rr, &body)
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
		})
	}

	rr := do(t, router, http.MethodGet, "/api/predict?home=Arsenal&away=Chelsea&tier=gold&odd_home=1.9&odd_draw=3.5&odd_away=4.0&date=2024-03-09", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if p.last.Tier != models.TierPremium || p.last.Odds == nil || p.last.Odds.Draw != 3.5 {
		t.Errorf("request not mapped: %+v", p.last)
	}
	if !p.last.Date.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", p.last.Date)
	}
	var pred models.Prediction
	decode(t, rr, &pred)
	if pred.Score == nil || pred.Score.Home != 2 || pred.ModelUsed != "RF" {
		t.Errorf("unexpected prediction %+v", pred)
	}
}

func TestPredictEndpoint_Offline(t *testing.T) {
	router := newTestHandler(&fakePredictor{offline: true}, &fakeMaintenance{}).Router()
	rr := do(t, router, http.MethodGet, "/api/predict?home=Arsenal&away=Chelsea", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestTeamEndpoints(t *testing.T) {
	router := newTestHandler(&fakePredictor{}, &fakeMaintenance{}).Router()

	rr := do(t, router, http.MethodGet, "/api/teams", nil)
	var hierarchy predictor.Hierarchy
	decode(t, rr, &hierarchy)
	if got := hierarchy["England"]["Premier League"]; len(got) != 2 {
		t.Errorf("hierarchy = %v", hierarchy)
	}

	rr = do(t, router, http.MethodGet, "/api/teams/Arsenal", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var report models.TeamReport
	decode(t, rr, &report)
	if report.Rating != 1850 || report.GDTrend != "+4.0" {
		t.Errorf("report = %+v", report)
	}

	rr = do(t, router, http.MethodGet, "/api/teams/Nowhere", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}

	rr = do(t, router, http.MethodGet, "/api/h2h?home=Arsenal&away=Chelsea", nil)
	var h2h struct {
		Meetings []models.HeadToHead `json:"meetings"`
	}
	decode(t, rr, &h2h)
	if len(h2h.Meetings) != 1 || h2h.Meetings[0].Winner != "Arsenal" {
		t.Errorf("h2h = %+v", h2h)
	}
	if rr := do(t, router, http.MethodGet, "/api/h2h?home=Arsenal", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("h2h without away status = %d", rr.Code)
	}
}

func TestUpcomingEndpoint(t *testing.T) {
	router := newTestHandler(&fakePredictor{}, &fakeMaintenance{}).Router()

	rr := do(t, router, http.MethodGet, "/api/upcoming?count=1", nil)
	var fixtures []models.Fixture
	decode(t, rr, &fixtures)
	if len(fixtures) != 1 || fixtures[0].Home != "Leeds" {
		t.Errorf("fixtures = %+v", fixtures)
	}
	for _, q := range []string{"count=0", "count=abc"} {
		if rr := do(t, router, http.MethodGet, "/api/upcoming?"+q, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d", q, rr.Code)
		}
	}
}

func TestHealthAndStatus(t *testing.T) {
	router := newTestHandler(&fakePredictor{}, &fakeMaintenance{}).Router()

	rr := do(t, router, http.MethodGet, "/health", nil)
	var health map[string]any
	decode(t, rr, &health)
	if health["status"] != "ok" || health["version"] != "test" {
		t.Errorf("health = %v", health)
	}

	rr = do(t, router, http.MethodGet, "/api/status", nil)
	var status struct {
		Health *models.HealthReport `json:"health"`
		Job    *models.JobStatus    `json:"job"`
	}
	decode(t, rr, &status)
	if status.Health == nil || status.Health.Status != models.StatusHealthy || status.Job.Status != models.JobIdle {
		t.Errorf("status = %+v", status)
	}

	rr = do(t, router, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Errorf("metrics endpoint status = %d", rr.Code)
	}
}

func TestRetrainEndpoint(t *testing.T) {
	m := &fakeMaintenance{}
	router := newTestHandler(&fakePredictor{}, m).Router()

	tests := []struct {
		name       string
		token      string
		running    bool
		wantStatus int
	}{
		{"missing token", "", false, http.StatusUnauthorized},
		{"wrong token", "nope", false, http.StatusUnauthorized},
		{"started", "secret", false, http.StatusAccepted},
		{"already running", "secret", true, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.running = tt.running
			header := map[string]string{}
			if tt.token != "" {
				header["X-Admin-Token"] = tt.token
			}
			rr := do(t, router, http.MethodPost, "/api/admin/retrain", header)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
	if m.started != 1 {
		t.Errorf("started = %d, want 1", m.started)
	}

	disabled := New(Config{Predictor: &fakePredictor{}, Maintenance: m}).Router()
	rr := do(t, disabled, http.MethodPost, "/api/admin/retrain", map[string]string{"X-Admin-Token": "secret"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("disabled admin status = %d, want 403", rr.Code)
	}
}

func TestMCPTools(t *testing.T) {
	ctx := context.Background()
	server := newTestHandler(&fakePredictor{}, &fakeMaintenance{}).MCPServer()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	text := func(res *mcp.CallToolResult) string {
		t.Helper()
		if len(res.Content) == 0 {
			t.Fatal("empty tool result")
		}
		tc, ok := res.Content[0].(*mcp.TextContent)
		if !ok {
			t.Fatalf("unexpected content %T", res.Content[0])
		}
		return tc.Text
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "predict_match",
		Arguments: map[string]any{"home": "Arsenal", "away": "Chelsea", "tier": "premium"},
	})
	if err != nil {
		t.Fatalf("predict_match: %v", err)
	}
	var pred models.Prediction
	if err := json.Unmarshal([]byte(text(res)), &pred); err != nil {
		t.Fatalf("predict_match output: %v", err)
	}
	if res.IsError || pred.Tier != models.TierPremium || pred.WinProb == nil {
		t.Errorf("unexpected prediction %+v", pred)
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "team_report",
		Arguments: map[string]any{"team": "Nowhere"},
	})
	if err != nil {
		t.Fatalf("team_report: %v", err)
	}
	if !res.IsError || !strings.Contains(text(res), "Nowhere not found") {
		t.Errorf("expected tool error, got %q", text(res))
	}
}

func TestValidationMessage_NonValidatorError(t *testing.T) {
	if got := validationMessage(errors.New("boom")); got != "Invalid request" {
		t.Errorf("validationMessage = %q", got)
	}
}
