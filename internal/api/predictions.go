package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/predictor"
)

const (
	defaultUpcoming = 10
	maxUpcoming     = 100
)

type predictQuery struct {
	Home    string  `validate:"required,max=100"`
	Away    string  `validate:"required,max=100,nefield=Home"`
	Tier    string  `validate:"omitempty,oneof=free premium gold"`
	OddHome float64 `validate:"required_with=OddDraw OddAway,omitempty,gt=1"`
	OddDraw float64 `validate:"required_with=OddHome OddAway,omitempty,gt=1"`
	OddAway float64 `validate:"required_with=OddHome OddDraw,omitempty,gt=1"`
	Date    string  `validate:"omitempty,datetime=2006-01-02"`
}

// Predict returns the prediction record for one fixture.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := predictQuery{
		Home: strings.TrimSpace(q.Get("home")),
		Away: strings.TrimSpace(q.Get("away")),
		Tier: strings.ToLower(strings.TrimSpace(q.Get("tier"))),
		Date: q.Get("date"),
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"odd_home", &in.OddHome}, {"odd_draw", &in.OddDraw}, {"odd_away", &in.OddAway}} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			h.errorResponse(w, http.StatusBadRequest, "Invalid "+f.name)
			return
		}
		*f.dst = v
	}
	if err := h.validator.Struct(in); err != nil {
		h.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	tier, _ := models.ParseTier(in.Tier)
	req := predictor.Request{Home: in.Home, Away: in.Away, Tier: tier}
	if in.OddHome > 0 {
		req.Odds = &predictor.Odds{Home: in.OddHome, Draw: in.OddDraw, Away: in.OddAway}
	}
	if in.Date != "" {
		req.Date, _ = time.Parse(time.DateOnly, in.Date)
	}

	pred := h.predictor.Predict(r.Context(), req)
	h.jsonResponse(w, predictionStatus(pred), pred)
}

func predictionStatus(p *models.Prediction) int {
	switch p.ErrorCode {
	case "":
		return http.StatusOK
	case models.CodeTeamNotFound:
		return http.StatusNotFound
	case models.CodeEngineOffline:
		return http.StatusServiceUnavailable
	case models.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_with":
		return "Missing " + fe.Field()
	case "nefield":
		return "Home and away must be different teams"
	case "gt":
		return fe.Field() + " must be greater than 1"
	case "oneof":
		return "Tier must be free or premium"
	case "datetime":
		return "Date must be YYYY-MM-DD"
	default:
		return "Invalid " + fe.Field()
	}
}

// Teams returns the country / league / team hierarchy.
func (h *Handler) Teams(w http.ResponseWriter, r *http.Request) {
	hierarchy, err := h.predictor.Hierarchy(r.Context())
	if err != nil {
		h.logger.Errorw("failed to build team hierarchy", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load teams")
		return
	}
	h.jsonResponse(w, http.StatusOK, hierarchy)
}

// Team returns the report card of one team.
func (h *Handler) Team(w http.ResponseWriter, r *http.Request) {
	team := strings.TrimSpace(chi.URLParam(r, "team"))
	if team == "" {
		h.errorResponse(w, http.StatusBadRequest, "Missing team")
		return
	}
	report, err := h.predictor.TeamReport(r.Context(), team)
	if err != nil {
		if errors.Is(err, predictor.ErrTeamNotFound) {
			h.errorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Errorw("failed to build team report", "team", team, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load team report")
		return
	}
	h.jsonResponse(w, http.StatusOK, report)
}

// HeadToHead returns recent meetings between two teams.
func (h *Handler) HeadToHead(w http.ResponseWriter, r *http.Request) {
	home := strings.TrimSpace(r.URL.Query().Get("home"))
	away := strings.TrimSpace(r.URL.Query().Get("away"))
	if home == "" || away == "" {
		h.errorResponse(w, http.StatusBadRequest, "home and away are required")
		return
	}
	meetings, err := h.predictor.HeadToHead(r.Context(), home, away)
	if err != nil {
		h.logger.Errorw("failed to load head to head", "home", home, "away", away, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load head to head")
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"home":     home,
		"away":     away,
		"meetings": meetings,
	})
}

// Upcoming returns scheduled fixtures.
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	count := defaultUpcoming
	if c := r.URL.Query().Get("count"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 1 {
			h.errorResponse(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, maxUpcoming)
	}
	fixtures, err := h.predictor.Upcoming(count)
	if err != nil {
		h.logger.Errorw("failed to load fixtures", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load fixtures")
		return
	}
	h.jsonResponse(w, http.StatusOK, fixtures)
}
