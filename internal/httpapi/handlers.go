package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flor3z/noko-bot/internal/arena"
)

// ArenaReader is the read side of the arena service.
type ArenaReader interface {
	Status(ctx context.Context) (arena.Status, error)
	Teams(ctx context.Context) ([]arena.TeamStanding, error)
	Leaderboard(ctx context.Context, limit int) ([]arena.Participant, error)
	Participant(ctx context.Context, id string) (arena.Participant, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves a read-only JSON view of the arena.
type Handler struct {
	arena  ArenaReader
	store  Pinger
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler. store may be nil.
func NewHandler(reader ArenaReader, store Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{arena: reader, store: store, logger: logger}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type statusView struct {
	Phase            arena.Phase    `json:"phase"`
	Active           bool           `json:"active"`
	Participants     int            `json:"participants"`
	Teams            int            `json:"teams"`
	WeekStart        time.Time      `json:"week_start"`
	SizeVotes        int            `json:"size_votes"`
	SizeVotesNeeded  int            `json:"size_votes_needed"`
	StartVotes       int            `json:"start_votes"`
	StartVotesNeeded int            `json:"start_votes_needed"`
	Challenge        *challengeView `json:"challenge,omitempty"`
}

type challengeView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	RewardPoints uint           `json:"reward_points"`
	RuleType     arena.RuleType `json:"rule_type"`
	RuleTarget   string         `json:"rule_target"`
	StartedAt    time.Time      `json:"started_at"`
	EndsAt       time.Time      `json:"ends_at"`
}

type standingView struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Points  uint     `json:"points"`
}

type participantView struct {
	Rank          int    `json:"rank,omitempty"`
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Team          string `json:"team,omitempty"`
	Points        uint   `json:"points"`
	ChallengesWon uint   `json:"challenges_won"`
}

func newChallengeView(c *arena.Challenge) *challengeView {
	if c == nil {
		return nil
	}
	return &challengeView{
		ID:           c.InstanceID(),
		Name:         c.Name,
		Description:  c.Description,
		RewardPoints: c.RewardPoints,
		RuleType:     c.RuleType,
		RuleTarget:   c.RuleTarget,
		StartedAt:    c.WindowStart().UTC(),
		EndsAt:       c.Ends().UTC(),
	}
}

func newParticipantView(p arena.Participant, rank int) participantView {
	return participantView{
		Rank:          rank,
		ID:            p.ID,
		DisplayName:   p.DisplayName,
		Team:          p.Team,
		Points:        p.Points,
		ChallengesWon: p.ChallengesWon,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// writeArenaError maps arena errors onto HTTP statuses.
func (h *Handler) writeArenaError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, arena.ErrNotJoined):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, arena.ErrStoreUnavailable):
		h.logger.Error("arena store unavailable", "op", op, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, arena.ErrStoreUnavailable)
	default:
		h.logger.Error("arena request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ReadyCheck reports whether the backing store answers.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, arena.ErrStoreUnavailable)
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetStatus returns the arena summary.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.arena.Status(r.Context())
	if err != nil {
		h.writeArenaError(w, "status", err)
		return
	}
	h.writeSuccess(w, statusView{
		Phase:            st.Phase,
		Active:           st.Active,
		Participants:     st.Participants,
		Teams:            st.Teams,
		WeekStart:        st.WeekStart.UTC(),
		SizeVotes:        st.SizeVotes,
		SizeVotesNeeded:  st.SizeVotesNeeded,
		StartVotes:       st.StartVotes,
		StartVotesNeeded: st.StartVotesNeeded,
		Challenge:        newChallengeView(st.Challenge),
	})
}

// GetTeams returns team standings.
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.arena.Teams(r.Context())
	if err != nil {
		h.writeArenaError(w, "teams", err)
		return
	}
	out := make([]standingView, 0, len(teams))
	for _, t := range teams {
		out = append(out, standingView{Name: t.Name, Members: t.Members, Points: t.Points})
	}
	h.writeSuccess(w, out)
}

// GetLeaderboard returns the top participants.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	board, err := h.arena.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeArenaError(w, "leaderboard", err)
		return
	}
	out := make([]participantView, 0, len(board))
	for i, p := range board {
		out = append(out, newParticipantView(p, i+1))
	}
	h.writeSuccess(w, out)
}

// GetParticipant returns one participant.
func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.arena.Participant(r.Context(), chi.URLParam(r, "participantID"))
	if err != nil {
		h.writeArenaError(w, "participant", err)
		return
	}
	h.writeSuccess(w, newParticipantView(p, 0))
}
