// Package api exposes the game command and read API over HTTP and pushes
// snapshots over WebSocket. It adds no game rules: every handler resolves
// the caller's session and forwards to its engine.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/game"
	"github.com/oilbaron/sim-engine/internal/model"
)

// IdentityHeader carries the authenticated player id set by the gateway.
const IdentityHeader = "X-Player-ID"

// Service handles the game HTTP API.
type Service struct {
	sessions *Sessions
	hub      *WSHub
}

// NewService creates a new API service. hub may be nil when websocket
// pushes are not needed.
func NewService(sessions *Sessions, hub *WSHub) *Service {
	return &Service{sessions: sessions, hub: hub}
}

// Routes mounts the API on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/state", s.GetState)
	r.Post("/work", s.Work)
	r.Post("/save", s.Save)

	r.Post("/lands/generate", s.GenerateLands)
	r.Post("/lands/{parcelID}/buy", s.BuyLand)
	r.Post("/lands/{parcelID}/analyze", s.AnalyzeParcel)
	r.Delete("/lands/{parcelID}", s.DeleteParcel)
	r.Post("/lands/{parcelID}/rigs", s.InstallRig)
	r.Delete("/lands/{parcelID}/rigs/{index}", s.RemoveRig)

	r.Post("/skills/{skill}/upgrade", s.UpgradeSkill)

	r.Post("/companies/{companyID}/sell", s.SellOil)
	r.Post("/companies/{companyID}/contract", s.UpgradeContract)

	if s.hub != nil {
		r.Get("/ws", s.ServeWS)
	}
}

// --- Request/Response types ---

// InstallRigRequest is the JSON body for POST /lands/{parcelID}/rigs.
type InstallRigRequest struct {
	Tier string `json:"tier"`
}

// SellRequest is the JSON body for POST /companies/{companyID}/sell.
type SellRequest struct {
	Amount int64 `json:"amount"`
}

// CommandResponse wraps a command result with the snapshot after it.
type CommandResponse struct {
	Result any           `json:"result"`
	State  game.Snapshot `json:"state"`
}

// WorkResult is the result of POST /work.
type WorkResult struct {
	Income decimal.Decimal `json:"income"`
}

// AmountResult reports money moved by a command: a price, fee or refund.
type AmountResult struct {
	Amount decimal.Decimal `json:"amount"`
}

// LevelResult reports the level reached by an upgrade.
type LevelResult struct {
	Level int `json:"level"`
}

// --- HTTP Handlers ---

func (s *Service) session(r *http.Request) *Session {
	id := r.Header.Get(IdentityHeader)
	if id == "" {
		id = r.URL.Query().Get("player")
	}
	return s.sessions.Get(r.Context(), id)
}

// GetState handles GET /api/v1/state
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).Engine.Snapshot())
}

// Work handles POST /api/v1/work
func (s *Service) Work(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if !sess.AllowClick() {
		writeError(w, "too many clicks", "rate_limited", http.StatusTooManyRequests)
		return
	}
	income, err := sess.Engine.Work()
	respond(w, sess, WorkResult{Income: income}, err)
}

// GenerateLands handles POST /api/v1/lands/generate
func (s *Service) GenerateLands(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	parcels, err := sess.Engine.GenerateLands()
	respond(w, sess, map[string]int{"generated": len(parcels)}, err)
}

// BuyLand handles POST /api/v1/lands/{parcelID}/buy
func (s *Service) BuyLand(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	sess := s.session(r)
	price, err := sess.Engine.BuyLand(id)
	respond(w, sess, AmountResult{Amount: price}, err)
}

// AnalyzeParcel handles POST /api/v1/lands/{parcelID}/analyze
func (s *Service) AnalyzeParcel(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	sess := s.session(r)
	p, err := sess.Engine.AnalyzeParcel(id)
	respond(w, sess, analysis(p), err)
}

// DeleteParcel handles DELETE /api/v1/lands/{parcelID}
func (s *Service) DeleteParcel(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	sess := s.session(r)
	fee, err := sess.Engine.DeleteDepletedParcel(id)
	respond(w, sess, AmountResult{Amount: fee}, err)
}

// InstallRig handles POST /api/v1/lands/{parcelID}/rigs
func (s *Service) InstallRig(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	var req InstallRigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tier == "" {
		writeError(w, "invalid request body", "invalid_request", http.StatusBadRequest)
		return
	}
	sess := s.session(r)
	err := sess.Engine.InstallRig(id, req.Tier)
	respond(w, sess, map[string]string{"tier": req.Tier}, err)
}

// RemoveRig handles DELETE /api/v1/lands/{parcelID}/rigs/{index}
func (s *Service) RemoveRig(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, "rig index must be an integer", "invalid_request", http.StatusBadRequest)
		return
	}
	sess := s.session(r)
	refund, err := sess.Engine.RemoveRig(id, index)
	respond(w, sess, AmountResult{Amount: refund}, err)
}

// UpgradeSkill handles POST /api/v1/skills/{skill}/upgrade
func (s *Service) UpgradeSkill(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	level, err := sess.Engine.UpgradeSkill(chi.URLParam(r, "skill"))
	respond(w, sess, LevelResult{Level: level}, err)
}

// SellOil handles POST /api/v1/companies/{companyID}/sell
func (s *Service) SellOil(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "invalid_request", http.StatusBadRequest)
		return
	}
	sess := s.session(r)
	res, err := sess.Engine.SellOil(chi.URLParam(r, "companyID"), req.Amount)
	respond(w, sess, res, err)
}

// UpgradeContract handles POST /api/v1/companies/{companyID}/contract
func (s *Service) UpgradeContract(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	level, err := sess.Engine.UpgradeContract(chi.URLParam(r, "companyID"))
	respond(w, sess, LevelResult{Level: level}, err)
}

// Save handles POST /api/v1/save
func (s *Service) Save(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		slog.Error("manual save failed", "player", sess.Identity, "err", err)
		writeError(w, "save failed", "internal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "key": sess.Key})
}

// ServeWS handles GET /api/v1/ws
func (s *Service) ServeWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serveWS(w, r, s.session(r))
}

// --- helpers ---

// ParcelAnalysis is what an analysis reveals.
type ParcelAnalysis struct {
	ID          int64  `json:"id"`
	OilCategory string `json:"oilCategory"`
	TotalOil    int64  `json:"totalOil"`
	CurrentOil  int64  `json:"currentOil"`
}

func analysis(p model.Parcel) ParcelAnalysis {
	return ParcelAnalysis{ID: p.ID, OilCategory: p.OilCategory, TotalOil: p.TotalOil, CurrentOil: p.CurrentOil}
}

func parcelID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "parcelID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "parcel id must be a positive integer", "invalid_request", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// respond writes the command result with the post-command snapshot, or the
// rejection mapped to a status code.
func respond(w http.ResponseWriter, sess *Session, result any, err error) {
	if err != nil {
		reason := game.Reason(err)
		status := statusFor(reason)
		if status == http.StatusInternalServerError {
			slog.Error("command failed", "player", sess.Identity, "err", err)
		}
		writeError(w, err.Error(), reason, status)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Result: result, State: sess.Engine.Snapshot()})
}

func statusFor(reason string) int {
	switch reason {
	case "not_found":
		return http.StatusNotFound
	case "invalid_amount":
		return http.StatusBadRequest
	case "internal":
		return http.StatusInternalServerError
	}
	return http.StatusConflict
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Debug("response write failed", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, reason string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message, Reason: reason})
}
