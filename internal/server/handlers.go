package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"somo-backend/internal/model"
)

// reserveInput is the claim-preparation request body.
type reserveInput struct {
	Address string `json:"address"`
}

// reserveResponse echoes the reservation back to the wallet client, which
// embeds the numbers in the blockchain transaction it builds next.
type reserveResponse struct {
	X                int        `json:"x"`
	Y                int        `json:"y"`
	Tier             model.Tier `json:"tier"`
	Price            int64      `json:"price"`
	TierMintNumber   int64      `json:"tierMintNumber"`
	GlobalMintNumber int64      `json:"globalMintNumber"`
	ReservedAt       time.Time  `json:"reservedAt"`
	WasReserved      bool       `json:"wasReserved"`
}

// claimInput is the claim-finalization request body. The mint numbers are
// validated against the live reservation, never trusted.
type claimInput struct {
	Address          string `json:"address"`
	TxHash           string `json:"txHash"`
	SporeID          string `json:"sporeId"`
	TierMintNumber   int64  `json:"tierMintNumber"`
	GlobalMintNumber int64  `json:"globalMintNumber"`
}

type meltInput struct {
	Address string `json:"address"`
}

type transferInput struct {
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
}

// coords extracts and validates the {x}/{y} route variables.
func coords(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	vars := mux.Vars(r)
	x, errX := strconv.Atoi(vars["x"])
	y, errY := strconv.Atoi(vars["y"])
	if errX != nil || errY != nil {
		badRequest(w, "coordinates must be integers")
		return 0, 0, false
	}
	return x, y, true
}

func (s *Server) handleReservePixel(w http.ResponseWriter, r *http.Request) {
	x, y, ok := coords(w, r)
	if !ok {
		return
	}
	var input reserveInput
	if !decodeJSON(w, r, &input) {
		return
	}
	input.Address = strings.TrimSpace(input.Address)
	if input.Address == "" {
		badRequest(w, "address required")
		return
	}

	res, err := s.claims.Prepare(r.Context(), x, y, input.Address)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reserveResponse{
		X:                res.X,
		Y:                res.Y,
		Tier:             res.Tier,
		Price:            res.Price,
		TierMintNumber:   res.TierMintNumber,
		GlobalMintNumber: res.GlobalMintNumber,
		ReservedAt:       res.ReservedAt,
		WasReserved:      res.WasReserved,
	})
}

func (s *Server) handleClaimPixel(w http.ResponseWriter, r *http.Request) {
	x, y, ok := coords(w, r)
	if !ok {
		return
	}
	var input claimInput
	if !decodeJSON(w, r, &input) {
		return
	}
	input.Address = strings.TrimSpace(input.Address)
	input.TxHash = strings.TrimSpace(input.TxHash)
	if input.Address == "" || input.TxHash == "" {
		badRequest(w, "address and txHash required")
		return
	}

	pixel, err := s.claims.Finalize(r.Context(), x, y, input.Address, input.TxHash, input.SporeID, input.TierMintNumber, input.GlobalMintNumber)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pixel)
}

func (s *Server) handleMeltPixel(w http.ResponseWriter, r *http.Request) {
	x, y, ok := coords(w, r)
	if !ok {
		return
	}
	var input meltInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if strings.TrimSpace(input.Address) == "" {
		badRequest(w, "address required")
		return
	}

	pixel, err := s.claims.Melt(r.Context(), x, y, strings.TrimSpace(input.Address))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pixel)
}

func (s *Server) handleTransferPixel(w http.ResponseWriter, r *http.Request) {
	x, y, ok := coords(w, r)
	if !ok {
		return
	}
	var input transferInput
	if !decodeJSON(w, r, &input) {
		return
	}
	input.FromAddress = strings.TrimSpace(input.FromAddress)
	input.ToAddress = strings.TrimSpace(input.ToAddress)
	if input.FromAddress == "" || input.ToAddress == "" {
		badRequest(w, "fromAddress and toAddress required")
		return
	}

	pixel, err := s.claims.Transfer(r.Context(), x, y, input.FromAddress, input.ToAddress)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pixel)
}

func (s *Server) handleGetPixel(w http.ResponseWriter, r *http.Request) {
	x, y, ok := coords(w, r)
	if !ok {
		return
	}
	pixel, err := s.pixels.GetByCoord(r.Context(), x, y)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pixel)
}

func (s *Server) handleListPixels(w http.ResponseWriter, r *http.Request) {
	pixels, err := s.pixels.ListAll(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pixels)
}

func (s *Server) handlePixelEvents(w http.ResponseWriter, r *http.Request) {
	x, y, ok := coords(w, r)
	if !ok {
		return
	}
	pixel, err := s.pixels.GetByCoord(r.Context(), x, y)
	if err != nil {
		respondError(w, err)
		return
	}
	events, err := s.events.GetByPixel(r.Context(), pixel.ID, 100)
	if err != nil {
		respondError(w, err)
		return
	}
	if events == nil {
		events = []*model.MintEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleUserPoints(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(mux.Vars(r)["address"])
	if address == "" {
		badRequest(w, "address required")
		return
	}

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(w, "asOf must be RFC3339")
			return
		}
		asOf = parsed
	}

	summary, err := s.governance.Points(r.Context(), address, asOf)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			badRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	events, err := s.events.GetRecent(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if events == nil {
		events = []*model.MintEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// boostInput sets a wallet's referral boost. Level is clamped during point
// computation, not here, so the stored value reflects what was granted.
type boostInput struct {
	Level     int       `json:"level"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleSetReferralBoost(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(mux.Vars(r)["address"])
	if address == "" {
		badRequest(w, "address required")
		return
	}
	var input boostInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.Level < 0 {
		badRequest(w, "level must not be negative")
		return
	}
	if input.ExpiresAt.IsZero() {
		badRequest(w, "expiresAt required")
		return
	}

	user, err := s.users.GetByAddress(r.Context(), address)
	if err != nil {
		respondError(w, err)
		return
	}
	updated, err := s.users.SetReferralBoost(r.Context(), user.ID, input.Level, input.ExpiresAt.UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// statsResponse summarizes canvas progress for dashboards.
type statsResponse struct {
	ClaimedPixels int              `json:"claimedPixels"`
	TotalPixels   int              `json:"totalPixels"`
	Counters      map[string]int64 `json:"counters"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	claimed, err := s.pixels.CountClaimed(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	counters, err := s.counters.GetAll(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ClaimedPixels: claimed,
		TotalPixels:   s.totalPixels,
		Counters:      counters,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
