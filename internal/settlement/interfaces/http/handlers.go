// Package http implements the thin outbound pull API the external
// invoicing system polls: two reads and one write, nothing else.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	settlement "settlementcore/internal/settlement/domain"
)

const defaultListLimit = 100

// settlementDTO is the wire shape of one settlement on the pull API.
type settlementDTO struct {
	ID                   string    `json:"id"`
	GSRN                 string    `json:"gsrn"`
	SupplyID             string    `json:"supplyId"`
	PeriodStart          time.Time `json:"periodStart"`
	PeriodEnd            time.Time `json:"periodEnd"`
	Status               string    `json:"status"`
	IsCorrection         bool      `json:"isCorrection"`
	PreviousSettlementID string    `json:"previousSettlementId,omitempty"`
	DocumentNumber       string    `json:"documentNumber"`
	TotalEnergyKWh       float64   `json:"totalEnergyKWh"`
	TotalAmount          float64   `json:"totalAmount"`
	InvoiceReference     string    `json:"invoiceReference,omitempty"`
	Lines                []lineDTO `json:"lines"`
}

type lineDTO struct {
	Source    string  `json:"source"`
	ChargeID  string  `json:"chargeId,omitempty"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Amount    float64 `json:"amount"`
}

func toDTO(s settlement.Settlement) settlementDTO {
	lines := make([]lineDTO, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, lineDTO{
			Source:    string(l.Source),
			ChargeID:  l.ChargeID,
			Quantity:  l.Quantity.Float64(),
			UnitPrice: l.UnitPrice.Float64(),
			Amount:    l.Amount.Float64(),
		})
	}
	return settlementDTO{
		ID:                   s.ID,
		GSRN:                 string(s.GSRN),
		SupplyID:             s.SupplyID,
		PeriodStart:          s.Period.Start,
		PeriodEnd:            s.Period.End,
		Status:               string(s.Status),
		IsCorrection:         s.IsCorrection,
		PreviousSettlementID: s.PreviousSettlementID,
		DocumentNumber:       s.DocumentNumber,
		TotalEnergyKWh:       s.TotalEnergy.Float64(),
		TotalAmount:          s.TotalAmount.Float64(),
		InvoiceReference:     s.InvoiceReference,
		Lines:                lines,
	}
}

// SettlementsHandler serves the outbound pull API's two read endpoints:
// new (Calculated) settlements and corrections.
type SettlementsHandler struct {
	repo settlement.SettlementRepository
}

// NewSettlementsHandler constructs the read handler.
func NewSettlementsHandler(repo settlement.SettlementRepository) (*SettlementsHandler, error) {
	if repo == nil {
		return nil, errors.New("settlements handler: nil repository")
	}
	return &SettlementsHandler{repo: repo}, nil
}

// ServeHTTP handles GET /api/v1/settlements (status=calculated, the
// default "new settlements" read) and GET /api/v1/settlements?corrections=true.
func (h *SettlementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		rows []settlement.Settlement
		err  error
	)
	if r.URL.Query().Get("corrections") == "true" {
		rows, err = h.repo.ListCorrections(r.Context(), limit)
	} else {
		rows, err = h.repo.ListByStatus(r.Context(), settlement.StatusCalculated, limit)
	}
	if err != nil {
		http.Error(w, "query settlements error", http.StatusInternalServerError)
		return
	}

	out := make([]settlementDTO, 0, len(rows))
	for _, s := range rows {
		out = append(out, toDTO(s))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// ConfirmInvoicedRequest is the write endpoint's request body.
type ConfirmInvoicedRequest struct {
	InvoiceReference string `json:"invoiceReference"`
}

// ConfirmInvoicedHandler serves the outbound pull API's write endpoint:
// transition a settlement from Calculated to Invoiced.
type ConfirmInvoicedHandler struct {
	repo settlement.SettlementRepository
}

// NewConfirmInvoicedHandler constructs the write handler.
func NewConfirmInvoicedHandler(repo settlement.SettlementRepository) (*ConfirmInvoicedHandler, error) {
	if repo == nil {
		return nil, errors.New("confirm invoiced handler: nil repository")
	}
	return &ConfirmInvoicedHandler{repo: repo}, nil
}

// ServeHTTP handles POST /api/v1/settlements/{id}/invoiced.
func (h *ConfirmInvoicedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := idFromPath(r.URL.Path)
	if id == "" {
		http.Error(w, "settlement id is required", http.StatusBadRequest)
		return
	}

	var req ConfirmInvoicedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InvoiceReference == "" {
		http.Error(w, "invoiceReference is required", http.StatusBadRequest)
		return
	}

	err := h.repo.MarkInvoiced(r.Context(), id, req.InvoiceReference, time.Now().UTC())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, settlement.ErrNotCalculated):
		http.Error(w, "settlement is not in Calculated state", http.StatusConflict)
	default:
		http.Error(w, "confirm invoiced error", http.StatusInternalServerError)
	}
}

// idFromPath extracts the settlement id from a path of the form
// /api/v1/settlements/{id}/invoiced.
func idFromPath(path string) string {
	const prefix = "/api/v1/settlements/"
	const suffix = "/invoiced"
	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	if path[:len(prefix)] != prefix {
		return ""
	}
	if path[len(path)-len(suffix):] != suffix {
		return ""
	}
	return path[len(prefix) : len(path)-len(suffix)]
}
