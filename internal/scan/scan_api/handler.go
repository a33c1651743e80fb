package scan_api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-admission/internal/auth"
	"ms-admission/internal/logger"
	"ms-admission/internal/qrpass"
	"ms-admission/internal/rules"
	"ms-admission/internal/scan"
	"ms-admission/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *scan.AdmissionService
	Passes  *qrpass.Generator
	Logger  *logger.Logger
}

func NewHandler(service *scan.AdmissionService, passes *qrpass.Generator, log *logger.Logger) *Handler {
	return &Handler{Service: service, Passes: passes, Logger: log}
}

type requestScanBody struct {
	TicketID  string `json:"ticket_id"`
	Signature string `json:"signature"`
}

func (h *Handler) RequestScan(w http.ResponseWriter, r *http.Request) {
	var body requestScanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.TicketID == "" || body.Signature == "" {
		http.Error(w, "ticket_id and signature are required", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.RequestScan(r.Context(), body.TicketID, body.Signature)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type confirmScanBody struct {
	SessionToken string `json:"session_token"`
	Nonce        string `json:"nonce"`
	GateID       string `json:"gate_id"`
	AgentID      string `json:"agent_id"`
	Action       string `json:"action"`
}

func (h *Handler) ConfirmScan(w http.ResponseWriter, r *http.Request) {
	var body confirmScanBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.SessionToken == "" || body.Nonce == "" || body.GateID == "" {
		http.Error(w, "session_token, nonce and gate_id are required", http.StatusBadRequest)
		return
	}

	// The verified token wins over whatever the body claims. M2M callers
	// behind a gateway that already checked the token still get their
	// subject picked up from the bearer header.
	agentID := body.AgentID
	if ctxAgent, ok := auth.AgentIDFromContext(r.Context()); ok {
		agentID = ctxAgent
	} else if token, err := auth.ExtractTokenFromRequest(r); err == nil {
		if sub, err := auth.ExtractAgentIDFromJWT(token); err == nil {
			agentID = sub
		}
	}

	result, err := h.Service.ConfirmScan(r.Context(), body.SessionToken, body.Nonce, body.GateID, agentID, rules.Action(body.Action))
	if err != nil {
		h.logError("confirm scan failed: " + err.Error())
		writeJSON(w, http.StatusInternalServerError, scan.ScanResult{
			Code:    rules.CodeInternalError,
			Message: "internal server error",
		})
		return
	}

	writeJSON(w, statusForCode(result.Code), result)
}

func (h *Handler) TicketPass(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ticket, err := h.Service.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	png, err := h.Passes.GeneratePNG(*ticket)
	if err != nil {
		h.logError("failed to render ticket pass: " + err.Error())
		http.Error(w, "failed to render ticket pass", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) Occupancy(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	status, err := h.Service.OccupancyStatus(r.Context(), eventID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("occupancy", status))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *scan.Error
	if errors.As(err, &svcErr) {
		writeJSON(w, statusForCode(svcErr.Code), utils.ErrorResponse(svcErr.Message, string(svcErr.Code)))
		return
	}
	h.logError(err.Error())
	writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal server error", string(rules.CodeInternalError)))
}

func (h *Handler) logError(message string) {
	if h.Logger != nil {
		h.Logger.Error("API", message)
	}
}

func statusForCode(code rules.Code) int {
	switch code {
	case rules.CodeOK:
		return http.StatusOK
	case rules.CodeSignatureInvalid:
		return http.StatusUnauthorized
	case rules.CodeTicketNotFound:
		return http.StatusNotFound
	case rules.CodeConflictScan, rules.CodeCapacityFull:
		return http.StatusConflict
	case rules.CodeInvalid, rules.CodeExpired, rules.CodeAlreadyIn, rules.CodeAlreadyOut:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
