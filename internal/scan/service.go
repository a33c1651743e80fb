// Package scan orchestrates the two-phase admission flow: RequestScan
// turns a verified QR into a short-lived session, ConfirmScan redeems
// the session under the ticket's lock and applies the verdict.
package scan

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/occupancy"
	"ms-admission/internal/rules"
	"ms-admission/internal/session"
	"ms-admission/internal/signature"
	"ms-admission/internal/ticketlock"
	"ms-admission/internal/utils"
)

type DBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error)
	GetGateByID(ctx context.Context, id string) (*models.Gate, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SaveScanOutcome(ctx context.Context, ticket *models.Ticket, scanLog models.ScanLog, mutateTicket bool) error
}

// Notifier is invoked fire-and-forget after a successful entry or exit.
// It is never part of the persistence transaction.
type Notifier interface {
	PublishEntry(ticket models.Ticket, gateID string) error
	PublishExit(ticket models.Ticket, gateID string) error
}

// Error is a terminal request-stage failure carrying its verdict code.
type Error struct {
	Code    rules.Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type TicketPreview struct {
	TicketID   string `json:"ticket_id"`
	BuyerName  string `json:"buyer_name,omitempty"`
	TicketType string `json:"ticket_type,omitempty"`
	Status     string `json:"status"`
}

type SessionResponse struct {
	SessionToken string        `json:"session_token"`
	Nonce        string        `json:"nonce"`
	ExpiresIn    int           `json:"expires_in"`
	Ticket       TicketPreview `json:"ticket"`
}

type EventStatus struct {
	EventID   string `json:"event_id"`
	CurrentIn int    `json:"current_in"`
	Capacity  int    `json:"capacity"`
}

type ScanResult struct {
	Valid       bool           `json:"valid"`
	Code        rules.Code     `json:"code"`
	Message     string         `json:"message"`
	WaitSeconds int            `json:"wait_seconds,omitempty"`
	Ticket      *models.Ticket `json:"ticket,omitempty"`
	ScanLogID   string         `json:"scan_log_id,omitempty"`
	EventStatus *EventStatus   `json:"event_status,omitempty"`
}

type AdmissionService struct {
	DB        DBLayer
	Sessions  *session.Store
	Locks     *ticketlock.Manager
	Occupancy *occupancy.Counter
	Engine    *rules.Engine
	Notifier  Notifier
	Logger    *logger.Logger
	QRSecret  []byte
}

func NewAdmissionService(db DBLayer, sessions *session.Store, locks *ticketlock.Manager, counter *occupancy.Counter, engine *rules.Engine, notifier Notifier, log *logger.Logger, qrSecret []byte) *AdmissionService {
	return &AdmissionService{
		DB:        db,
		Sessions:  sessions,
		Locks:     locks,
		Occupancy: counter,
		Engine:    engine,
		Notifier:  notifier,
		Logger:    log,
		QRSecret:  qrSecret,
	}
}

// RequestScan validates a presented QR signature and opens a scan
// session. It never mutates ticket state.
func (s *AdmissionService) RequestScan(ctx context.Context, ticketID, presentedSig string) (*SessionResponse, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &Error{Code: rules.CodeTicketNotFound, Message: "ticket not found"}
		}
		return nil, fmt.Errorf("failed to load ticket %s: %w", ticketID, err)
	}

	if !signature.Verify(ticket.TicketID, ticket.EventID, ticket.QRNonce, presentedSig, s.QRSecret) {
		s.logSecurity("SIGNATURE_INVALID", fmt.Sprintf("rejected QR for ticket %s", ticketID))
		return nil, &Error{Code: rules.CodeSignatureInvalid, Message: "invalid QR signature"}
	}

	token, nonce, expiresAt, err := s.Sessions.Create(ctx, ticket.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan session: %w", err)
	}

	preview := TicketPreview{
		TicketID: ticket.TicketID,
		Status:   ticket.Status,
	}
	if user, err := s.DB.GetUserByID(ctx, ticket.UserID); err == nil {
		preview.BuyerName = user.FullName
	}
	if ticketType, err := s.DB.GetTicketTypeByID(ctx, ticket.TicketTypeID); err == nil {
		preview.TicketType = ticketType.Name
	}

	s.logScan("REQUEST", ticket.TicketID, "scan session opened")
	return &SessionResponse{
		SessionToken: token,
		Nonce:        nonce,
		ExpiresIn:    int(time.Until(expiresAt).Round(time.Second).Seconds()),
		Ticket:       preview,
	}, nil
}

// ConfirmScan redeems a session and adjudicates the scan. Business
// rejections come back as a ScanResult with Valid=false; only
// infrastructure failures are returned as errors.
func (s *AdmissionService) ConfirmScan(ctx context.Context, sessionToken, nonce, gateID, agentID string, action rules.Action) (*ScanResult, error) {
	sess, ok, err := s.Sessions.Consume(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("session store unavailable: %w", err)
	}
	if !ok {
		return conflict("scan session expired or already used"), nil
	}
	if subtle.ConstantTimeCompare([]byte(sess.Nonce), []byte(nonce)) != 1 {
		s.logSecurity("NONCE_MISMATCH", fmt.Sprintf("ticket %s presented a stale nonce", sess.TicketID))
		return conflict("nonce does not match scan session"), nil
	}
	if !action.Valid() {
		return &ScanResult{Code: rules.CodeInvalid, Message: fmt.Sprintf("unknown action: %s", action)}, nil
	}

	lock, ok, err := s.Locks.Acquire(ctx, sess.TicketID)
	if err != nil {
		return nil, fmt.Errorf("lock backend unavailable: %w", err)
	}
	if !ok {
		s.logLock("CONTENDED", sess.TicketID, "another confirm holds the ticket lock")
		return conflict("another scan for this ticket is in progress"), nil
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			s.logError("LOCK", fmt.Sprintf("failed to release lock for ticket %s: %v", sess.TicketID, err))
		}
	}()

	return s.confirmLocked(ctx, sess.TicketID, gateID, agentID, action)
}

// confirmLocked runs the rule pipeline and persists the outcome. The
// caller holds the ticket lock for the whole call.
func (s *AdmissionService) confirmLocked(ctx context.Context, ticketID, gateID, agentID string, action rules.Action) (*ScanResult, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ScanResult{Code: rules.CodeTicketNotFound, Message: "ticket not found"}, nil
		}
		return nil, fmt.Errorf("failed to load ticket %s: %w", ticketID, err)
	}
	event, err := s.DB.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", ticket.EventID, err)
	}
	ticketType, err := s.DB.GetTicketTypeByID(ctx, ticket.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket type %s: %w", ticket.TicketTypeID, err)
	}
	gate, err := s.DB.GetGateByID(ctx, gateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ScanResult{Code: rules.CodeInvalid, Message: "unknown gate", Ticket: ticket}, nil
		}
		return nil, fmt.Errorf("failed to load gate %s: %w", gateID, err)
	}

	now := time.Now()
	reserve := func() (bool, error) {
		return s.Occupancy.TryIncrement(ctx, event.EventID, event.Capacity)
	}
	verdict := s.Engine.Evaluate(*ticket, ticketType, event, gate, action, now, reserve)

	if verdict.Code == rules.CodeInternalError {
		return nil, fmt.Errorf("occupancy counter unavailable for event %s", event.EventID)
	}

	// A slot reserved on a path that ended in rejection must be given back.
	if verdict.CapacityReserved && !verdict.OK() {
		if err := s.Occupancy.Decrement(ctx, event.EventID); err != nil {
			return nil, fmt.Errorf("failed to release reserved capacity: %w", err)
		}
	}

	scanLog := s.buildScanLog(verdict, ticket.TicketID, gateID, agentID, action, now)
	updated := verdict.Ticket
	if err := s.DB.SaveScanOutcome(ctx, &updated, scanLog, verdict.OK()); err != nil {
		if verdict.OK() && action == rules.ActionEntry && verdict.CapacityReserved {
			if derr := s.Occupancy.Decrement(ctx, event.EventID); derr != nil {
				s.logError("COUNTER", fmt.Sprintf("failed to compensate counter for event %s: %v", event.EventID, derr))
			}
		}
		return nil, fmt.Errorf("failed to persist scan outcome: %w", err)
	}

	if verdict.OK() && action == rules.ActionExit {
		if err := s.Occupancy.Decrement(ctx, event.EventID); err != nil {
			return nil, fmt.Errorf("failed to decrement occupancy: %w", err)
		}
	}

	result := &ScanResult{
		Valid:       verdict.OK(),
		Code:        verdict.Code,
		Message:     verdict.Message,
		WaitSeconds: verdict.WaitSeconds,
		Ticket:      &updated,
		ScanLogID:   scanLog.ScanLogID,
	}

	if verdict.OK() {
		if current, err := s.Occupancy.Get(ctx, event.EventID); err == nil {
			result.EventStatus = &EventStatus{
				EventID:   event.EventID,
				CurrentIn: current,
				Capacity:  event.Capacity,
			}
		}
		s.notify(updated, gateID, action)
	}

	s.logScan(string(action), ticket.TicketID, fmt.Sprintf("verdict %s", verdict.Code))
	return result, nil
}

func (s *AdmissionService) buildScanLog(verdict rules.Verdict, ticketID, gateID, agentID string, action rules.Action, now time.Time) models.ScanLog {
	details := map[string]interface{}{
		"message": verdict.Message,
	}
	if verdict.WaitSeconds > 0 {
		details["wait_seconds"] = verdict.WaitSeconds
	}
	payload, _ := json.Marshal(details)

	return models.ScanLog{
		ScanLogID: utils.GenerateScanLogID(),
		TicketID:  ticketID,
		AgentID:   agentID,
		GateID:    gateID,
		ScanType:  string(action),
		Result:    string(verdict.Code),
		Details:   string(payload),
		ScannedAt: now,
	}
}

func (s *AdmissionService) notify(ticket models.Ticket, gateID string, action rules.Action) {
	if s.Notifier == nil {
		return
	}
	go func() {
		var err error
		switch action {
		case rules.ActionEntry:
			err = s.Notifier.PublishEntry(ticket, gateID)
		case rules.ActionExit:
			err = s.Notifier.PublishExit(ticket, gateID)
		}
		if err != nil {
			s.logError("KAFKA", fmt.Sprintf("failed to publish %s notification for ticket %s: %v", action, ticket.TicketID, err))
		}
	}()
}

// GetTicket loads one ticket, mapping a missing row to a terminal
// TICKET_NOT_FOUND error.
func (s *AdmissionService) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &Error{Code: rules.CodeTicketNotFound, Message: "ticket not found"}
		}
		return nil, fmt.Errorf("failed to load ticket %s: %w", ticketID, err)
	}
	return ticket, nil
}

// Occupancy reports the live head count for one event.
func (s *AdmissionService) OccupancyStatus(ctx context.Context, eventID string) (*EventStatus, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &Error{Code: rules.CodeTicketNotFound, Message: "event not found"}
		}
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}
	current, err := s.Occupancy.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &EventStatus{EventID: eventID, CurrentIn: current, Capacity: event.Capacity}, nil
}

func (s *AdmissionService) logScan(action, ticketID, message string) {
	if s.Logger != nil {
		s.Logger.LogScan(action, ticketID, message)
	}
}

func (s *AdmissionService) logLock(action, ticketID, message string) {
	if s.Logger != nil {
		s.Logger.LogLock(action, ticketID, message)
	}
}

func (s *AdmissionService) logSecurity(event, message string) {
	if s.Logger != nil {
		s.Logger.LogSecurity(event, message)
	}
}

func (s *AdmissionService) logError(category, message string) {
	if s.Logger != nil {
		s.Logger.Error(category, message)
	}
}

func conflict(message string) *ScanResult {
	return &ScanResult{Code: rules.CodeConflictScan, Message: message}
}
