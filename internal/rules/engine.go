// Package rules adjudicates a single scan attempt. Evaluate runs the
// checks in a fixed order and short-circuits on the first failure; ties
// always resolve to rejection. Every branch is an expected business
// outcome carried in the Verdict, never an error.
package rules

import (
	"fmt"
	"math"
	"time"

	"ms-admission/internal/models"
)

type Action string

const (
	ActionEntry Action = "entry"
	ActionExit  Action = "exit"
)

// Valid reports whether the action is one the engine knows.
func (a Action) Valid() bool {
	return a == ActionEntry || a == ActionExit
}

type Code string

const (
	CodeOK               Code = "OK"
	CodeInvalid          Code = "INVALID"
	CodeExpired          Code = "EXPIRED"
	CodeAlreadyIn        Code = "ALREADY_IN"
	CodeAlreadyOut       Code = "ALREADY_OUT"
	CodeCapacityFull     Code = "CAPACITY_FULL"
	CodeConflictScan     Code = "CONFLICT_SCAN"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeTicketNotFound   Code = "TICKET_NOT_FOUND"
	CodeInternalError    Code = "INTERNAL_SERVER_ERROR"
)

// Verdict is the outcome of one scan evaluation.
//
// Ticket is the snapshot after the evaluation: on OK it carries the
// lifecycle mutation the coordinator must persist, on every other code
// it is untouched. CapacityReserved tells the coordinator whether the
// injected reservation step incremented the occupancy counter, so a
// rejection after a successful reservation can be compensated.
type Verdict struct {
	Code             Code
	Message          string
	WaitSeconds      int
	Ticket           models.Ticket
	CapacityReserved bool
}

func (v Verdict) OK() bool {
	return v.Code == CodeOK
}

// CapacityFunc performs the atomic check-and-reserve against the
// occupancy counter. It is injected so the engine itself stays
// deterministic while the evaluation order stays fixed.
type CapacityFunc func() (bool, error)

type Engine struct {
	// Cooldown is the minimum wait between an exit and the next
	// re-entry of the same ticket.
	Cooldown time.Duration
}

func NewEngine(cooldown time.Duration) *Engine {
	return &Engine{Cooldown: cooldown}
}

// Evaluate adjudicates one scan. The ticket is taken by value; the
// returned Verdict.Ticket carries any resulting mutation.
func (e *Engine) Evaluate(ticket models.Ticket, ticketType *models.TicketType, event *models.Event, gate *models.Gate, action Action, now time.Time, reserve CapacityFunc) Verdict {
	reject := func(code Code, message string) Verdict {
		return Verdict{Code: code, Message: message, Ticket: ticket}
	}

	if now.Before(event.StartDatetime) {
		return reject(CodeInvalid, "event not started")
	}
	if now.After(event.EndDatetime) {
		return reject(CodeExpired, "event ended")
	}
	if gate.Status != models.GateStatusActive {
		return reject(CodeInvalid, "gate inactive")
	}
	if !ticket.Admissible() {
		return reject(CodeInvalid, fmt.Sprintf("wrong ticket status: %s", ticket.Status))
	}
	if !ticketType.ValidityFrom.IsZero() && now.Before(ticketType.ValidityFrom) {
		return reject(CodeExpired, "ticket not yet valid")
	}
	if !ticketType.ValidityTo.IsZero() && now.After(ticketType.ValidityTo) {
		return reject(CodeExpired, "ticket validity expired")
	}

	switch action {
	case ActionEntry:
		return e.evaluateEntry(ticket, ticketType, event, gate, now, reserve)
	case ActionExit:
		return e.evaluateExit(ticket, gate, now)
	default:
		return reject(CodeInvalid, fmt.Sprintf("unknown action: %s", action))
	}
}

func (e *Engine) evaluateEntry(ticket models.Ticket, ticketType *models.TicketType, event *models.Event, gate *models.Gate, now time.Time, reserve CapacityFunc) Verdict {
	reject := func(code Code, message string) Verdict {
		return Verdict{Code: code, Message: message, Ticket: ticket}
	}

	if ticket.Status == models.TicketStatusIn {
		return reject(CodeAlreadyIn, "ticket is already inside")
	}

	if ticket.Status == models.TicketStatusOut {
		if !event.AllowReentry {
			return reject(CodeInvalid, "re-entry not allowed for this event")
		}
		if !ticket.LastUsedAt.IsZero() {
			elapsed := now.Sub(ticket.LastUsedAt)
			if elapsed < e.Cooldown {
				wait := int(math.Ceil((e.Cooldown - elapsed).Seconds()))
				v := reject(CodeInvalid, fmt.Sprintf("re-entry cooldown active, wait %d seconds", wait))
				v.WaitSeconds = wait
				return v
			}
		}
	}

	reserved, err := reserve()
	if err != nil {
		return reject(CodeInternalError, "occupancy counter unavailable")
	}
	if !reserved {
		return reject(CodeCapacityFull, "venue is at capacity")
	}

	if ticketType.UsageLimit > 0 && ticket.UsedCount >= ticketType.UsageLimit {
		v := reject(CodeInvalid, "ticket usage limit reached")
		v.CapacityReserved = true
		return v
	}

	ticket.Status = models.TicketStatusIn
	ticket.UsedCount++
	ticket.LastUsedAt = now
	ticket.GateIn = gate.GateID
	ticket.UpdatedAt = now

	return Verdict{
		Code:             CodeOK,
		Message:          "entry granted",
		Ticket:           ticket,
		CapacityReserved: true,
	}
}

func (e *Engine) evaluateExit(ticket models.Ticket, gate *models.Gate, now time.Time) Verdict {
	if ticket.Status != models.TicketStatusIn {
		return Verdict{Code: CodeAlreadyOut, Message: "ticket is not inside", Ticket: ticket}
	}

	ticket.Status = models.TicketStatusOut
	ticket.LastUsedAt = now
	ticket.LastGateOut = gate.GateID
	ticket.UpdatedAt = now

	return Verdict{Code: CodeOK, Message: "exit recorded", Ticket: ticket}
}
