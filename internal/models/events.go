package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names what happened.
type EventKind string

const (
	EventRoundCreated        EventKind = "round_created"
	EventBatchMinted         EventKind = "batch_minted"
	EventRandomnessRequested EventKind = "randomness_requested"
	EventRoundDrawn          EventKind = "round_drawn"
	EventTicketClaimed       EventKind = "ticket_claimed"
	EventTicketTransferred   EventKind = "ticket_transferred"
	EventConfigUpdated       EventKind = "config_updated"
	EventFundsWithdrawn      EventKind = "funds_withdrawn"
)

// Event is emitted after a mutation has been applied. Only the payload
// fields relevant to Kind are set.
type Event struct {
	Kind       EventKind `json:"kind"`
	RoundID    uint64    `json:"roundId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`

	Round          *Round           `json:"round,omitempty"`
	Owner          string           `json:"owner,omitempty"`
	To             string           `json:"to,omitempty"`
	TicketIDs      []uint64         `json:"ticketIds,omitempty"`
	Numbers        [][]uint32       `json:"numbers,omitempty"`
	NetCost        *decimal.Decimal `json:"netCost,omitempty"`
	RequestID      string           `json:"requestId,omitempty"`
	WinningNumbers []uint32         `json:"winningNumbers,omitempty"`
	TicketID       uint64           `json:"ticketId,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Setting        string           `json:"setting,omitempty"`
}
