// Package payout scores tickets against winning numbers and settles claims.
package payout

import (
	"context"
	"time"

	"lotto/internal/metrics"
	"lotto/internal/models"
	"lotto/internal/pricing"

	"github.com/google/logger"
	"github.com/shopspring/decimal"
)

// Tickets is the part of the ticket registry a Resolver needs.
type Tickets interface {
	Ticket(id uint64) (models.Ticket, error)
	MarkClaimed(id uint64) error
	UnmarkClaimed(id uint64)
}

// Payer moves currency out of custody.
type Payer interface {
	TransferOut(ctx context.Context, to string, amount decimal.Decimal) error
}

// MatchCount counts the positions where ticket and winning hold the same digit.
func MatchCount(ticket, winning []uint32) int {
	n := len(ticket)
	if len(winning) < n {
		n = len(winning)
	}
	k := 0
	for i := 0; i < n; i++ {
		if ticket[i] == winning[i] {
			k++
		}
	}
	return k
}

// Amount is the prize for a ticket that matched k positions in round.
func Amount(round *models.Round, k int) decimal.Decimal {
	if k <= 0 || k > len(round.PrizeDistribution) {
		return decimal.Zero
	}
	return pricing.Percent(round.PrizePool, round.PrizeDistribution[k-1])
}

// InRange reports whether every digit lies in [1, maxRange].
func InRange(numbers []uint32, maxRange uint32) bool {
	for _, n := range numbers {
		if n < 1 || n > maxRange {
			return false
		}
	}
	return true
}

// Resolver settles claims. Callers serialize calls that touch the same round.
type Resolver struct {
	tickets Tickets
	payer   Payer
}

// NewResolver creates a Resolver.
func NewResolver(tickets Tickets, payer Payer) *Resolver {
	return &Resolver{tickets: tickets, payer: payer}
}

// check runs the ordered claim preconditions and scores the ticket.
func (r *Resolver) check(round *models.Round, ticketID uint64, caller string, now time.Time) (models.ClaimResult, error) {
	ticket, err := r.tickets.Ticket(ticketID)
	if err != nil {
		return models.ClaimResult{}, err
	}
	switch {
	case ticket.Owner != caller:
		return models.ClaimResult{}, models.ErrClaimNotOwner
	case ticket.RoundID != round.ID:
		return models.ClaimResult{}, models.ErrClaimWrongRound
	case now.Before(round.CloseAt):
		return models.ClaimResult{}, models.ErrClaimTooEarly
	case round.State != models.StateDrawn:
		return models.ClaimResult{}, models.ErrClaimBeforeDraw
	case ticket.Claimed:
		return models.ClaimResult{}, models.ErrClaimAlreadyClaimed
	case !InRange(ticket.Numbers, round.MaxRange):
		return models.ClaimResult{}, models.ErrNumbersOutOfRange
	}
	k := MatchCount(ticket.Numbers, round.WinningNumbers)
	return models.ClaimResult{TicketID: ticketID, MatchCount: k, Amount: Amount(round, k)}, nil
}

// Claim pays caller for one ticket of round. A ticket with no matches is
// marked claimed and pays zero.
func (r *Resolver) Claim(ctx context.Context, round *models.Round, ticketID uint64, caller string, now time.Time) (models.ClaimResult, error) {
	res, err := r.check(round, ticketID, caller, now)
	if err != nil {
		metrics.RecordClaim(models.CodeOf(err), -1, decimal.Zero)
		return res, err
	}
	if err := r.tickets.MarkClaimed(ticketID); err != nil {
		metrics.RecordClaim(models.CodeOf(err), -1, decimal.Zero)
		return models.ClaimResult{}, err
	}
	if res.Amount.IsPositive() {
		if err := r.payer.TransferOut(ctx, caller, res.Amount); err != nil {
			r.tickets.UnmarkClaimed(ticketID)
			logger.Errorf("payout: transfer of %s to %s for ticket %d failed: %v", res.Amount, caller, ticketID, err)
			metrics.RecordClaim(models.ErrPayment.Code, res.MatchCount, decimal.Zero)
			return models.ClaimResult{}, models.PaymentError(err, "transfer out")
		}
	}
	metrics.RecordClaim("success", res.MatchCount, res.Amount)
	return res, nil
}

// BatchClaim settles every ticket or none. The total is paid in one
// transfer; any failing ticket rejects the whole batch with its error.
func (r *Resolver) BatchClaim(ctx context.Context, round *models.Round, ticketIDs []uint64, caller string, now time.Time) ([]models.ClaimResult, decimal.Decimal, error) {
	if len(ticketIDs) == 0 {
		return nil, decimal.Zero, models.ErrInvalidQuantity
	}

	results := make([]models.ClaimResult, 0, len(ticketIDs))
	seen := make(map[uint64]struct{}, len(ticketIDs))
	total := decimal.Zero
	for _, id := range ticketIDs {
		if _, dup := seen[id]; dup {
			return nil, decimal.Zero, models.ErrClaimAlreadyClaimed
		}
		seen[id] = struct{}{}
		res, err := r.check(round, id, caller, now)
		if err != nil {
			metrics.RecordClaim(models.CodeOf(err), -1, decimal.Zero)
			return nil, decimal.Zero, err
		}
		results = append(results, res)
		total = total.Add(res.Amount)
	}

	marked := make([]uint64, 0, len(results))
	rollback := func() {
		for _, id := range marked {
			r.tickets.UnmarkClaimed(id)
		}
	}
	for _, res := range results {
		if err := r.tickets.MarkClaimed(res.TicketID); err != nil {
			rollback()
			return nil, decimal.Zero, err
		}
		marked = append(marked, res.TicketID)
	}

	if total.IsPositive() {
		if err := r.payer.TransferOut(ctx, caller, total); err != nil {
			rollback()
			logger.Errorf("payout: batch transfer of %s to %s failed: %v", total, caller, err)
			return nil, decimal.Zero, models.PaymentError(err, "transfer out")
		}
	}
	for _, res := range results {
		metrics.RecordClaim("success", res.MatchCount, res.Amount)
	}
	return results, total, nil
}
