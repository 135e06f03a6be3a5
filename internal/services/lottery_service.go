package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"lotto/internal/auth"
	"lotto/internal/draw"
	"lotto/internal/events"
	"lotto/internal/ledger"
	"lotto/internal/metrics"
	"lotto/internal/models"
	"lotto/internal/payout"
	"lotto/internal/pricing"
	"lotto/internal/registry"

	"github.com/google/logger"
	"github.com/shopspring/decimal"
)

// Options wires a LotteryService to its collaborators.
type Options struct {
	Settings models.Settings
	Oracle   draw.Oracle
	Ledger   ledger.Ledger
	Auth     auth.Authorization
	Bus      *events.Bus
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// LotteryService owns every round and serializes all mutations on them.
type LotteryService struct {
	mu       sync.RWMutex
	rounds   []*models.Round // rounds[i] has id i+1
	settings models.Settings

	tickets  *registry.TicketRegistry
	engine   *draw.Engine
	resolver *payout.Resolver
	ledger   ledger.Ledger
	auth     auth.Authorization
	bus      *events.Bus
	now      func() time.Time
}

// NewLotteryService creates and initializes a new LotteryService.
func NewLotteryService(opts Options) *LotteryService {
	tickets := registry.NewTicketRegistry()
	s := &LotteryService{
		rounds:   make([]*models.Round, 0),
		settings: opts.Settings,
		tickets:  tickets,
		engine:   draw.NewEngine(opts.Oracle),
		resolver: payout.NewResolver(tickets, opts.Ledger),
		ledger:   opts.Ledger,
		auth:     opts.Auth,
		bus:      opts.Bus,
		now:      opts.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	return s
}

func (s *LotteryService) requireAdmin(caller string) error {
	if s.auth == nil || !s.auth.IsAdmin(caller) {
		return models.ErrNotAdmin
	}
	return nil
}

// round must be called with s.mu held.
func (s *LotteryService) round(id uint64) (*models.Round, error) {
	if id == 0 || id > uint64(len(s.rounds)) {
		return nil, models.ErrRoundNotFound
	}
	return s.rounds[id-1], nil
}

// CreateRound opens a new round. Distribution must have one entry per
// digit of the current lottery size and sum to 100.
func (s *LotteryService) CreateRound(ctx context.Context, caller string, p models.RoundParams) (*models.Round, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := validateRound(p, s.settings.LotterySize); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	size := len(p.PrizeDistribution)
	round := &models.Round{
		ID:                uint64(len(s.rounds)) + 1,
		State:             models.StateOpen,
		PrizeDistribution: append([]uint32(nil), p.PrizeDistribution...),
		PrizePool:         p.PrizePool,
		CostPerTicket:     p.CostPerTicket,
		OpenAt:            p.OpenAt,
		CloseAt:           p.CloseAt,
		WinningNumbers:    draw.Blank(size),
		MaxRange:          s.settings.MaxRange,
	}
	s.rounds = append(s.rounds, round)
	out := round.Clone()
	s.mu.Unlock()

	logger.Infof("round %d created by %s: pool %s, cost %s, window %s - %s", out.ID, caller, out.PrizePool, out.CostPerTicket, out.OpenAt.Format(time.RFC3339), out.CloseAt.Format(time.RFC3339))
	s.bus.Publish(ctx, models.Event{Kind: models.EventRoundCreated, RoundID: out.ID, OccurredAt: s.now(), Round: out.Clone()})
	return out, nil
}

func validateRound(p models.RoundParams, size uint32) error {
	if uint32(len(p.PrizeDistribution)) != size {
		return models.ErrInvalidDistribution
	}
	var sum uint64
	for _, pct := range p.PrizeDistribution {
		sum += uint64(pct)
	}
	if sum != 100 {
		return models.ErrInvalidDistribution
	}
	if !wholeUnits(p.PrizePool) || !wholeUnits(p.CostPerTicket) {
		return models.ErrInvalidPriceOrCost
	}
	if p.PrizePool.GreaterThan(pricing.MaxAmount) || p.CostPerTicket.GreaterThan(pricing.MaxAmount) {
		return models.ErrOverflow
	}
	if !p.OpenAt.Before(p.CloseAt) {
		return models.ErrInvalidTimestamp
	}
	return nil
}

// wholeUnits reports whether amount is a positive whole number of base units.
func wholeUnits(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(0))
}

// BuyTickets charges caller the discounted price of count tickets and
// mints them. Each row of numbers is one ticket of the round's size.
func (s *LotteryService) BuyTickets(ctx context.Context, caller string, roundID uint64, count uint64, numbers [][]uint32) (models.Purchase, error) {
	s.mu.Lock()
	purchase, err := s.buyLocked(ctx, caller, roundID, count, numbers)
	s.mu.Unlock()
	if err != nil {
		metrics.RecordBatch(false, 0)
		return models.Purchase{}, err
	}
	metrics.RecordBatch(true, len(purchase.TicketIDs))

	net := purchase.Quote.Net
	logger.Infof("round %d: %s bought %d tickets for %s (batch %d)", roundID, caller, count, net, purchase.BatchIndex)
	s.bus.Publish(ctx, models.Event{
		Kind:       models.EventBatchMinted,
		RoundID:    roundID,
		OccurredAt: s.now(),
		Owner:      caller,
		TicketIDs:  purchase.TicketIDs,
		Numbers:    numbers,
		NetCost:    &net,
	})
	return purchase, nil
}

func (s *LotteryService) buyLocked(ctx context.Context, caller string, roundID uint64, count uint64, numbers [][]uint32) (models.Purchase, error) {
	round, err := s.round(roundID)
	if err != nil {
		return models.Purchase{}, err
	}
	now := s.now()
	if round.State != models.StateOpen || now.Before(round.OpenAt) || !now.Before(round.CloseAt) {
		return models.Purchase{}, models.ErrSaleClosed
	}
	quote, err := pricing.Quote(count, round.CostPerTicket, s.settings.Buckets)
	if err != nil {
		return models.Purchase{}, err
	}
	if uint64(len(numbers)) != count {
		return models.Purchase{}, models.ErrInvalidTicketNumbers
	}
	for _, row := range numbers {
		if len(row) != round.Size() {
			return models.Purchase{}, models.ErrInvalidTicketNumbers
		}
	}

	if quote.Net.IsPositive() {
		if err := s.ledger.TransferIn(ctx, caller, quote.Net); err != nil {
			return models.Purchase{}, models.PaymentError(err, "transfer in")
		}
	}
	ids, index, err := s.tickets.BatchMint(caller, roundID, count, numbers, round.Size())
	if err != nil {
		if quote.Net.IsPositive() {
			if rerr := s.ledger.TransferOut(ctx, caller, quote.Net); rerr != nil {
				logger.Errorf("round %d: refund of %s to %s failed: %v", roundID, quote.Net, caller, rerr)
			}
		}
		return models.Purchase{}, err
	}
	return models.Purchase{RoundID: roundID, BatchIndex: index, TicketIDs: ids, Quote: quote}, nil
}

// RequestDraw asks the oracle for the round's randomness. The winning
// numbers arrive later through FulfillRandomness.
func (s *LotteryService) RequestDraw(ctx context.Context, caller string, roundID uint64, seed string) (string, error) {
	if err := s.requireAdmin(caller); err != nil {
		return "", err
	}

	s.mu.Lock()
	round, err := s.round(roundID)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	requestID, err := s.engine.Request(ctx, round, seed, s.now())
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	// Fulfillment takes s.mu, so RoundDrawn always follows this event.
	s.bus.Publish(ctx, models.Event{Kind: models.EventRandomnessRequested, RoundID: roundID, OccurredAt: s.now(), RequestID: requestID})
	s.mu.Unlock()

	logger.Infof("round %d: randomness requested by %s, request %s", roundID, caller, requestID)
	return requestID, nil
}

// FulfillRandomness implements oracle.Fulfiller. Only the first answer to
// a round's outstanding request is applied.
func (s *LotteryService) FulfillRandomness(ctx context.Context, requestID string, value *big.Int) bool {
	s.mu.Lock()
	roundID, ok := s.engine.Pending(requestID)
	if !ok {
		s.mu.Unlock()
		logger.Warningf("dropping fulfillment for unknown request %s", requestID)
		metrics.RecordDraw("fulfill", "ignored")
		return false
	}
	round, err := s.round(roundID)
	if err != nil || !s.engine.Fulfill(round, requestID, value) {
		s.mu.Unlock()
		return false
	}
	winning := append([]uint32(nil), round.WinningNumbers...)
	s.mu.Unlock()

	logger.Infof("round %d drawn: %v", roundID, winning)
	s.bus.Publish(ctx, models.Event{Kind: models.EventRoundDrawn, RoundID: roundID, OccurredAt: s.now(), RequestID: requestID, WinningNumbers: winning})
	return true
}

// Claim pays caller for one ticket of a drawn round.
func (s *LotteryService) Claim(ctx context.Context, caller string, roundID, ticketID uint64) (models.ClaimResult, error) {
	s.mu.Lock()
	round, err := s.round(roundID)
	if err != nil {
		s.mu.Unlock()
		return models.ClaimResult{}, err
	}
	res, err := s.resolver.Claim(ctx, round, ticketID, caller, s.now())
	s.mu.Unlock()
	if err != nil {
		return models.ClaimResult{}, err
	}

	logger.Infof("round %d: ticket %d claimed by %s, %d matches, paid %s", roundID, ticketID, caller, res.MatchCount, res.Amount)
	s.bus.Publish(ctx, claimedEvent(roundID, res, s.now()))
	return res, nil
}

// BatchClaim claims every listed ticket or none of them.
func (s *LotteryService) BatchClaim(ctx context.Context, caller string, roundID uint64, ticketIDs []uint64) ([]models.ClaimResult, decimal.Decimal, error) {
	s.mu.Lock()
	round, err := s.round(roundID)
	if err != nil {
		s.mu.Unlock()
		return nil, decimal.Zero, err
	}
	results, total, err := s.resolver.BatchClaim(ctx, round, ticketIDs, caller, s.now())
	s.mu.Unlock()
	if err != nil {
		return nil, decimal.Zero, err
	}

	logger.Infof("round %d: %d tickets claimed by %s, paid %s", roundID, len(results), caller, total)
	now := s.now()
	evts := make([]models.Event, 0, len(results))
	for _, res := range results {
		evts = append(evts, claimedEvent(roundID, res, now))
	}
	s.bus.Publish(ctx, evts...)
	return results, total, nil
}

func claimedEvent(roundID uint64, res models.ClaimResult, at time.Time) models.Event {
	amount := res.Amount
	return models.Event{Kind: models.EventTicketClaimed, RoundID: roundID, OccurredAt: at, TicketID: res.TicketID, Amount: &amount}
}

// TransferTicket hands an unclaimed ticket owned by caller to another owner.
func (s *LotteryService) TransferTicket(ctx context.Context, caller string, ticketID uint64, to string) error {
	if to == "" {
		return models.ErrInvalidRecipient
	}
	s.mu.Lock()
	t, err := s.tickets.Ticket(ticketID)
	if err == nil {
		err = s.tickets.Transfer(ticketID, caller, to)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	logger.Infof("ticket %d transferred from %s to %s", ticketID, caller, to)
	s.bus.Publish(ctx, models.Event{Kind: models.EventTicketTransferred, RoundID: t.RoundID, OccurredAt: s.now(), TicketID: ticketID, Owner: caller, To: to})
	return nil
}

// UpdateBuckets replaces the bulk discount table used for future purchases.
func (s *LotteryService) UpdateBuckets(ctx context.Context, caller string, next models.BucketConfig) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	buckets, err := pricing.UpdateBuckets(s.settings.Buckets, next)
	if err == nil {
		s.settings.Buckets = buckets
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	logger.Infof("buckets updated by %s: %+v", caller, buckets)
	s.configUpdated(ctx, "buckets")
	return nil
}

// UpdateLotterySize sets the number of digits for rounds created from now on.
func (s *LotteryService) UpdateLotterySize(ctx context.Context, caller string, n uint32) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if n == 0 {
		return models.ErrInvalidLotterySize
	}
	s.mu.Lock()
	if n == s.settings.LotterySize {
		s.mu.Unlock()
		return models.ErrDuplicateConfig
	}
	s.settings.LotterySize = n
	s.mu.Unlock()

	logger.Infof("lottery size set to %d by %s", n, caller)
	s.configUpdated(ctx, "lottery_size")
	return nil
}

// UpdateMaxRange sets the digit range for rounds created from now on.
// Existing rounds keep the range they were created with.
func (s *LotteryService) UpdateMaxRange(ctx context.Context, caller string, n uint32) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if n == 0 {
		return models.ErrInvalidMaxRange
	}
	s.mu.Lock()
	if n == s.settings.MaxRange {
		s.mu.Unlock()
		return models.ErrDuplicateConfig
	}
	s.settings.MaxRange = n
	s.mu.Unlock()

	logger.Infof("max range set to %d by %s", n, caller)
	s.configUpdated(ctx, "max_range")
	return nil
}

func (s *LotteryService) configUpdated(ctx context.Context, setting string) {
	s.bus.Publish(ctx, models.Event{Kind: models.EventConfigUpdated, OccurredAt: s.now(), Setting: setting})
}

// WithdrawExcess moves amount out of custody to the calling admin.
func (s *LotteryService) WithdrawExcess(ctx context.Context, caller string, amount decimal.Decimal) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if !wholeUnits(amount) {
		return models.ErrInvalidAmount
	}
	if amount.GreaterThan(pricing.MaxAmount) {
		return models.ErrOverflow
	}
	s.mu.Lock()
	err := s.ledger.TransferOut(ctx, caller, amount)
	s.mu.Unlock()
	if err != nil {
		return models.PaymentError(err, "withdraw")
	}

	logger.Infof("%s withdrew %s from custody", caller, amount)
	a := amount
	s.bus.Publish(ctx, models.Event{Kind: models.EventFundsWithdrawn, OccurredAt: s.now(), To: caller, Amount: &a})
	return nil
}

// RoundInfo returns a snapshot of a round.
func (s *LotteryService) RoundInfo(roundID uint64) (*models.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, err := s.round(roundID)
	if err != nil {
		return nil, err
	}
	return round.Clone(), nil
}

// RoundCount is the id of the latest round, 0 when none exists.
func (s *LotteryService) RoundCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.rounds))
}

// Quote prices count tickets of a round under the current discount table.
func (s *LotteryService) Quote(roundID uint64, count uint64) (models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, err := s.round(roundID)
	if err != nil {
		return models.Quote{}, err
	}
	return pricing.Quote(count, round.CostPerTicket, s.settings.Buckets)
}

// QuoteNet is the amount a buyer pays for count tickets.
func (s *LotteryService) QuoteNet(roundID uint64, count uint64) (decimal.Decimal, error) {
	q, err := s.Quote(roundID, count)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Net, nil
}

// UserTickets lists the ids owner bought in a round.
func (s *LotteryService) UserTickets(roundID uint64, owner string) ([]uint64, error) {
	if _, err := s.RoundInfo(roundID); err != nil {
		return nil, err
	}
	return s.tickets.UserTickets(roundID, owner), nil
}

// UserTicketsPaginated returns one window of UserTickets and the total count.
func (s *LotteryService) UserTicketsPaginated(owner string, roundID uint64, offset, limit uint64) ([]uint64, uint64, error) {
	if _, err := s.RoundInfo(roundID); err != nil {
		return nil, 0, err
	}
	return s.tickets.UserTicketsPaginated(owner, roundID, offset, limit), s.tickets.UserTicketCount(roundID, owner), nil
}

// UserBatchCount is the number of purchases owner made in a round.
func (s *LotteryService) UserBatchCount(owner string, roundID uint64) (int, error) {
	if _, err := s.RoundInfo(roundID); err != nil {
		return 0, err
	}
	return s.tickets.UserBatchCount(owner, roundID), nil
}

// UserBatch returns one purchase record.
func (s *LotteryService) UserBatch(owner string, roundID uint64, index int) (models.UserRoundBatch, error) {
	if _, err := s.RoundInfo(roundID); err != nil {
		return models.UserRoundBatch{}, err
	}
	return s.tickets.Batch(owner, roundID, index)
}

// Ticket returns a ticket by id.
func (s *LotteryService) Ticket(id uint64) (models.Ticket, error) {
	return s.tickets.Ticket(id)
}

// Settings returns the current global configuration.
func (s *LotteryService) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Balance reports a holder's ledger balance.
func (s *LotteryService) Balance(ctx context.Context, holder string) (decimal.Decimal, error) {
	return s.ledger.BalanceOf(ctx, holder)
}
