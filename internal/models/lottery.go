package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundState is the lifecycle position of a round.
type RoundState string

const (
	StateOpen               RoundState = "open"
	StateAwaitingRandomness RoundState = "awaiting_randomness"
	StateDrawn              RoundState = "drawn"
)

// Round represents a single lottery instance with its own price, pool,
// sale window and winning numbers. Rounds are never deleted.
type Round struct {
	ID                  uint64          `json:"id"`
	State               RoundState      `json:"state"`
	PrizeDistribution   []uint32        `json:"prizeDistribution"`
	PrizePool           decimal.Decimal `json:"prizePool"`
	CostPerTicket       decimal.Decimal `json:"costPerTicket"`
	OpenAt              time.Time       `json:"openAt"`
	CloseAt             time.Time       `json:"closeAt"`
	WinningNumbers      []uint32        `json:"winningNumbers"`
	RandomnessRequestID string          `json:"randomnessRequestId,omitempty"`
	MaxRange            uint32          `json:"maxRange"`
}

// Size is the number of digits on every ticket of the round.
func (r *Round) Size() int {
	return len(r.PrizeDistribution)
}

// Clone returns a deep copy safe to hand out of a locked section.
func (r *Round) Clone() *Round {
	c := *r
	c.PrizeDistribution = append([]uint32(nil), r.PrizeDistribution...)
	c.WinningNumbers = append([]uint32(nil), r.WinningNumbers...)
	return &c
}

// RoundParams carries the operator input for opening a round.
type RoundParams struct {
	PrizeDistribution []uint32        `json:"prizeDistribution"`
	PrizePool         decimal.Decimal `json:"prizePool"`
	CostPerTicket     decimal.Decimal `json:"costPerTicket"`
	OpenAt            time.Time       `json:"openAt"`
	CloseAt           time.Time       `json:"closeAt"`
}

// Ticket is one purchased combination of digits. Claimed flips at most once.
type Ticket struct {
	ID      uint64   `json:"id"`
	RoundID uint64   `json:"roundId"`
	Owner   string   `json:"owner"`
	Numbers []uint32 `json:"numbers"`
	Claimed bool     `json:"claimed"`
}

// UserRoundBatch records one batch-buy call. The tickets of a batch have
// contiguous ids starting at FirstTicketID.
type UserRoundBatch struct {
	Owner         string `json:"owner"`
	RoundID       uint64 `json:"roundId"`
	BatchIndex    int    `json:"batchIndex"`
	FirstTicketID uint64 `json:"firstTicketId"`
	Count         uint64 `json:"count"`
}

// TicketIDs expands the batch range.
func (b UserRoundBatch) TicketIDs() []uint64 {
	ids := make([]uint64, 0, b.Count)
	for i := uint64(0); i < b.Count; i++ {
		ids = append(ids, b.FirstTicketID+i)
	}
	return ids
}

// BucketConfig maps ticket-count ranges to bulk discount percentages.
type BucketConfig struct {
	BucketOneMax  uint64 `json:"bucketOneMax" yaml:"bucket_one_max"`
	BucketTwoMax  uint64 `json:"bucketTwoMax" yaml:"bucket_two_max"`
	DiscountOne   uint32 `json:"discountOne" yaml:"discount_one"`
	DiscountTwo   uint32 `json:"discountTwo" yaml:"discount_two"`
	DiscountThree uint32 `json:"discountThree" yaml:"discount_three"`
}

// Quote is the priced outcome of buying a number of tickets.
type Quote struct {
	Gross    decimal.Decimal `json:"gross"`
	Discount decimal.Decimal `json:"discount"`
	Net      decimal.Decimal `json:"net"`
}

// Purchase is returned to a buyer after a successful batch buy.
type Purchase struct {
	RoundID    uint64   `json:"roundId"`
	BatchIndex int      `json:"batchIndex"`
	TicketIDs  []uint64 `json:"ticketIds"`
	Quote      Quote    `json:"quote"`
}

// ClaimResult reports what a claim paid.
type ClaimResult struct {
	TicketID   uint64          `json:"ticketId"`
	MatchCount int             `json:"matchCount"`
	Amount     decimal.Decimal `json:"amount"`
}

// Settings is the admin-mutable global configuration.
type Settings struct {
	LotterySize uint32       `json:"lotterySize"`
	MaxRange    uint32       `json:"maxRange"`
	Buckets     BucketConfig `json:"buckets"`
}
