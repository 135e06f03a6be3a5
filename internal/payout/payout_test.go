package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"lotto/internal/models"
	"lotto/internal/registry"

	"github.com/shopspring/decimal"
)

type fakePayer struct {
	paid map[string]decimal.Decimal
	fail error
}

func (p *fakePayer) TransferOut(ctx context.Context, to string, amount decimal.Decimal) error {
	if p.fail != nil {
		return p.fail
	}
	if p.paid == nil {
		p.paid = make(map[string]decimal.Decimal)
	}
	p.paid[to] = p.paid[to].Add(amount)
	return nil
}

func drawnRound(closeAt time.Time) *models.Round {
	return &models.Round{
		ID:                1,
		State:             models.StateDrawn,
		PrizeDistribution: []uint32{5, 10, 35, 50},
		PrizePool:         decimal.NewFromInt(1000),
		CloseAt:           closeAt,
		WinningNumbers:    []uint32{1, 2, 3, 4},
		MaxRange:          20,
	}
}

func TestMatchCount(t *testing.T) {
	winning := []uint32{1, 2, 3, 4}
	cases := []struct {
		ticket []uint32
		want   int
	}{
		{[]uint32{1, 2, 3, 4}, 4},
		{[]uint32{0, 2, 3, 4}, 3},
		{[]uint32{0, 0, 3, 4}, 2},
		{[]uint32{0, 0, 0, 4}, 1},
		{[]uint32{0, 0, 0, 0}, 0},
		{[]uint32{1, 0, 3, 0}, 2},
		{[]uint32{4, 3, 2, 1}, 0},
	}
	for _, tc := range cases {
		if got := MatchCount(tc.ticket, winning); got != tc.want {
			t.Errorf("Expected MatchCount(%v) = %d, but got %d", tc.ticket, tc.want, got)
		}
	}
}

func TestAmount(t *testing.T) {
	round := drawnRound(time.Now())
	want := []int64{0, 50, 100, 350, 500}
	for k, w := range want {
		if got := Amount(round, k); !got.Equal(decimal.NewFromInt(w)) {
			t.Errorf("Expected payout %d for %d matches, but got %s", w, k, got)
		}
	}
}

func TestClaim(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	setup := func(numbers ...[]uint32) (*registry.TicketRegistry, *fakePayer, *Resolver, []uint64) {
		reg := registry.NewTicketRegistry()
		ids, _, err := reg.BatchMint("alice", 1, uint64(len(numbers)), numbers, 4)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		payer := &fakePayer{}
		return reg, payer, NewResolver(reg, payer), ids
	}

	t.Run("full match pays top tier once", func(t *testing.T) {
		_, payer, res, ids := setup([]uint32{1, 2, 3, 4})
		round := drawnRound(now)

		got, err := res.Claim(ctx, round, ids[0], "alice", now)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if got.MatchCount != 4 || !got.Amount.Equal(decimal.NewFromInt(500)) {
			t.Errorf("Expected 4 matches paying 500, but got %+v", got)
		}
		if !payer.paid["alice"].Equal(decimal.NewFromInt(500)) {
			t.Errorf("Expected alice to be paid 500, but got %s", payer.paid["alice"])
		}

		if _, err := res.Claim(ctx, round, ids[0], "alice", now); !errors.Is(err, models.ErrClaimAlreadyClaimed) {
			t.Fatalf("Expected ErrClaimAlreadyClaimed, but got %v", err)
		}
		if !payer.paid["alice"].Equal(decimal.NewFromInt(500)) {
			t.Errorf("Expected no second payment, but got %s", payer.paid["alice"])
		}
	})

	t.Run("zero match succeeds and marks claimed", func(t *testing.T) {
		reg, payer, res, ids := setup([]uint32{5, 6, 7, 8})
		got, err := res.Claim(ctx, drawnRound(now), ids[0], "alice", now)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if got.MatchCount != 0 || !got.Amount.IsZero() {
			t.Errorf("Expected zero payout, but got %+v", got)
		}
		if len(payer.paid) != 0 {
			t.Errorf("Expected no transfer, but got %v", payer.paid)
		}
		ticket, _ := reg.Ticket(ids[0])
		if !ticket.Claimed {
			t.Error("Expected ticket to be marked claimed")
		}
	})

	t.Run("ordered rejections", func(t *testing.T) {
		_, _, res, ids := setup([]uint32{1, 2, 3, 4})

		if _, err := res.Claim(ctx, drawnRound(now), ids[0], "mallory", now); !errors.Is(err, models.ErrClaimNotOwner) {
			t.Errorf("Expected ErrClaimNotOwner, but got %v", err)
		}

		other := drawnRound(now)
		other.ID = 2
		if _, err := res.Claim(ctx, other, ids[0], "alice", now); !errors.Is(err, models.ErrClaimWrongRound) {
			t.Errorf("Expected ErrClaimWrongRound, but got %v", err)
		}

		// not closed and not drawn: timing is checked first
		early := drawnRound(now.Add(time.Hour))
		early.State = models.StateOpen
		if _, err := res.Claim(ctx, early, ids[0], "alice", now); !errors.Is(err, models.ErrClaimTooEarly) {
			t.Errorf("Expected ErrClaimTooEarly, but got %v", err)
		}

		waiting := drawnRound(now)
		waiting.State = models.StateAwaitingRandomness
		if _, err := res.Claim(ctx, waiting, ids[0], "alice", now); !errors.Is(err, models.ErrClaimBeforeDraw) {
			t.Errorf("Expected ErrClaimBeforeDraw, but got %v", err)
		}

		if _, err := res.Claim(ctx, drawnRound(now), 42, "alice", now); !errors.Is(err, models.ErrTicketNotFound) {
			t.Errorf("Expected ErrTicketNotFound, but got %v", err)
		}
	})

	t.Run("out of range digits rejected at claim", func(t *testing.T) {
		reg, _, res, ids := setup([]uint32{1, 2, 3, 21})
		if _, err := res.Claim(ctx, drawnRound(now), ids[0], "alice", now); !errors.Is(err, models.ErrNumbersOutOfRange) {
			t.Fatalf("Expected ErrNumbersOutOfRange, but got %v", err)
		}
		ticket, _ := reg.Ticket(ids[0])
		if ticket.Claimed {
			t.Error("Expected ticket to stay unclaimed")
		}
	})

	t.Run("failed transfer reverts claim", func(t *testing.T) {
		reg, payer, res, ids := setup([]uint32{1, 2, 3, 4})
		payer.fail = errors.New("insufficient custody balance")

		_, err := res.Claim(ctx, drawnRound(now), ids[0], "alice", now)
		if !errors.Is(err, models.ErrPayment) {
			t.Fatalf("Expected ErrPayment, but got %v", err)
		}
		ticket, _ := reg.Ticket(ids[0])
		if ticket.Claimed {
			t.Error("Expected ticket to stay unclaimed after failed payment")
		}
	})
}

func TestBatchClaim(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	mint := func() (*registry.TicketRegistry, *fakePayer, *Resolver, []uint64) {
		reg := registry.NewTicketRegistry()
		ids, _, _ := reg.BatchMint("alice", 1, 3, [][]uint32{{1, 2, 3, 4}, {1, 2, 9, 9}, {9, 9, 9, 9}}, 4)
		payer := &fakePayer{}
		return reg, payer, NewResolver(reg, payer), ids
	}

	t.Run("pays the sum once", func(t *testing.T) {
		reg, payer, res, ids := mint()
		results, total, err := res.BatchClaim(ctx, drawnRound(now), ids, "alice", now)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("Expected 3 results, but got %d", len(results))
		}
		if !total.Equal(decimal.NewFromInt(600)) {
			t.Errorf("Expected total 600, but got %s", total)
		}
		if !payer.paid["alice"].Equal(decimal.NewFromInt(600)) {
			t.Errorf("Expected alice to be paid 600, but got %s", payer.paid["alice"])
		}
		for _, id := range ids {
			if ticket, _ := reg.Ticket(id); !ticket.Claimed {
				t.Errorf("Expected ticket %d to be claimed", id)
			}
		}
	})

	t.Run("one bad ticket rejects all", func(t *testing.T) {
		reg, payer, res, ids := mint()
		_ = reg.MarkClaimed(ids[2])
		_, _, err := res.BatchClaim(ctx, drawnRound(now), ids, "alice", now)
		if !errors.Is(err, models.ErrClaimAlreadyClaimed) {
			t.Fatalf("Expected ErrClaimAlreadyClaimed, but got %v", err)
		}
		if len(payer.paid) != 0 {
			t.Errorf("Expected no transfer, but got %v", payer.paid)
		}
		if ticket, _ := reg.Ticket(ids[0]); ticket.Claimed {
			t.Error("Expected first ticket to stay unclaimed")
		}
	})

	t.Run("duplicate ids rejected", func(t *testing.T) {
		_, _, res, ids := mint()
		_, _, err := res.BatchClaim(ctx, drawnRound(now), []uint64{ids[0], ids[0]}, "alice", now)
		if !errors.Is(err, models.ErrClaimAlreadyClaimed) {
			t.Fatalf("Expected ErrClaimAlreadyClaimed, but got %v", err)
		}
	})

	t.Run("failed transfer reverts every mark", func(t *testing.T) {
		reg, payer, res, ids := mint()
		payer.fail = errors.New("ledger offline")
		if _, _, err := res.BatchClaim(ctx, drawnRound(now), ids, "alice", now); !errors.Is(err, models.ErrPayment) {
			t.Fatalf("Expected ErrPayment, but got %v", err)
		}
		for _, id := range ids {
			if ticket, _ := reg.Ticket(id); ticket.Claimed {
				t.Errorf("Expected ticket %d to stay unclaimed", id)
			}
		}
	})
}
