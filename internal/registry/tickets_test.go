package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"lotto/internal/models"
)

func rows(n int, size int) [][]uint32 {
	out := make([][]uint32, n)
	for i := range out {
		row := make([]uint32, size)
		for j := range row {
			row[j] = uint32((i+j)%20 + 1)
		}
		out[i] = row
	}
	return out
}

func TestBatchMint(t *testing.T) {
	reg := NewTicketRegistry()

	t.Run("ids are global and sequential", func(t *testing.T) {
		ids, index, err := reg.BatchMint("alice", 1, 3, rows(3, 4), 4)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if !reflect.DeepEqual(ids, []uint64{1, 2, 3}) {
			t.Errorf("Expected ids [1 2 3], but got %v", ids)
		}
		if index != 0 {
			t.Errorf("Expected batch index 0, but got %d", index)
		}

		ids, _, err = reg.BatchMint("bob", 2, 2, rows(2, 4), 4)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if !reflect.DeepEqual(ids, []uint64{4, 5}) {
			t.Errorf("Expected ids [4 5], but got %v", ids)
		}
	})

	t.Run("count must match rows", func(t *testing.T) {
		_, _, err := reg.BatchMint("alice", 1, 10, rows(9, 4), 4)
		if !errors.Is(err, models.ErrInvalidTicketNumbers) {
			t.Fatalf("Expected ErrInvalidTicketNumbers, but got %v", err)
		}
	})

	t.Run("rows must have lottery size digits", func(t *testing.T) {
		_, _, err := reg.BatchMint("alice", 1, 1, [][]uint32{{1, 2, 3}}, 4)
		if !errors.Is(err, models.ErrInvalidTicketNumbers) {
			t.Fatalf("Expected ErrInvalidTicketNumbers, but got %v", err)
		}
		if reg.Count() != 5 {
			t.Errorf("Expected 5 tickets after rejected mints, but got %d", reg.Count())
		}
	})

	t.Run("out of range digits are accepted", func(t *testing.T) {
		ids, _, err := reg.BatchMint("alice", 1, 1, [][]uint32{{0, 99, 3, 4}}, 4)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		ticket, _ := reg.Ticket(ids[0])
		if !reflect.DeepEqual(ticket.Numbers, []uint32{0, 99, 3, 4}) {
			t.Errorf("Expected numbers to be stored as given, but got %v", ticket.Numbers)
		}
	})
}

func TestPagination(t *testing.T) {
	reg := NewTicketRegistry()
	for _, n := range []int{50, 7, 1, 42} {
		if _, _, err := reg.BatchMint("buyer", 1, uint64(n), rows(n, 4), 4); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		// interleave another buyer so ids are not contiguous across batches
		if _, _, err := reg.BatchMint("other", 1, 2, rows(2, 4), 4); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
	}

	all := reg.UserTickets(1, "buyer")
	if len(all) != 100 {
		t.Fatalf("Expected 100 tickets, but got %d", len(all))
	}
	if reg.UserTicketCount(1, "buyer") != 100 {
		t.Errorf("Expected count 100, but got %d", reg.UserTicketCount(1, "buyer"))
	}

	for _, limit := range []uint64{1, 3, 7, 50, 64, 100, 1000} {
		var joined []uint64
		for offset := uint64(0); offset < 100; offset += limit {
			joined = append(joined, reg.UserTicketsPaginated("buyer", 1, offset, limit)...)
		}
		if !reflect.DeepEqual(joined, all) {
			t.Errorf("Expected windows of %d to reproduce the full list", limit)
		}
	}

	if got := reg.UserTicketsPaginated("buyer", 1, 100, 10); len(got) != 0 {
		t.Errorf("Expected empty window past the end, but got %v", got)
	}
	if got := reg.UserTicketsPaginated("nobody", 1, 0, 10); len(got) != 0 {
		t.Errorf("Expected empty window for unknown owner, but got %v", got)
	}

	if reg.UserBatchCount("buyer", 1) != 4 {
		t.Errorf("Expected 4 batches, but got %d", reg.UserBatchCount("buyer", 1))
	}
	b, err := reg.Batch("buyer", 1, 1)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if b.Count != 7 || b.FirstTicketID != 53 || b.BatchIndex != 1 {
		t.Errorf("Expected second batch of 7 starting at 53, but got %+v", b)
	}
	if _, err := reg.Batch("buyer", 1, 4); !errors.Is(err, models.ErrBatchNotFound) {
		t.Errorf("Expected ErrBatchNotFound, but got %v", err)
	}
}

func TestMarkClaimed(t *testing.T) {
	reg := NewTicketRegistry()
	ids, _, _ := reg.BatchMint("alice", 1, 1, rows(1, 4), 4)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.MarkClaimed(ids[0]) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("Expected exactly one successful claim, but got %d", wins)
	}
	if err := reg.MarkClaimed(ids[0]); !errors.Is(err, models.ErrClaimAlreadyClaimed) {
		t.Errorf("Expected ErrClaimAlreadyClaimed, but got %v", err)
	}

	reg.UnmarkClaimed(ids[0])
	if err := reg.MarkClaimed(ids[0]); err != nil {
		t.Errorf("Expected claim after revert to succeed, but got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	reg := NewTicketRegistry()
	ids, _, _ := reg.BatchMint("alice", 1, 2, rows(2, 4), 4)

	if err := reg.Transfer(ids[0], "bob", "carol"); !errors.Is(err, models.ErrClaimNotOwner) {
		t.Fatalf("Expected ErrClaimNotOwner, but got %v", err)
	}
	if err := reg.Transfer(ids[0], "alice", "bob"); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	ticket, _ := reg.Ticket(ids[0])
	if ticket.Owner != "bob" {
		t.Errorf("Expected owner bob, but got %s", ticket.Owner)
	}

	_ = reg.MarkClaimed(ids[1])
	if err := reg.Transfer(ids[1], "alice", "bob"); !errors.Is(err, models.ErrClaimAlreadyClaimed) {
		t.Errorf("Expected ErrClaimAlreadyClaimed, but got %v", err)
	}
	if _, err := reg.Ticket(99); !errors.Is(err, models.ErrTicketNotFound) {
		t.Errorf("Expected ErrTicketNotFound, but got %v", err)
	}
}
