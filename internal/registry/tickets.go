// Package registry holds ticket identity, ownership and claim state.
//
// Tickets live in a flat append-only arena indexed by id. Every batch-buy
// call adds one record to the (owner, round) batch index, so listing and
// paginating a buyer's tickets never scans the arena.
package registry

import (
	"sort"
	"sync"

	"lotto/internal/models"
)

type ownerRound struct {
	owner   string
	roundID uint64
}

// batchEntry is a batch plus the number of tickets in all earlier batches
// of the same (owner, round).
type batchEntry struct {
	models.UserRoundBatch
	offset uint64
}

// TicketRegistry manages tickets across all rounds.
type TicketRegistry struct {
	mu      sync.RWMutex
	tickets []models.Ticket // tickets[i] has id i+1
	batches map[ownerRound][]batchEntry
}

// NewTicketRegistry creates an empty registry. The first minted ticket gets id 1.
func NewTicketRegistry() *TicketRegistry {
	return &TicketRegistry{
		tickets: make([]models.Ticket, 0),
		batches: make(map[ownerRound][]batchEntry),
	}
}

// BatchMint allocates count sequential ticket ids for owner in roundID.
// Each row of numbers must have size digits. Digit values are not checked.
func (r *TicketRegistry) BatchMint(owner string, roundID uint64, count uint64, numbers [][]uint32, size int) ([]uint64, int, error) {
	if count == 0 || uint64(len(numbers)) != count {
		return nil, 0, models.ErrInvalidTicketNumbers
	}
	for _, row := range numbers {
		if len(row) != size {
			return nil, 0, models.ErrInvalidTicketNumbers
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	first := uint64(len(r.tickets)) + 1
	ids := make([]uint64, 0, count)
	for i, row := range numbers {
		id := first + uint64(i)
		r.tickets = append(r.tickets, models.Ticket{
			ID:      id,
			RoundID: roundID,
			Owner:   owner,
			Numbers: append([]uint32(nil), row...),
		})
		ids = append(ids, id)
	}

	key := ownerRound{owner, roundID}
	list := r.batches[key]
	var offset uint64
	if n := len(list); n > 0 {
		offset = list[n-1].offset + list[n-1].Count
	}
	index := len(list)
	r.batches[key] = append(list, batchEntry{
		UserRoundBatch: models.UserRoundBatch{
			Owner:         owner,
			RoundID:       roundID,
			BatchIndex:    index,
			FirstTicketID: first,
			Count:         count,
		},
		offset: offset,
	})
	return ids, index, nil
}

// Ticket returns a copy of the ticket with the given id.
func (r *TicketRegistry) Ticket(id uint64) (models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, err := r.get(id)
	if err != nil {
		return models.Ticket{}, err
	}
	c := *t
	c.Numbers = append([]uint32(nil), t.Numbers...)
	return c, nil
}

func (r *TicketRegistry) get(id uint64) (*models.Ticket, error) {
	if id == 0 || id > uint64(len(r.tickets)) {
		return nil, models.ErrTicketNotFound
	}
	return &r.tickets[id-1], nil
}

// Count is the number of tickets minted so far across all rounds.
func (r *TicketRegistry) Count() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.tickets))
}

// UserTickets lists every ticket id owner bought in roundID, in mint order.
func (r *TicketRegistry) UserTickets(roundID uint64, owner string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.batches[ownerRound{owner, roundID}]
	ids := make([]uint64, 0, userTotal(list))
	for _, b := range list {
		ids = append(ids, b.TicketIDs()...)
	}
	return ids
}

// UserTicketCount is the length of UserTickets without building it.
func (r *TicketRegistry) UserTicketCount(roundID uint64, owner string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return userTotal(r.batches[ownerRound{owner, roundID}])
}

func userTotal(list []batchEntry) uint64 {
	if len(list) == 0 {
		return 0
	}
	last := list[len(list)-1]
	return last.offset + last.Count
}

// UserTicketsPaginated returns at most limit ids of owner's tickets in
// roundID starting at offset. Consecutive windows concatenate to UserTickets.
func (r *TicketRegistry) UserTicketsPaginated(owner string, roundID uint64, offset, limit uint64) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.batches[ownerRound{owner, roundID}]
	total := userTotal(list)
	if limit == 0 || offset >= total {
		return []uint64{}
	}
	if limit > total-offset {
		limit = total - offset
	}

	// first batch whose range extends past offset
	i := sort.Search(len(list), func(i int) bool {
		return list[i].offset+list[i].Count > offset
	})

	ids := make([]uint64, 0, limit)
	for ; i < len(list) && uint64(len(ids)) < limit; i++ {
		b := list[i]
		skip := uint64(0)
		if offset > b.offset {
			skip = offset - b.offset
		}
		for j := skip; j < b.Count && uint64(len(ids)) < limit; j++ {
			ids = append(ids, b.FirstTicketID+j)
		}
	}
	return ids
}

// UserBatchCount is the number of batch-buy calls owner made in roundID.
func (r *TicketRegistry) UserBatchCount(owner string, roundID uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches[ownerRound{owner, roundID}])
}

// Batch returns one batch record.
func (r *TicketRegistry) Batch(owner string, roundID uint64, index int) (models.UserRoundBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.batches[ownerRound{owner, roundID}]
	if index < 0 || index >= len(list) {
		return models.UserRoundBatch{}, models.ErrBatchNotFound
	}
	return list[index].UserRoundBatch, nil
}

// Transfer moves an unclaimed ticket from one owner to another. Batch
// records keep describing the original purchase.
func (r *TicketRegistry) Transfer(id uint64, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return err
	}
	if t.Owner != from {
		return models.ErrClaimNotOwner
	}
	if t.Claimed {
		return models.ErrClaimAlreadyClaimed
	}
	t.Owner = to
	return nil
}

// MarkClaimed sets the claimed flag, failing if it was already set.
func (r *TicketRegistry) MarkClaimed(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return err
	}
	if t.Claimed {
		return models.ErrClaimAlreadyClaimed
	}
	t.Claimed = true
	return nil
}

// UnmarkClaimed reverts MarkClaimed when the payout that followed it failed.
func (r *TicketRegistry) UnmarkClaimed(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, err := r.get(id); err == nil {
		t.Claimed = false
	}
}
