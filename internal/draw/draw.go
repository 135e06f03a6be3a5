// Package draw runs the two-phase randomness protocol for rounds and turns
// one random value into a round's winning digits.
package draw

import (
	"context"
	"math/big"
	"sync"
	"time"

	"lotto/internal/metrics"
	"lotto/internal/models"

	"github.com/google/logger"
)

// Oracle issues randomness requests. The value arrives later through
// Engine.Fulfill.
type Oracle interface {
	RequestRandomness(ctx context.Context, seed string) (string, error)
}

// Engine tracks outstanding randomness requests and applies fulfillments
// to rounds. Callers serialize access to the rounds they pass in.
type Engine struct {
	oracle Oracle

	mu      sync.Mutex
	pending map[string]uint64 // requestID -> roundID
}

// NewEngine creates an Engine backed by oracle.
func NewEngine(oracle Oracle) *Engine {
	return &Engine{
		oracle:  oracle,
		pending: make(map[string]uint64),
	}
}

// Request asks the oracle for randomness for round and moves it to
// AwaitingRandomness. now must be at or after the round's close.
func (e *Engine) Request(ctx context.Context, round *models.Round, seed string, now time.Time) (string, error) {
	if now.Before(round.CloseAt) {
		return "", models.ErrDrawTooEarly
	}
	next, err := NextState(round.State, EvtRequest)
	if err != nil {
		return "", err
	}

	requestID, err := e.oracle.RequestRandomness(ctx, seed)
	if err != nil {
		metrics.RecordDraw("request", "fail")
		return "", models.OracleError(err)
	}

	e.mu.Lock()
	e.pending[requestID] = round.ID
	e.mu.Unlock()

	round.State = next
	round.RandomnessRequestID = requestID
	metrics.RecordDraw("request", "success")
	return requestID, nil
}

// Pending returns the round waiting on requestID.
func (e *Engine) Pending(requestID string) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.pending[requestID]
	return id, ok
}

// Fulfill applies value to round if round is waiting on exactly requestID.
// Stale, foreign and duplicate callbacks return false and change nothing.
func (e *Engine) Fulfill(round *models.Round, requestID string, value *big.Int) bool {
	if round == nil || value == nil {
		return false
	}
	if round.RandomnessRequestID != requestID {
		logger.Warningf("draw: dropping fulfillment %s for round %d, outstanding request is %q", requestID, round.ID, round.RandomnessRequestID)
		metrics.RecordDraw("fulfill", "ignored")
		return false
	}
	next, err := NextState(round.State, EvtFulfill)
	if err != nil {
		logger.Warningf("draw: dropping fulfillment %s for round %d: %v", requestID, round.ID, err)
		metrics.RecordDraw("fulfill", "ignored")
		return false
	}

	round.WinningNumbers = WinningNumbers(value, round.MaxRange, round.Size())
	round.State = next

	e.mu.Lock()
	delete(e.pending, requestID)
	e.mu.Unlock()

	metrics.RecordDraw("fulfill", "success")
	return true
}

// WinningNumbers splits value into size base-maxRange digits, least
// significant first, each shifted into [1, maxRange].
func WinningNumbers(value *big.Int, maxRange uint32, size int) []uint32 {
	out := make([]uint32, size)
	if maxRange == 0 {
		return out
	}
	base := new(big.Int).SetUint64(uint64(maxRange))
	pow := big.NewInt(1)
	next := new(big.Int)
	digit := new(big.Int)
	for i := 0; i < size; i++ {
		next.Mul(pow, base)
		digit.Mod(value, next)
		digit.Quo(digit, pow)
		out[i] = uint32(digit.Uint64()) + 1
		pow.Set(next)
	}
	return out
}

// Blank returns the all-zero winning-number sentinel for a round of size digits.
func Blank(size int) []uint32 {
	return make([]uint32, size)
}
