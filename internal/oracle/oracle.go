// Package oracle provides randomness sources that answer requests
// asynchronously through a Fulfiller callback.
package oracle

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"math/big"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNoFulfiller is returned when no core is bound to receive randomness.
var ErrNoFulfiller = errors.New("oracle has no fulfiller")

// Fulfiller receives randomness. It reports whether the value was accepted.
type Fulfiller interface {
	FulfillRandomness(ctx context.Context, requestID string, value *big.Int) bool
}

// Request is a randomness request the oracle has issued.
type Request struct {
	ID          string    `json:"id"`
	Seed        string    `json:"seed"`
	RequestedAt time.Time `json:"requestedAt"`
	Answered    bool      `json:"answered"`
}

// Local derives each value as HMAC-SHA256(secret, requestID|seed) and
// delivers it from a separate goroutine after delay.
type Local struct {
	secret []byte
	delay  time.Duration

	mu        sync.Mutex
	fulfiller Fulfiller
	wg        sync.WaitGroup
}

// NewLocal creates a Local oracle.
func NewLocal(secret string, delay time.Duration) *Local {
	return &Local{secret: []byte(secret), delay: delay}
}

// Bind sets the callback target. It must be called before the first request.
func (o *Local) Bind(f Fulfiller) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fulfiller = f
}

// RequestRandomness issues a request id and schedules its fulfillment.
func (o *Local) RequestRandomness(ctx context.Context, seed string) (string, error) {
	o.mu.Lock()
	f := o.fulfiller
	o.mu.Unlock()
	if f == nil {
		return "", ErrNoFulfiller
	}

	requestID := uuid.New().String()
	value := Derive(o.secret, requestID, seed)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if o.delay > 0 {
			time.Sleep(o.delay)
		}
		if !f.FulfillRandomness(context.Background(), requestID, value) {
			logger.Warningf("oracle: fulfillment of %s was not accepted", requestID)
		}
	}()
	return requestID, nil
}

// Wait blocks until every scheduled fulfillment has been delivered.
func (o *Local) Wait() {
	o.wg.Wait()
}

// Derive is the value Local delivers for requestID and seed.
func Derive(secret []byte, requestID, seed string) *big.Int {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(requestID + "|" + seed))
	return new(big.Int).SetBytes(mac.Sum(nil))
}

// Callback issues request ids and waits for an external party to answer
// them through Fulfill, e.g. from an HTTP callback.
type Callback struct {
	mu        sync.Mutex
	fulfiller Fulfiller
	requests  map[string]*Request
	order     []string
	now       func() time.Time
}

// NewCallback creates a Callback oracle.
func NewCallback() *Callback {
	return &Callback{
		requests: make(map[string]*Request),
		now:      time.Now,
	}
}

// Bind sets the callback target.
func (o *Callback) Bind(f Fulfiller) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fulfiller = f
}

// RequestRandomness records a new outstanding request.
func (o *Callback) RequestRandomness(ctx context.Context, seed string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := uuid.New().String()
	o.requests[id] = &Request{ID: id, Seed: seed, RequestedAt: o.now()}
	o.order = append(o.order, id)
	return id, nil
}

// Requests lists issued requests, oldest first.
func (o *Callback) Requests() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Request, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, *o.requests[id])
	}
	return out
}

// Fulfill forwards value for requestID to the bound Fulfiller. Ids this
// oracle never issued are still forwarded so the core can drop them; the
// returned bool is the core's verdict.
func (o *Callback) Fulfill(ctx context.Context, requestID string, value *big.Int) (bool, error) {
	o.mu.Lock()
	f := o.fulfiller
	if f != nil {
		if req := o.requests[requestID]; req != nil {
			req.Answered = true
		}
	}
	o.mu.Unlock()
	if f == nil {
		return false, ErrNoFulfiller
	}
	return f.FulfillRandomness(ctx, requestID, value), nil
}
