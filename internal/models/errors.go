package models

import (
	"github.com/pkg/errors"
)

// Kind groups domain errors by how a caller should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindTiming
	KindState
	KindPayment
	KindDuplicateConfig
	KindNotFound
	KindOracle
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindTiming:
		return "timing"
	case KindState:
		return "state"
	case KindPayment:
		return "payment"
	case KindDuplicateConfig:
		return "duplicate_config"
	case KindNotFound:
		return "not_found"
	case KindOracle:
		return "oracle"
	}
	return "unknown"
}

// Error is a classified, non-retryable rejection.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrNotAdmin = newError(KindAuthorization, "not_admin", "caller is not an admin")

	ErrInvalidDistribution   = newError(KindValidation, "invalid_distribution", "prize distribution must have one entry per digit and sum to 100")
	ErrInvalidPriceOrCost    = newError(KindValidation, "invalid_price_or_cost", "prize pool and ticket cost must be positive")
	ErrInvalidTimestamp      = newError(KindValidation, "invalid_timestamp", "opening time must be before closing time")
	ErrInvalidTicketNumbers  = newError(KindValidation, "invalid_ticket_numbers", "ticket numbers do not match the ticket count or lottery size")
	ErrInvalidQuantity       = newError(KindValidation, "invalid_quantity", "ticket count must be positive")
	ErrBucketRangeInvalid    = newError(KindValidation, "bucket_range_invalid", "bucket thresholds must be positive")
	ErrBucketDiscountInvalid = newError(KindValidation, "bucket_discount_invalid", "bucket discounts must strictly increase and not exceed 100")
	ErrInvalidLotterySize    = newError(KindValidation, "invalid_lottery_size", "lottery size must be positive")
	ErrInvalidMaxRange       = newError(KindValidation, "invalid_max_range", "max range must be positive")
	ErrInvalidAmount         = newError(KindValidation, "invalid_amount", "amount must be positive")
	ErrOverflow              = newError(KindValidation, "overflow", "amount exceeds the supported range")
	ErrInvalidRecipient      = newError(KindValidation, "invalid_recipient", "recipient must be set")

	ErrSaleClosed    = newError(KindTiming, "sale_closed", "ticket sale window is closed")
	ErrDrawTooEarly  = newError(KindTiming, "draw_too_early", "round has not closed yet")
	ErrClaimTooEarly = newError(KindTiming, "claim_too_early", "round has not closed yet")

	ErrDrawAlreadyInProgress = newError(KindState, "draw_in_progress", "randomness already requested for this round")
	ErrDrawAlreadyDone       = newError(KindState, "draw_already_done", "round has already been drawn")
	ErrClaimBeforeDraw       = newError(KindState, "claim_before_draw", "winning numbers have not been drawn")
	ErrClaimAlreadyClaimed   = newError(KindState, "claim_already_claimed", "ticket has already been claimed")
	ErrClaimWrongRound       = newError(KindState, "claim_wrong_round", "ticket belongs to a different round")
	ErrClaimNotOwner         = newError(KindState, "claim_not_owner", "caller does not own the ticket")
	ErrNumbersOutOfRange     = newError(KindState, "numbers_out_of_range", "ticket numbers are outside the valid range")

	ErrPayment         = newError(KindPayment, "payment_failed", "currency transfer failed")
	ErrDuplicateConfig = newError(KindDuplicateConfig, "duplicate_config", "value is already set")

	ErrRoundNotFound  = newError(KindNotFound, "round_not_found", "round does not exist")
	ErrTicketNotFound = newError(KindNotFound, "ticket_not_found", "ticket does not exist")
	ErrBatchNotFound  = newError(KindNotFound, "batch_not_found", "batch does not exist")

	ErrOracle = newError(KindOracle, "oracle_failed", "randomness request failed")
)

// KindOf returns the classification of err, looking through wrapping.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable code of err, or "internal" when unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// PaymentError wraps a ledger failure so it classifies as KindPayment
// while keeping the underlying cause in the message.
func PaymentError(cause error, op string) error {
	return &wrapped{kind: ErrPayment, cause: errors.Wrap(cause, op)}
}

// OracleError wraps an oracle failure.
func OracleError(cause error) error {
	return &wrapped{kind: ErrOracle, cause: errors.Wrap(cause, "request randomness")}
}

type wrapped struct {
	kind  *Error
	cause error
}

func (w *wrapped) Error() string { return w.kind.msg + ": " + w.cause.Error() }

func (w *wrapped) Is(target error) bool { return target == w.kind }

func (w *wrapped) As(target interface{}) bool {
	if t, ok := target.(**Error); ok {
		*t = w.kind
		return true
	}
	return false
}

func (w *wrapped) Unwrap() error { return w.cause }
