// Package pricing computes bulk-purchase discounts for ticket batches.
package pricing

import (
	"math/big"

	"lotto/internal/models"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// MaxAmount is the largest amount the ledger can represent (2^256 - 1).
	MaxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 0)
)

// Tier returns the discount percentage that applies to a batch of count tickets.
func Tier(count uint64, buckets models.BucketConfig) uint32 {
	switch {
	case count <= buckets.BucketOneMax:
		return buckets.DiscountOne
	case count <= buckets.BucketTwoMax:
		return buckets.DiscountTwo
	default:
		return buckets.DiscountThree
	}
}

// Quote prices count tickets at cost each. Amounts are whole base units;
// the discount is truncated toward zero.
func Quote(count uint64, cost decimal.Decimal, buckets models.BucketConfig) (models.Quote, error) {
	if count == 0 {
		return models.Quote{}, models.ErrInvalidQuantity
	}
	gross := cost.Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(count), 0))
	if gross.GreaterThan(MaxAmount) {
		return models.Quote{}, models.ErrOverflow
	}
	discount := Percent(gross, Tier(count, buckets))
	return models.Quote{
		Gross:    gross,
		Discount: discount,
		Net:      gross.Sub(discount),
	}, nil
}

// Percent returns amount * pct / 100 truncated to whole units.
func Percent(amount decimal.Decimal, pct uint32) decimal.Decimal {
	q, _ := amount.Mul(decimal.NewFromInt(int64(pct))).QuoRem(hundred, 0)
	return q
}

// ValidateBuckets checks a candidate bucket configuration on its own.
func ValidateBuckets(b models.BucketConfig) error {
	if b.BucketOneMax == 0 || b.BucketTwoMax == 0 {
		return models.ErrBucketRangeInvalid
	}
	if b.DiscountOne >= b.DiscountTwo || b.DiscountTwo >= b.DiscountThree || b.DiscountThree > 100 {
		return models.ErrBucketDiscountInvalid
	}
	return nil
}

// UpdateBuckets validates next against the current configuration and
// returns the configuration to store.
func UpdateBuckets(current, next models.BucketConfig) (models.BucketConfig, error) {
	if err := ValidateBuckets(next); err != nil {
		return current, err
	}
	if next == current {
		return current, models.ErrDuplicateConfig
	}
	return next, nil
}
