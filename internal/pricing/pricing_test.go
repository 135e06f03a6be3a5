package pricing

import (
	"errors"
	"testing"

	"lotto/internal/models"

	"github.com/shopspring/decimal"
)

var testBuckets = models.BucketConfig{
	BucketOneMax:  20,
	BucketTwoMax:  50,
	DiscountOne:   5,
	DiscountTwo:   10,
	DiscountThree: 15,
}

// tokens converts a token amount into 18-decimal base units.
func tokens(s string) decimal.Decimal {
	return decimal.RequireFromString(s).Shift(18)
}

func TestQuote(t *testing.T) {
	cost := tokens("10")

	cases := []struct {
		name     string
		count    uint64
		gross    string
		discount string
		net      string
	}{
		{"bucket one", 10, "100", "5", "95"},
		{"bucket two", 35, "350", "35", "315"},
		{"bucket three", 51, "510", "76.5", "433.5"},
		{"bucket one edge", 20, "200", "10", "190"},
		{"bucket two edge", 50, "500", "50", "450"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Quote(tc.count, cost, testBuckets)
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if !q.Gross.Equal(tokens(tc.gross)) {
				t.Errorf("Expected gross %s, but got %s", tokens(tc.gross), q.Gross)
			}
			if !q.Discount.Equal(tokens(tc.discount)) {
				t.Errorf("Expected discount %s, but got %s", tokens(tc.discount), q.Discount)
			}
			if !q.Net.Equal(tokens(tc.net)) {
				t.Errorf("Expected net %s, but got %s", tokens(tc.net), q.Net)
			}
			if !q.Net.Equal(q.Gross.Sub(q.Discount)) {
				t.Errorf("Expected net == gross - discount, but got %s != %s - %s", q.Net, q.Gross, q.Discount)
			}
		})
	}
}

func TestQuoteTruncatesDiscount(t *testing.T) {
	// 51 * 3 = 153 units, 15% = 22.95 -> 22
	q, err := Quote(51, decimal.NewFromInt(3), testBuckets)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if !q.Discount.Equal(decimal.NewFromInt(22)) {
		t.Errorf("Expected discount 22, but got %s", q.Discount)
	}
	if !q.Net.Equal(decimal.NewFromInt(131)) {
		t.Errorf("Expected net 131, but got %s", q.Net)
	}
}

func TestQuoteRejects(t *testing.T) {
	t.Run("zero quantity", func(t *testing.T) {
		_, err := Quote(0, decimal.NewFromInt(10), testBuckets)
		if !errors.Is(err, models.ErrInvalidQuantity) {
			t.Fatalf("Expected ErrInvalidQuantity, but got %v", err)
		}
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := Quote(2, MaxAmount, testBuckets)
		if !errors.Is(err, models.ErrOverflow) {
			t.Fatalf("Expected ErrOverflow, but got %v", err)
		}
	})
}

func TestUpdateBuckets(t *testing.T) {
	next := models.BucketConfig{BucketOneMax: 10, BucketTwoMax: 30, DiscountOne: 2, DiscountTwo: 4, DiscountThree: 8}

	got, err := UpdateBuckets(testBuckets, next)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if got != next {
		t.Errorf("Expected %+v, but got %+v", next, got)
	}

	invalid := []struct {
		name string
		cfg  models.BucketConfig
		want error
	}{
		{"zero bucket one", models.BucketConfig{BucketOneMax: 0, BucketTwoMax: 30, DiscountOne: 2, DiscountTwo: 4, DiscountThree: 8}, models.ErrBucketRangeInvalid},
		{"zero bucket two", models.BucketConfig{BucketOneMax: 10, BucketTwoMax: 0, DiscountOne: 2, DiscountTwo: 4, DiscountThree: 8}, models.ErrBucketRangeInvalid},
		{"one not below two", models.BucketConfig{BucketOneMax: 10, BucketTwoMax: 30, DiscountOne: 4, DiscountTwo: 2, DiscountThree: 8}, models.ErrBucketDiscountInvalid},
		{"two not below three", models.BucketConfig{BucketOneMax: 10, BucketTwoMax: 30, DiscountOne: 2, DiscountTwo: 8, DiscountThree: 4}, models.ErrBucketDiscountInvalid},
		{"equal discounts", models.BucketConfig{BucketOneMax: 10, BucketTwoMax: 30, DiscountOne: 4, DiscountTwo: 4, DiscountThree: 8}, models.ErrBucketDiscountInvalid},
		{"over one hundred", models.BucketConfig{BucketOneMax: 10, BucketTwoMax: 30, DiscountOne: 2, DiscountTwo: 4, DiscountThree: 101}, models.ErrBucketDiscountInvalid},
		{"unchanged", testBuckets, models.ErrDuplicateConfig},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			got, err := UpdateBuckets(testBuckets, tc.cfg)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, but got %v", tc.want, err)
			}
			if got != testBuckets {
				t.Errorf("Expected current config to be kept, but got %+v", got)
			}
		})
	}
}
