/**
 * @description
 * This package implements the platform's fee split. The calculator is a pure
 * function over (gross amount, transaction type, currency): no state, no I/O,
 * identical inputs always produce identical outputs.
 *
 * Key features:
 * - Platform fee rates are per transaction type and come from configuration,
 *   expressed in basis points so the arithmetic stays integral.
 * - The payment processing fee is currency-aware: a percentage component plus
 *   a fixed additive component in the transaction currency's minor units.
 * - Monetary outputs are rounded to the currency's minor unit using
 *   round-half-to-even, applied once per output at the end of the computation.
 */

package fees

import (
	"errors"
	"fmt"

	"github.com/creatorhub/earnings-service/internal/domain"
)

var (
	// ErrFeeExceedsAmount is returned when the combined fees would exceed the
	// subtotal; the calculation never silently produces a negative payout.
	ErrFeeExceedsAmount = errors.New("fees exceed transaction amount")

	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidAmount       = errors.New("gross amount must be positive")
)

const bpsDenominator = 10000

// ProcessingFee describes one currency's payment rail cost: a percentage in
// basis points plus a fixed add-on in minor units.
type ProcessingFee struct {
	PercentBps int64
	Fixed      int64
}

// Config holds the fee schedule. Rates live in configuration, not call sites.
type Config struct {
	DefaultPlatformBps int64
	PlatformBps        map[domain.TransactionType]int64
	Processing         map[string]ProcessingFee
}

// Calculator computes fee breakdowns from a fixed schedule.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a Calculator over the given schedule.
func NewCalculator(cfg Config) *Calculator {
	if cfg.PlatformBps == nil {
		cfg.PlatformBps = map[domain.TransactionType]int64{}
	}
	if cfg.Processing == nil {
		cfg.Processing = map[string]ProcessingFee{}
	}
	return &Calculator{cfg: cfg}
}

// DefaultSchedule returns the platform's stock fee schedule. Deployments
// override individual rates through configuration.
func DefaultSchedule() Config {
	return Config{
		DefaultPlatformBps: 800,
		PlatformBps: map[domain.TransactionType]int64{
			domain.TypeMarketplace:           800,
			domain.TypeDigitalProduct:        600,
			domain.TypeCommission:            1000,
			domain.TypeTip:                   300,
			domain.TypeSubscription:          500,
			domain.TypeServiceBooking:        1000,
			domain.TypePerformanceBooking:    1200,
			domain.TypeEventBooking:          1000,
			domain.TypeLodgingReservation:    1000,
			domain.TypeRestaurantReservation: 800,
			domain.TypeArtisanService:        1000,
			domain.TypeFreelanceInvoice:      800,
		},
		Processing: map[string]ProcessingFee{
			"TZS": {PercentBps: 250, Fixed: 500},
			"USD": {PercentBps: 290, Fixed: 30},
		},
	}
}

// Calculate computes the fee breakdown for one gross amount in minor units.
func (c *Calculator) Calculate(grossAmount int64, txType domain.TransactionType, currency string) (domain.FeeBreakdown, error) {
	if grossAmount <= 0 {
		return domain.FeeBreakdown{}, ErrInvalidAmount
	}

	processing, ok := c.cfg.Processing[currency]
	if !ok {
		return domain.FeeBreakdown{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	platformBps, ok := c.cfg.PlatformBps[txType]
	if !ok {
		platformBps = c.cfg.DefaultPlatformBps
	}

	subtotal := grossAmount
	platformFee := roundHalfEvenBps(subtotal, platformBps)
	processingFee := roundHalfEvenBps(subtotal, processing.PercentBps) + processing.Fixed
	totalFees := platformFee + processingFee
	creatorPayout := subtotal - totalFees

	if creatorPayout < 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("%w: fees %d on subtotal %d", ErrFeeExceedsAmount, totalFees, subtotal)
	}

	return domain.FeeBreakdown{
		Subtotal:      subtotal,
		PlatformFee:   platformFee,
		ProcessingFee: processingFee,
		TotalFees:     totalFees,
		CreatorPayout: creatorPayout,
		Total:         subtotal + totalFees,
	}, nil
}

// roundHalfEvenBps computes value * bps / 10000 rounded half-to-even. The
// product stays integral so the only rounding point is the final division.
func roundHalfEvenBps(value, bps int64) int64 {
	num := value * bps
	quotient := num / bpsDenominator
	remainder := num % bpsDenominator

	switch {
	case 2*remainder < bpsDenominator:
		return quotient
	case 2*remainder > bpsDenominator:
		return quotient + 1
	default:
		if quotient%2 == 0 {
			return quotient
		}
		return quotient + 1
	}
}
