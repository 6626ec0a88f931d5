package fees

import "github.com/shopspring/decimal"

// Schedule holds the fee rates applied to every charge. Injected into the
// processors so tests can run alternate schedules; no package-level state.
type Schedule struct {
	PlatformRate   decimal.Decimal
	ProcessingRate decimal.Decimal
	ProcessingFlat decimal.Decimal
}

// DefaultSchedule returns the production fee schedule: 5% platform,
// 2.9% + 0.30 processing.
func DefaultSchedule() Schedule {
	return Schedule{
		PlatformRate:   decimal.NewFromFloat(0.05),
		ProcessingRate: decimal.NewFromFloat(0.029),
		ProcessingFlat: decimal.NewFromFloat(0.30),
	}
}

// Breakdown is the fee split for one gross amount, rounded to 2 decimal
// places with banker's rounding. Rounding happens exactly once, here, so
// repeated charge/refund cycles cannot accumulate drift.
type Breakdown struct {
	PlatformFee   decimal.Decimal
	ProcessingFee decimal.Decimal
}

func (b Breakdown) Total() decimal.Decimal {
	return b.PlatformFee.Add(b.ProcessingFee)
}

// Calculator computes fee breakdowns. Pure, no I/O.
type Calculator struct {
	schedule Schedule
}

func NewCalculator(schedule Schedule) *Calculator {
	return &Calculator{schedule: schedule}
}

// Calculate splits the gross amount into platform and processing fees.
// NetPayout(amount) is amount - Total().
func (c *Calculator) Calculate(amount decimal.Decimal) Breakdown {
	platform := amount.Mul(c.schedule.PlatformRate).RoundBank(2)
	processing := amount.Mul(c.schedule.ProcessingRate).Add(c.schedule.ProcessingFlat).RoundBank(2)
	return Breakdown{
		PlatformFee:   platform,
		ProcessingFee: processing,
	}
}

// NetPayout is the amount credited to the assignee after fees.
func (c *Calculator) NetPayout(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(c.Calculate(amount).Total())
}

// Reversal computes the fee share reversed for a partial or full refund.
//
// Policy: fees are recomputed on the refund amount with the charge formula,
// not pro-rated from the original payment's stored fees. The flat component
// therefore applies per refund, so the sum of several partial reversals can
// exceed one full reversal. Chosen so that the calculator stays the single
// source of fee math.
func (c *Calculator) Reversal(refundAmount decimal.Decimal) Breakdown {
	return c.Calculate(refundAmount)
}
