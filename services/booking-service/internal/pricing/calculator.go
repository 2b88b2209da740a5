package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

// Increment is the billing granularity in minutes.
const Increment = 15

// ReferenceMinutes is the duration a base price is quoted for.
const ReferenceMinutes = 60

// Rate prices one service type. A zero Base means the service bills PerMinute flat.
type Rate struct {
	Base      decimal.Decimal
	PerMinute decimal.Decimal
}

func DefaultRates() map[model.ServiceType]Rate {
	return map[model.ServiceType]Rate{
		model.ServiceConsultation: {Base: decimal.NewFromInt(20)},
		model.ServiceWorkshop:     {Base: decimal.NewFromInt(50)},
		model.ServiceMentoring:    {Base: decimal.NewFromInt(35)},
		model.ServiceCustom:       {PerMinute: decimal.NewFromInt(1)},
	}
}

// Calculator is the only place booking prices are derived.
type Calculator struct {
	rates map[model.ServiceType]Rate
}

func NewCalculator(rates map[model.ServiceType]Rate) (*Calculator, error) {
	if rates == nil {
		rates = DefaultRates()
	}
	for st, r := range rates {
		if r.Base.IsNegative() || r.PerMinute.IsNegative() {
			return nil, fmt.Errorf("pricing: negative rate for %s", st)
		}
	}
	cp := make(map[model.ServiceType]Rate, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return &Calculator{rates: cp}, nil
}

// BilledMinutes rounds minutes up to the next billing increment.
func BilledMinutes(minutes int) int {
	return (minutes + Increment - 1) / Increment * Increment
}

// Price returns the amount charged for a session, rounded to cents.
func (c *Calculator) Price(st model.ServiceType, minutes int) (decimal.Decimal, error) {
	if minutes <= 0 {
		return decimal.Zero, model.NewValidationError("duration_minutes", "must be positive")
	}
	r, ok := c.rates[st]
	if !ok {
		return decimal.Zero, model.NewValidationError("service_type", fmt.Sprintf("unsupported service type %q", st))
	}
	billed := decimal.NewFromInt(int64(BilledMinutes(minutes)))
	if r.Base.IsZero() {
		return r.PerMinute.Mul(billed).Round(2), nil
	}
	// multiply before dividing so 1/60 fractions do not accumulate rounding error
	return r.Base.Mul(billed).Div(decimal.NewFromInt(ReferenceMinutes)).Round(2), nil
}

// Rate exposes the configured rate for quoting.
func (c *Calculator) Rate(st model.ServiceType) (Rate, bool) {
	r, ok := c.rates[st]
	return r, ok
}
