// Package settlement computes how a confirmed gross payment is split
// between the platform, the payment gateway, tax, and the payee.
package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/finvera/invoicing-backend/config"
	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/services"
)

// minorUnitPlaces is the rounding precision for currency amounts
const minorUnitPlaces = 2

// Calculator computes settlement breakdowns. It is pure and stateless:
// identical inputs always produce identical outputs, which reconciliation
// and audit depend on.
type Calculator struct {
	gatewayFeeRate decimal.Decimal
	taxRate        decimal.Decimal
}

// NewCalculator creates a Calculator with the configured fixed rates
func NewCalculator(cfg config.SettlementConfig) *Calculator {
	return &Calculator{
		gatewayFeeRate: cfg.GatewayFeeRate,
		taxRate:        cfg.TaxRate,
	}
}

// Compute derives the settlement breakdown for a gross amount at the
// given platform commission rate.
//
//	platformCommission = gross * commissionRate
//	gatewayFee         = gross * gatewayFeeRate
//	taxOnFee           = gatewayFee * taxRate
//	netPayable         = gross - platformCommission - gatewayFee - taxOnFee
//
// Arithmetic is exact decimal; each output field is rounded once, to
// currency minor units, using round-half-even.
func (c *Calculator) Compute(grossAmount, commissionRate decimal.Decimal) (*models.SettlementBreakdown, error) {
	if grossAmount.LessThanOrEqual(decimal.Zero) {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"settlement gross amount must be positive", nil).
			WithDetail("gross_amount", grossAmount.String())
	}
	one := decimal.NewFromInt(1)
	if commissionRate.IsNegative() || commissionRate.GreaterThan(one) {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"settlement commission rate must be within [0, 1]", nil).
			WithDetail("commission_rate", commissionRate.String())
	}

	platformCommission := grossAmount.Mul(commissionRate)
	gatewayFee := grossAmount.Mul(c.gatewayFeeRate)
	taxOnFee := gatewayFee.Mul(c.taxRate)
	netPayable := grossAmount.Sub(platformCommission).Sub(gatewayFee).Sub(taxOnFee)

	return &models.SettlementBreakdown{
		GrossAmount:        grossAmount.RoundBank(minorUnitPlaces),
		CommissionRate:     commissionRate,
		PlatformCommission: platformCommission.RoundBank(minorUnitPlaces),
		GatewayFee:         gatewayFee.RoundBank(minorUnitPlaces),
		TaxOnFee:           taxOnFee.RoundBank(minorUnitPlaces),
		NetPayable:         netPayable.RoundBank(minorUnitPlaces),
	}, nil
}
