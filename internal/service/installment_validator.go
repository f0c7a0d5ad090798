package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/campus-ledger-api/internal/dto"
	"github.com/noah-isme/campus-ledger-api/internal/models"
)

const (
	// DefaultMonthlyBase is the flat monthly fee used when none is configured.
	DefaultMonthlyBase = 90.0

	// multipleTolerance bounds |ratio - round(ratio)| for an amount to count as a whole number of units.
	multipleTolerance = 1e-4

	// floatNoise is the relative slack for binary rounding error when comparing against the minimum.
	// It is far below a cent for any realistic price, so 89.995 stays below a base of 90.
	floatNoise = 1e-9
)

// ValidationContext carries the installment facts a proposed amount is checked against.
type ValidationContext struct {
	InstallmentNumber  int
	TotalDurationUnits int
	PricePerClass      float64
}

// InstallmentValidator checks proposed payment amounts against a pricing modality.
// It holds no mutable state and is safe for concurrent use.
type InstallmentValidator struct {
	monthlyBase float64
}

// NewInstallmentValidator builds a validator using the given monthly fee.
func NewInstallmentValidator(monthlyBase float64) *InstallmentValidator {
	if !finite(monthlyBase) || monthlyBase <= 0 {
		monthlyBase = DefaultMonthlyBase
	}
	return &InstallmentValidator{monthlyBase: monthlyBase}
}

// MonthlyBase returns the configured monthly fee.
func (v *InstallmentValidator) MonthlyBase() float64 {
	return v.monthlyBase
}

// ValidateAmountInput parses a user-typed amount before validating it.
// Unparsable input is rejected as below the minimum.
func (v *InstallmentValidator) ValidateAmountInput(raw string, modality models.PricingModality, vctx ValidationContext) models.ValidationResult {
	amount, err := dto.ParseAmount(raw)
	if err != nil {
		return notPositive(0)
	}
	return v.ValidateAmount(amount, modality, vctx)
}

// ValidateAmount decides whether proposed is an acceptable payment.
//
// Rules are applied in order: the amount must be positive, at least one unit, a whole
// number of units within tolerance, and (monthly only) no more than the remaining units.
// Rejections carry the nearest valid multiples as suggestions.
func (v *InstallmentValidator) ValidateAmount(proposed float64, modality models.PricingModality, vctx ValidationContext) models.ValidationResult {
	if !finite(proposed) || proposed <= 0 {
		return notPositive(proposed)
	}

	base := vctx.PricePerClass
	var maximum *float64
	if modality == models.PricingMonthly {
		base = v.monthlyBase
		maximum = monthlyCeiling(base, vctx)
	}
	if !finite(base) || base <= 0 {
		return models.ValidationResult{
			Kind:    models.ValidationRejectedBelowMinimum,
			Message: "unit price is not configured for this installment",
			Amount:  proposed,
		}
	}

	if proposed < base*(1-floatNoise) {
		return models.ValidationResult{
			Kind:           models.ValidationRejectedBelowMinimum,
			Message:        fmt.Sprintf("amount must be at least %.2f", base),
			Amount:         proposed,
			Minimum:        base,
			Maximum:        maximum,
			SuggestedUpper: floatPtr(roundCents(base)),
		}
	}

	ratio := proposed / base
	units := math.Round(ratio)
	if math.Abs(ratio-units) >= multipleTolerance {
		lower := roundCents(math.Floor(ratio) * base)
		upper := roundCents(math.Ceil(ratio) * base)
		result := models.ValidationResult{
			Kind:           models.ValidationRejectedNotMultiple,
			Message:        fmt.Sprintf("amount must be a multiple of %.2f", base),
			Amount:         proposed,
			Minimum:        base,
			Maximum:        maximum,
			SuggestedLower: floatPtr(lower),
		}
		if maximum == nil || upper <= *maximum+multipleTolerance {
			result.SuggestedUpper = floatPtr(upper)
			result.Message = fmt.Sprintf("amount must be a multiple of %.2f, try %.2f or %.2f", base, lower, upper)
		}
		return result
	}

	if maximum != nil && proposed > *maximum+multipleTolerance*base {
		return models.ValidationResult{
			Kind:           models.ValidationRejectedAboveMaximum,
			Message:        fmt.Sprintf("amount exceeds the remaining balance of %.2f", *maximum),
			Amount:         proposed,
			Minimum:        base,
			Maximum:        maximum,
			SuggestedLower: floatPtr(*maximum),
		}
	}

	return models.ValidationResult{
		Kind:     models.ValidationAccepted,
		Accepted: true,
		Message:  fmt.Sprintf("amount covers %d unit(s)", int(units)),
		Amount:   proposed,
		Units:    int(units),
		Minimum:  base,
		Maximum:  maximum,
	}
}

// monthlyCeiling returns base * remaining units, or nil when the course duration is unknown.
// Remaining units never drop below one so an overdue final installment can still be paid.
func monthlyCeiling(base float64, vctx ValidationContext) *float64 {
	if vctx.TotalDurationUnits <= 0 {
		return nil
	}
	current := vctx.InstallmentNumber
	if current < 1 {
		current = 1
	}
	remaining := vctx.TotalDurationUnits - current + 1
	if remaining < 1 {
		remaining = 1
	}
	return floatPtr(roundCents(base * float64(remaining)))
}

func notPositive(amount float64) models.ValidationResult {
	if !finite(amount) {
		amount = 0
	}
	return models.ValidationResult{
		Kind:    models.ValidationRejectedBelowMinimum,
		Message: "amount must be a positive number",
		Amount:  amount,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func floatPtr(v float64) *float64 {
	return &v
}
