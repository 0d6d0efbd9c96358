package usage

import (
	"context"
	"math"
)

// Thresholds in percent of the monthly limit.
const (
	WarningPercent = 80
	BlockPercent   = 100
)

// Verdict is the result of a limit check.
type Verdict struct {
	Blocked bool
	// WarningPercent is set when usage is at or above WarningPercent.
	WarningPercent *int

	HasLimit     bool
	LimitUSD     float64
	TotalCostUSD float64
	Percent      float64
}

// Guard checks current-month spend against configured limits.
type Guard struct {
	ledger *Ledger
	limits LimitSource
}

// NewGuard creates a Guard.
func NewGuard(ledger *Ledger, limits LimitSource) *Guard {
	return &Guard{ledger: ledger, limits: limits}
}

// Check reports whether the model is blocked or close to its limit.
// Models without a limit are never blocked and the store is not read.
func (g *Guard) Check(ctx context.Context, modelID string) (Verdict, error) {
	limit, ok := g.limits.MonthlyLimit(modelID)
	if !ok || limit <= 0 {
		return Verdict{}, nil
	}

	rec, err := g.ledger.Current(ctx, modelID)
	if err != nil {
		return Verdict{}, err
	}

	v := Verdict{
		HasLimit:     true,
		LimitUSD:     limit,
		TotalCostUSD: rec.TotalCostUSD,
		Percent:      rec.TotalCostUSD / limit * 100,
	}
	v.Blocked = v.Percent >= BlockPercent
	if v.Percent >= WarningPercent {
		pct := int(math.Floor(v.Percent))
		v.WarningPercent = &pct
	}
	return v, nil
}
