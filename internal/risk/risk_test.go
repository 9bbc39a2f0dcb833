package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/pairs"
)

func spec(t *testing.T, symbol string) pairs.Spec {
	t.Helper()
	s, ok := pairs.Lookup(symbol)
	require.True(t, ok)
	return s
}

func TestSizeCapsLossAtRiskBudget(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     10000,
		RiskPercent: 1.0,
		StopPips:    30,
		Spec:        spec(t, "EURUSD"),
	})
	require.False(t, d.Rejected)
	assert.InDelta(t, 0.33, d.Lots, 1e-9)
	assert.InDelta(t, 100.0, d.RiskAmount, 1e-9)
	assert.InDelta(t, 99.0, d.ExpectedLoss, 1e-6)
	assert.LessOrEqual(t, d.ExpectedLoss, d.RiskAmount+1e-6)
	assert.False(t, d.Clamped)
	assert.Empty(t, d.Reason)
}

func TestSizeRoundsDownNotNearest(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     10170,
		RiskPercent: 1.0,
		StopPips:    30,
		Spec:        spec(t, "EURUSD"),
	})
	require.False(t, d.Rejected)
	assert.InDelta(t, 0.33, d.Lots, 1e-9)
}

func TestSizeExactStepBoundary(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     9000,
		RiskPercent: 1.0,
		StopPips:    30,
		Spec:        spec(t, "EURUSD"),
	})
	require.False(t, d.Rejected)
	assert.InDelta(t, 0.30, d.Lots, 1e-9)
	assert.LessOrEqual(t, d.ExpectedLoss, d.RiskAmount+1e-6)
}

func TestSizeRejectsWhenStopTooWide(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     100,
		RiskPercent: 1.0,
		StopPips:    30,
		Spec:        spec(t, "EURUSD"),
	})
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonStopTooWide, d.Reason)
	assert.Zero(t, d.Lots)
}

func TestSizeClampsAtSymbolMaxLots(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     10_000_000,
		RiskPercent: 1.0,
		StopPips:    10,
		Spec:        spec(t, "EURUSD"),
	})
	require.False(t, d.Rejected)
	assert.InDelta(t, 10.0, d.Lots, 1e-9)
	assert.True(t, d.Clamped)
	assert.NotEmpty(t, d.ClampNote)
	assert.Empty(t, d.Reason)
}

func TestSizeClampsAtAccountMaxLots(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     1_000_000,
		RiskPercent: 1.0,
		StopPips:    10,
		Spec:        spec(t, "EURUSD"),
		MaxLots:     0.5,
	})
	require.False(t, d.Rejected)
	assert.InDelta(t, 0.5, d.Lots, 1e-9)
	assert.True(t, d.Clamped)
}

func TestSizeTightensRiskPercentToCeiling(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     10000,
		RiskPercent: 5.0,
		StopPips:    30,
		Spec:        spec(t, "EURUSD"),
	})
	require.False(t, d.Rejected)
	assert.InDelta(t, 2.0, d.RiskPercent, 1e-9)
	assert.InDelta(t, 200.0, d.RiskAmount, 1e-9)
	assert.InDelta(t, 0.66, d.Lots, 1e-9)
	assert.True(t, d.Clamped)
	assert.Contains(t, d.ClampNote, "risk percent")
}

func TestSizeUsesSymbolPipValue(t *testing.T) {
	d := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     10000,
		RiskPercent: 1.0,
		StopPips:    30,
		Spec:        spec(t, "USDJPY"),
	})
	require.False(t, d.Rejected)
	assert.InDelta(t, 0.36, d.Lots, 1e-9)
	assert.LessOrEqual(t, d.ExpectedLoss, 100.0+1e-6)

	gold := NewSizer(2.0).Size(Input{
		Account:     "acc-1",
		Balance:     10000,
		RiskPercent: 1.0,
		StopPips:    300,
		Spec:        spec(t, "XAUUSD"),
	})
	require.False(t, gold.Rejected)
	assert.InDelta(t, 0.33, gold.Lots, 1e-9)
}

func TestSizeInvalidInputs(t *testing.T) {
	s := NewSizer(2.0)
	eur := spec(t, "EURUSD")

	d := s.Size(Input{Balance: 0, RiskPercent: 1, StopPips: 30, Spec: eur})
	assert.True(t, d.Rejected)
	assert.Contains(t, d.Reason, "balance")

	d = s.Size(Input{Balance: 1000, RiskPercent: 1, StopPips: 0, Spec: eur})
	assert.True(t, d.Rejected)
	assert.Contains(t, d.Reason, "stop")

	d = s.Size(Input{Balance: 1000, RiskPercent: 0, StopPips: 30, Spec: eur})
	assert.True(t, d.Rejected)
	assert.Contains(t, d.Reason, "risk")
}

func TestSizeBudgetInvariantSweep(t *testing.T) {
	sizer := NewSizer(5.0)
	symbols := []string{"EURUSD", "USDJPY", "USDCAD", "XAUUSD"}
	balances := []float64{500, 2500, 10000, 50000}
	risks := []float64{0.5, 1.0, 2.0}
	stops := []float64{5, 10, 17, 33, 61, 120, 450}

	for _, sym := range symbols {
		sp := spec(t, sym)
		for _, bal := range balances {
			for _, r := range risks {
				for _, stop := range stops {
					d := sizer.Size(Input{Account: "a", Balance: bal, RiskPercent: r, StopPips: stop, Spec: sp})
					budget := bal * r / 100
					if stop < sp.MinStopPips {
						assert.Equal(t, ReasonStopBelowMin, d.Reason)
						continue
					}
					if stop > sp.MaxStopPips {
						assert.Equal(t, ReasonStopAboveMax, d.Reason)
						continue
					}
					if d.Rejected {
						assert.Zero(t, d.Lots)
						assert.Equal(t, ReasonStopTooWide, d.Reason)
						continue
					}
					assert.LessOrEqual(t, d.ExpectedLoss, budget+1e-6,
						"%s bal=%v r=%v stop=%v", sym, bal, r, stop)
					assert.GreaterOrEqual(t, d.Lots, sp.MinLot)
					assert.LessOrEqual(t, d.Lots, sp.MaxLot)
				}
			}
		}
	}
}

func TestSizeEnforcesPairStopBounds(t *testing.T) {
	s := NewSizer(2.0)
	eur := spec(t, "EURUSD")

	d := s.Size(Input{Account: "a", Balance: 10000, RiskPercent: 1, StopPips: 5, Spec: eur})
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonStopBelowMin, d.Reason)

	d = s.Size(Input{Account: "a", Balance: 10000, RiskPercent: 1, StopPips: 250, Spec: eur})
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonStopAboveMax, d.Reason)

	// 边界含在区间内
	d = s.Size(Input{Account: "a", Balance: 10000, RiskPercent: 1, StopPips: eur.MinStopPips, Spec: eur})
	assert.False(t, d.Rejected)
	d = s.Size(Input{Account: "a", Balance: 10000, RiskPercent: 1, StopPips: eur.MaxStopPips, Spec: eur})
	assert.False(t, d.Rejected)
}

func TestSizeRejectsBelowRiskRewardFloor(t *testing.T) {
	s := NewSizer(2.0)
	eur := spec(t, "EURUSD")

	d := s.Size(Input{
		Account: "a", Balance: 10000, RiskPercent: 1, StopPips: 30, Spec: eur,
		RiskReward: 1.2, MinRiskReward: 2.0,
	})
	assert.True(t, d.Rejected)
	assert.Equal(t, ReasonRRBelowMin, d.Reason)

	d = s.Size(Input{
		Account: "a", Balance: 10000, RiskPercent: 1, StopPips: 30, Spec: eur,
		RiskReward: 2.0, MinRiskReward: 2.0,
	})
	assert.False(t, d.Rejected)

	// 未知盈亏比不拦
	d = s.Size(Input{
		Account: "a", Balance: 10000, RiskPercent: 1, StopPips: 30, Spec: eur,
		MinRiskReward: 2.0,
	})
	assert.False(t, d.Rejected)
}
