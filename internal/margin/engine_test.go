package margin

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
	"github.com/quantfold/position-engine/internal/positions"
	"github.com/quantfold/position-engine/internal/securities"
)

// fixture wires a universe, account, manager, and engine the way the server
// does at startup.
type fixture struct {
	universe *securities.Universe
	account  *securities.Account
	manager  *positions.Manager
	engine   *Engine
	desc     positions.Descriptor
}

func newFixture(t *testing.T, cash float64, fees securities.FeeModel, buffer decimal.Decimal, secs ...model.Security) *fixture {
	t.Helper()

	universe := securities.NewUniverse()
	for _, sec := range secs {
		if err := universe.Add(sec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	secModel := NewSecurityModel(universe, fees)
	desc := positions.NewDefaultDescriptor(secModel)
	manager, err := positions.NewManager(universe, desc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(manager.Close)

	engine := NewEngine(buffer)
	account := securities.NewAccount(universe, d(cash), "USD")
	account.SetReservedFunc(func() decimal.Decimal {
		groups, err := manager.Groups()
		if err != nil {
			t.Fatalf("resolution failed: %v", err)
		}
		reserved, err := engine.TotalReservedBuyingPower(groups)
		if err != nil {
			t.Fatalf("reserved computation failed: %v", err)
		}
		return reserved
	})

	return &fixture{
		universe: universe,
		account:  account,
		manager:  manager,
		engine:   engine,
		desc:     desc,
	}
}

func (f *fixture) portfolio() Portfolio {
	return Portfolio{Account: f.account, Universe: f.universe, Manager: f.manager}
}

func (f *fixture) group(t *testing.T, symbol string, units float64) *positions.Group {
	t.Helper()
	sec, ok := f.universe.Get(symbol)
	if !ok {
		t.Fatalf("security %s not in universe", symbol)
	}
	p := f.desc.CreatePosition(sec, d(units))
	g, err := f.desc.CreateGroup(d(units), []positions.Position{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func aapl(price, qty float64) model.Security {
	return model.Security{
		Symbol: "AAPL", Type: model.SecurityTypeEquity,
		Price: d(price), Quantity: d(qty),
	}
}

func msft(price, qty float64) model.Security {
	return model.Security{
		Symbol: "MSFT", Type: model.SecurityTypeEquity,
		Price: d(price), Quantity: d(qty),
	}
}

func TestEngine_InitialMarginForOrder(t *testing.T) {
	f := newFixture(t, 100000, securities.FlatFee{Fee: d(7)}, decimal.Zero, aapl(100, 0))

	got, err := f.engine.InitialMarginForOrder(f.group(t, "AAPL", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 100 * 100 * 50% + 7 fee.
	if !got.Equal(d(5007)) {
		t.Errorf("expected 5007, got %s", got)
	}
}

func TestEngine_TotalReservedBuyingPower(t *testing.T) {
	f := newFixture(t, 100000, nil, decimal.Zero, aapl(100, 100), msft(200, -50))

	groups, err := f.manager.Groups()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total, err := f.engine.TotalReservedBuyingPower(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// AAPL: 100*100*25% = 2500; MSFT: 50*200*25% = 2500.
	if !total.Equal(d(5000)) {
		t.Errorf("expected 5000, got %s", total)
	}
}

func TestEngine_ReservedBuyingPowerImpact_Bounded(t *testing.T) {
	f := newFixture(t, 100000, nil, decimal.Zero,
		aapl(100, 100), msft(200, 50))

	// Contemplate buying 100 more AAPL shares.
	deltas := []positions.Position{positions.NewPosition("AAPL", d(100), d(1))}
	impact, err := f.engine.ReservedBuyingPowerImpact(f.portfolio(), deltas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the AAPL group is impacted; MSFT stays out of the analysis.
	if len(impact.ImpactedGroups) != 1 {
		t.Fatalf("expected 1 impacted group, got %d", len(impact.ImpactedGroups))
	}
	if _, err := impact.ImpactedGroups[0].Position("AAPL"); err != nil {
		t.Errorf("expected the AAPL group: %v", err)
	}

	// Current: 100*100*25% = 2500. Contemplated: 200*100*25% = 5000.
	if !impact.Current.Equal(d(2500)) {
		t.Errorf("expected current 2500, got %s", impact.Current)
	}
	if !impact.Contemplated.Equal(d(5000)) {
		t.Errorf("expected contemplated 5000, got %s", impact.Contemplated)
	}
	if !impact.Delta().Equal(d(2500)) {
		t.Errorf("expected delta 2500, got %s", impact.Delta())
	}
}

func TestEngine_ReservedBuyingPowerImpact_ClosingReleasesMargin(t *testing.T) {
	f := newFixture(t, 100000, nil, decimal.Zero, aapl(100, 100))

	deltas := []positions.Position{positions.NewPosition("AAPL", d(-100), d(1))}
	impact, err := f.engine.ReservedBuyingPowerImpact(f.portfolio(), deltas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !impact.Contemplated.IsZero() {
		t.Errorf("closing the position should release all margin, got %s", impact.Contemplated)
	}
	if !impact.Delta().Equal(d(-2500)) {
		t.Errorf("expected delta -2500, got %s", impact.Delta())
	}
}

func TestEngine_HasSufficientBuyingPower_Accepts(t *testing.T) {
	f := newFixture(t, 100000, nil, decimal.Zero, aapl(100, 0))

	got, err := f.engine.HasSufficientBuyingPowerForOrder(f.portfolio(), f.group(t, "AAPL", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsSufficient {
		t.Errorf("expected sufficient, got reason %q", got.Reason)
	}
}

func TestEngine_HasSufficientBuyingPower_InitialMarginGate(t *testing.T) {
	f := newFixture(t, 1000, nil, decimal.Zero, aapl(100, 0))

	// Initial margin 5000 > free margin 1000.
	got, err := f.engine.HasSufficientBuyingPowerForOrder(f.portfolio(), f.group(t, "AAPL", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsSufficient {
		t.Fatal("expected insufficient")
	}
	if !strings.Contains(got.Reason, "initial margin requirement") {
		t.Errorf("unexpected reason: %q", got.Reason)
	}
}

func TestEngine_HasSufficientBuyingPower_ImpactGate(t *testing.T) {
	sec := aapl(100, 0)
	sec.InitialMarginRate = d(0.1)
	sec.MaintenanceRate = d(0.9)
	f := newFixture(t, 5000, nil, decimal.Zero, sec)

	// Initial margin 1000 passes; maintenance impact 9000 exceeds 5000.
	got, err := f.engine.HasSufficientBuyingPowerForOrder(f.portfolio(), f.group(t, "AAPL", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsSufficient {
		t.Fatal("expected insufficient")
	}
	if !strings.Contains(got.Reason, "reserved buying power impact") {
		t.Errorf("unexpected reason: %q", got.Reason)
	}
}

func TestEngine_HasSufficientBuyingPower_BufferWithholds(t *testing.T) {
	// 5% buffer: free margin 5035 * 0.95 = 4783.25 < initial 5000.
	f := newFixture(t, 5035, nil, d(0.05), aapl(100, 0))

	got, err := f.engine.HasSufficientBuyingPowerForOrder(f.portfolio(), f.group(t, "AAPL", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsSufficient {
		t.Error("buffer should make the order insufficient")
	}
}

func TestEngine_PositionGroupBuyingPower(t *testing.T) {
	f := newFixture(t, 90000, nil, decimal.Zero, aapl(100, 100))
	pf := f.portfolio()
	g := f.group(t, "AAPL", 100)

	// TPV = 90000 + 10000 = 100000; reserved = 2500; remaining = 97500.
	same, err := f.engine.PositionGroupBuyingPower(pf, g, positions.SideLong)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !same.Equal(d(97500)) {
		t.Errorf("same direction: expected 97500, got %s", same)
	}

	// Reversing adds back reserved 2500 and initial 5000.
	reverse, err := f.engine.PositionGroupBuyingPower(pf, g, positions.SideShort)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reverse.Equal(d(105000)) {
		t.Errorf("reversal: expected 105000, got %s", reverse)
	}

	none, err := f.engine.PositionGroupBuyingPower(pf, g, positions.SideNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !none.Equal(d(97500)) {
		t.Errorf("no direction: expected 97500, got %s", none)
	}
}

func TestEngine_MaxQuantity_FlatToTarget(t *testing.T) {
	f := newFixture(t, 100000, nil, decimal.Zero, aapl(100, 0))

	// Target 50% of 100k = 50000 margin; unit margin 50 → 1000 shares.
	got, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(0.5), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsError {
		t.Fatalf("unexpected error result: %s", got.Reason)
	}
	if !got.Quantity.Equal(d(1000)) {
		t.Errorf("expected 1000 shares, got %s", got.Quantity)
	}
}

func TestEngine_MaxQuantity_ReducingTowardTarget(t *testing.T) {
	f := newFixture(t, 90000, nil, decimal.Zero, aapl(100, 1000))

	// Held margin 25000 exceeds the 10% target; the order must sell down.
	got, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(0.1), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Quantity.Sign() >= 0 {
		t.Errorf("expected a negative (selling) quantity, got %s", got.Quantity)
	}
}

func TestEngine_MaxQuantity_ZeroTargetClosesExactly(t *testing.T) {
	f := newFixture(t, 90000, nil, decimal.Zero, aapl(100, 100))

	got, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), decimal.Zero, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Quantity.Equal(d(-100)) {
		t.Errorf("expected exact negation -100, got %s", got.Quantity)
	}
	if got.IsError || got.Reason != "" {
		t.Errorf("liquidation must be a clean result: %+v", got)
	}
}

func TestEngine_MaxQuantity_BelowUnit(t *testing.T) {
	f := newFixture(t, 100000, nil, decimal.Zero, aapl(100, 0))

	// Target margin 10 is below the 50 unit margin.
	got, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(0.0001), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsError {
		t.Error("below-unit target is informational, not an error")
	}
	if !got.Quantity.IsZero() {
		t.Errorf("expected zero quantity, got %s", got.Quantity)
	}
	if got.Reason == "" {
		t.Error("expected a reason when silent is false")
	}

	silent, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(0.0001), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if silent.Reason != "" {
		t.Errorf("expected no reason when silent, got %q", silent.Reason)
	}
}

func TestEngine_MaxQuantity_ZeroPriceNamesSymbol(t *testing.T) {
	f := newFixture(t, 100000, nil, decimal.Zero, aapl(0, 0))

	got, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(0.5), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsError {
		t.Fatal("expected a structured error result")
	}
	if !strings.Contains(got.Reason, "AAPL") {
		t.Errorf("reason must name the offending symbol: %q", got.Reason)
	}
	if !strings.Contains(got.Reason, "zero price") {
		t.Errorf("unexpected reason: %q", got.Reason)
	}
}

func TestEngine_MaxQuantity_FeesShrinkQuantity(t *testing.T) {
	f := newFixture(t, 100000, securities.PerUnitFee{PerUnit: d(0.05)}, decimal.Zero, aapl(100, 0))

	got, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(0.5), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsError {
		t.Fatalf("unexpected error result: %s", got.Reason)
	}
	// Margin-plus-fee per share is 50.05, so fewer than 1000 shares fit.
	if !got.Quantity.LessThan(d(1000)) || got.Quantity.Sign() <= 0 {
		t.Errorf("expected a positive quantity below 1000, got %s", got.Quantity)
	}
	// The quantity found must actually fit the target budget.
	scaled := f.group(t, "AAPL", 1).WithQuantity(got.Quantity)
	orderMargin, err := f.engine.InitialMarginForOrder(scaled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderMargin.GreaterThan(d(50000)) {
		t.Errorf("order margin %s exceeds the 50000 target", orderMargin)
	}
}

func TestEngine_MaxQuantity_NonConvergenceDiagnostic(t *testing.T) {
	// A fee cliff above 1000 shares makes the margin function non-monotonic
	// enough to trap the secant step in a two-cycle.
	cliff := securities.FeeFunc(func(_ model.Security, q decimal.Decimal) decimal.Decimal {
		if q.Abs().GreaterThan(d(1000)) {
			return d(600)
		}
		return decimal.Zero
	})
	f := newFixture(t, 100000, cliff, decimal.Zero, aapl(100, 0))

	_, err := f.engine.MaximumQuantityForTargetBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(0.505), false)
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("expected ErrNoConvergence, got %v", err)
	}
	for _, fragment := range []string{"target margin", "order margin", "unit margin"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("diagnostic missing %q: %s", fragment, err)
		}
	}
}

func TestEngine_MaxQuantityForDelta_Delegates(t *testing.T) {
	f := newFixture(t, 90000, nil, decimal.Zero, aapl(100, 100))

	// Used margin 2500; delta -2500 projects to a zero target: exact close.
	got, err := f.engine.MaximumQuantityForDeltaBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(-2500), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Quantity.Equal(d(-100)) {
		t.Errorf("expected -100, got %s", got.Quantity)
	}
}

func TestEngine_MaxQuantityForDelta_ZeroPortfolioValue(t *testing.T) {
	f := newFixture(t, 0, nil, decimal.Zero, aapl(100, 0))

	got, err := f.engine.MaximumQuantityForDeltaBuyingPower(f.portfolio(), f.group(t, "AAPL", 1), d(1000), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsError {
		t.Error("expected a structured error result for zero portfolio value")
	}
}

func TestNewEngine_ClampsBuffer(t *testing.T) {
	if !NewEngine(d(-0.5)).RequiredFreeBuyingPowerPercent().IsZero() {
		t.Error("negative buffer must clamp to zero")
	}
	if !NewEngine(d(1.5)).RequiredFreeBuyingPowerPercent().IsZero() {
		t.Error("buffer >= 1 must clamp to zero")
	}
	if !NewEngine(d(0.25)).RequiredFreeBuyingPowerPercent().Equal(d(0.25)) {
		t.Error("valid buffer must be preserved")
	}
}
