package margin

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantfold/position-engine/internal/model"
	"github.com/quantfold/position-engine/internal/positions"
	"github.com/quantfold/position-engine/internal/securities"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testUniverse(t *testing.T, secs ...model.Security) *securities.Universe {
	t.Helper()
	u := securities.NewUniverse()
	for _, sec := range secs {
		if err := u.Add(sec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return u
}

func defaultGroup(t *testing.T, provider positions.BuyingPowerProvider, symbol string, units float64) *positions.Group {
	t.Helper()
	desc := positions.NewDefaultDescriptor(provider)
	p := positions.NewPosition(symbol, d(units), d(1))
	g, err := desc.CreateGroup(d(units), []positions.Position{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func TestSecurityModel_DefaultRates(t *testing.T) {
	u := testUniverse(t, model.Security{
		Symbol: "AAPL", Type: model.SecurityTypeEquity, Price: d(100),
	})
	m := NewSecurityModel(u, nil)
	g := defaultGroup(t, m, "AAPL", 100)

	initial, err := m.InitialMargin(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !initial.Equal(d(5000)) {
		t.Errorf("expected initial 5000 at the default 50%% rate, got %s", initial)
	}

	maintenance, err := m.MaintenanceMargin(g, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !maintenance.Equal(d(2500)) {
		t.Errorf("expected maintenance 2500 at the default 25%% rate, got %s", maintenance)
	}
}

func TestSecurityModel_ExplicitRates(t *testing.T) {
	u := testUniverse(t, model.Security{
		Symbol: "AAPL", Type: model.SecurityTypeEquity, Price: d(100),
		InitialMarginRate: d(1), MaintenanceRate: d(0.3),
	})
	m := NewSecurityModel(u, nil)
	g := defaultGroup(t, m, "AAPL", 10)

	initial, _ := m.InitialMargin(g)
	if !initial.Equal(d(1000)) {
		t.Errorf("expected initial 1000, got %s", initial)
	}
	maintenance, _ := m.MaintenanceMargin(g, false)
	if !maintenance.Equal(d(300)) {
		t.Errorf("expected maintenance 300, got %s", maintenance)
	}
}

func TestSecurityModel_ShortUsesAbsoluteNotional(t *testing.T) {
	u := testUniverse(t, model.Security{
		Symbol: "AAPL", Type: model.SecurityTypeEquity, Price: d(100),
	})
	m := NewSecurityModel(u, nil)
	g := defaultGroup(t, m, "AAPL", -100)

	initial, err := m.InitialMargin(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !initial.Equal(d(5000)) {
		t.Errorf("short margin must use absolute notional, got %s", initial)
	}
}

func TestSecurityModel_ContractMultiplier(t *testing.T) {
	u := testUniverse(t, model.Security{
		Symbol: "AAPL240621C00190000", Type: model.SecurityTypeOption,
		Price: d(5), ContractMultiplier: d(100), LotSize: d(1),
	})
	m := NewSecurityModel(u, nil)
	g := defaultGroup(t, m, "AAPL240621C00190000", 2)

	// 2 contracts * $5 * 100 multiplier * 50% = 500.
	initial, err := m.InitialMargin(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !initial.Equal(d(500)) {
		t.Errorf("expected 500, got %s", initial)
	}
}

func TestSecurityModel_OrderFees(t *testing.T) {
	u := testUniverse(t, model.Security{
		Symbol: "AAPL", Type: model.SecurityTypeEquity, Price: d(100), LotSize: d(1),
	})
	m := NewSecurityModel(u, securities.PerUnitFee{PerUnit: d(0.01), Minimum: d(1)})
	g := defaultGroup(t, m, "AAPL", 500)

	fees, err := m.OrderFees(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fees.Equal(d(5)) {
		t.Errorf("expected fees 5, got %s", fees)
	}
}

func TestSecurityModel_UnknownSecurity(t *testing.T) {
	m := NewSecurityModel(securities.NewUniverse(), nil)
	g := defaultGroup(t, m, "NOPE", 1)

	if _, err := m.InitialMargin(g); !errors.Is(err, securities.ErrSecurityNotFound) {
		t.Errorf("expected ErrSecurityNotFound, got %v", err)
	}
}

func TestSecurityModel_WrongArity(t *testing.T) {
	u := testUniverse(t, model.Security{
		Symbol: "AAPL", Type: model.SecurityTypeEquity, Price: d(100),
	})
	m := NewSecurityModel(u, nil)

	desc := positions.NewDefaultDescriptor(m)
	two := positions.NewGroupFromPositions(desc, []positions.Position{
		positions.NewPosition("AAPL", d(1), d(1)),
		positions.NewPosition("MSFT", d(1), d(1)),
	})

	if _, err := m.MaintenanceMargin(two, true); !errors.Is(err, positions.ErrWrongGroupArity) {
		t.Errorf("expected ErrWrongGroupArity, got %v", err)
	}
}
