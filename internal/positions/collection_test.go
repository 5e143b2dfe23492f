package positions

import (
	"reflect"
	"testing"
)

func TestCollection_AddRemove(t *testing.T) {
	c := NewCollection()
	if !c.IsEmpty() {
		t.Error("new collection should be empty")
	}

	p := NewPosition("AAPL", d(5), d(1))
	c.Add(p)
	if c.Len() != 1 {
		t.Fatalf("expected len=1, got %d", c.Len())
	}

	if !c.Remove(p) {
		t.Error("expected remove to succeed")
	}
	if !c.IsEmpty() {
		t.Error("collection should be empty after remove")
	}
	if c.Remove(p) {
		t.Error("removing an absent position should return false")
	}
}

func TestCollection_RemoveFirstMatch(t *testing.T) {
	c := NewCollection()
	p := NewPosition("AAPL", d(5), d(1))
	c.Add(p)
	c.Add(p)

	if !c.Remove(p) {
		t.Fatal("expected remove to succeed")
	}
	if c.Len() != 1 {
		t.Errorf("only the first match should be removed, len=%d", c.Len())
	}
}

func TestCollection_RemoveSymbol(t *testing.T) {
	c := NewCollection(
		NewPosition("AAPL", d(5), d(1)),
		NewPosition("AAPL", d(3), d(1)),
		NewPosition("MSFT", d(2), d(1)),
	)

	removed := c.RemoveSymbol("AAPL")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(removed))
	}
	if c.Len() != 1 {
		t.Errorf("expected len=1, got %d", c.Len())
	}
	if got := c.RemoveSymbol("AAPL"); got != nil {
		t.Errorf("second removal should return nil, got %v", got)
	}
}

func TestCollection_SymbolsSorted(t *testing.T) {
	c := NewCollection(
		NewPosition("MSFT", d(1), d(1)),
		NewPosition("AAPL", d(1), d(1)),
		NewPosition("GOOG", d(1), d(1)),
	)

	want := []string{"AAPL", "GOOG", "MSFT"}
	if got := c.Symbols(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCollection_ForSymbolCopies(t *testing.T) {
	c := NewCollection(NewPosition("AAPL", d(5), d(1)))

	got := c.ForSymbol("AAPL")
	got[0] = NewPosition("AAPL", d(99), d(1))

	if !c.ForSymbol("AAPL")[0].Quantity.Equal(d(5)) {
		t.Error("ForSymbol must return a copy")
	}
}

func TestCollection_Clear(t *testing.T) {
	c := NewCollection(
		NewPosition("AAPL", d(5), d(1)),
		NewPosition("MSFT", d(2), d(1)),
	)
	c.Clear()
	if !c.IsEmpty() || c.Len() != 0 {
		t.Error("clear should empty the pool")
	}
}

func TestCollection_AllOrdered(t *testing.T) {
	c := NewCollection(
		NewPosition("MSFT", d(2), d(1)),
		NewPosition("AAPL", d(5), d(1)),
		NewPosition("AAPL", d(3), d(1)),
	)

	all := c.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(all))
	}
	if all[0].Symbol != "AAPL" || all[1].Symbol != "AAPL" || all[2].Symbol != "MSFT" {
		t.Errorf("expected symbol order AAPL,AAPL,MSFT, got %v", all)
	}
	// Insertion order preserved within a symbol.
	if !all[0].Quantity.Equal(d(5)) || !all[1].Quantity.Equal(d(3)) {
		t.Errorf("insertion order lost within symbol: %v", all)
	}
}
