package calculator

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/kalambet/calcdeck/internal/history"
	"github.com/kalambet/calcdeck/internal/storage"
)

func newTestService(t *testing.T) (*Service, *history.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := history.New(storage.NewMemory(), history.Options{Logger: logger})
	return NewService(Default(), store, logger), store
}

// failingKV rejects every operation.
type failingKV struct{}

func (failingKV) Get(string) (string, bool, error) { return "", false, errors.New("quota exceeded") }
func (failingKV) Set(string, string) error         { return errors.New("quota exceeded") }

func TestCalculate_RecordsEntry(t *testing.T) {
	svc, store := newTestService(t)

	out, err := svc.Calculate("tip-calculator", inputs("bill", "50"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result != "Tip: $7.50, Total: $57.50" {
		t.Errorf("result = %q", out.Result)
	}

	entries := store.Load("tip-calculator")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != out.Entry.ID || entries[0].Result != out.Result {
		t.Errorf("stored entry %+v does not match outcome %+v", entries[0], out.Entry)
	}
	if got := entries[0].InputPairs(); len(got) != 3 || got[0] != "bill=50" || got[1] != "tipPercent=15" || got[2] != "people=1" {
		t.Errorf("stored inputs = %v", got)
	}
}

func TestCalculate_UnknownCalculator(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Calculate("mortgage-wizard", inputs())
	if !errors.Is(err, ErrUnknownCalculator) {
		t.Errorf("expected ErrUnknownCalculator, got %v", err)
	}
}

func TestCalculate_InvalidInputNotRecorded(t *testing.T) {
	svc, store := newTestService(t)
	if _, err := svc.Calculate("bmi-calculator", inputs("weight", "70")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got := store.Load("bmi-calculator"); len(got) != 0 {
		t.Errorf("invalid calculation was recorded: %+v", got)
	}
}

func TestCalculate_HistoryFailureStillReturnsResult(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := history.New(failingKV{}, history.Options{Logger: logger})
	svc := NewService(Default(), store, logger)

	out, err := svc.Calculate("percentage-calculator", inputs("percent", "10", "value", "50"))
	if err != nil {
		t.Fatalf("history failure leaked into calculation: %v", err)
	}
	if out.Result != "10% of 50 is 5" {
		t.Errorf("result = %q", out.Result)
	}
	if out.Entry.ID == "" {
		t.Error("expected constructed entry even when not persisted")
	}

	recent, err := svc.Recent("percentage-calculator")
	if err != nil || len(recent) != 0 {
		t.Errorf("Recent() = %v, %v; want empty, nil", recent, err)
	}
}

func TestRecent_KeepsCapAndOrder(t *testing.T) {
	svc, store := newTestService(t)
	for i := 1; i <= store.Cap()+3; i++ {
		if _, err := svc.Calculate("percentage-calculator", inputs("percent", "1", "value", string(rune('0'+i%10)))); err != nil {
			t.Fatalf("calculate %d: %v", i, err)
		}
	}
	recent, err := svc.Recent("percentage-calculator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != store.Cap() {
		t.Fatalf("expected %d entries, got %d", store.Cap(), len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i-1].CreatedAt <= recent[i].CreatedAt {
			t.Errorf("entries %d and %d out of order", i-1, i)
		}
	}
}

func TestRecentAndClear_UnknownCalculator(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Recent("nope"); !errors.Is(err, ErrUnknownCalculator) {
		t.Errorf("Recent: expected ErrUnknownCalculator, got %v", err)
	}
	if err := svc.Clear("nope"); !errors.Is(err, ErrUnknownCalculator) {
		t.Errorf("Clear: expected ErrUnknownCalculator, got %v", err)
	}
}

func TestClear_OnlyTouchesOneCalculator(t *testing.T) {
	svc, _ := newTestService(t)
	mustCalc := func(id string, in *history.Inputs) {
		t.Helper()
		if _, err := svc.Calculate(id, in); err != nil {
			t.Fatalf("%s: %v", id, err)
		}
	}
	mustCalc("tip-calculator", inputs("bill", "20"))
	mustCalc("bmi-calculator", inputs("weight", "60", "height", "165"))

	if err := svc.Clear("tip-calculator"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	tip, _ := svc.Recent("tip-calculator")
	bmi, _ := svc.Recent("bmi-calculator")
	if len(tip) != 0 || len(bmi) != 1 {
		t.Errorf("after clear: tip=%d bmi=%d, want 0 and 1", len(tip), len(bmi))
	}
}
