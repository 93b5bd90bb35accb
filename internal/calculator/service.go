package calculator

import (
	"fmt"
	"log/slog"

	"github.com/kalambet/calcdeck/internal/history"
)

// Recorder is the slice of the history store the service needs.
type Recorder interface {
	Load(calculatorID string) []history.Entry
	Record(calculatorID string, inputs *history.Inputs, result string) history.Entry
	Clear(calculatorID string)
}

// Outcome is the result of one successful calculation.
type Outcome struct {
	Calculator *Calculator   `json:"-"`
	Result     string        `json:"result"`
	Entry      history.Entry `json:"entry"`
}

// Service runs calculators and records each successful result.
type Service struct {
	catalog *Catalog
	history Recorder
	logger  *slog.Logger
}

func NewService(catalog *Catalog, rec Recorder, logger *slog.Logger) *Service {
	if catalog == nil {
		catalog = Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: catalog, history: rec, logger: logger}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Calculate evaluates calculatorID with raw inputs. Invalid inputs are
// reported and nothing is recorded. Recording is best effort: a history
// failure never turns a successful calculation into an error.
func (s *Service) Calculate(calculatorID string, raw *history.Inputs) (Outcome, error) {
	calc, ok := s.catalog.Lookup(calculatorID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownCalculator, calculatorID)
	}
	result, inputs, err := calc.Compute(raw)
	if err != nil {
		return Outcome{}, err
	}
	entry := s.history.Record(calc.ID, inputs, result)
	s.logger.Debug("calculated", "calculator", calc.ID, "result", result)
	return Outcome{Calculator: calc, Result: result, Entry: entry}, nil
}

// Recent returns the calculator's history, most recent first.
func (s *Service) Recent(calculatorID string) ([]history.Entry, error) {
	if _, ok := s.catalog.Lookup(calculatorID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCalculator, calculatorID)
	}
	return s.history.Load(calculatorID), nil
}

// Clear drops the calculator's history.
func (s *Service) Clear(calculatorID string) error {
	if _, ok := s.catalog.Lookup(calculatorID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCalculator, calculatorID)
	}
	s.history.Clear(calculatorID)
	return nil
}
