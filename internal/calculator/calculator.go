// Package calculator holds the closed-form calculators and the service that
// runs them and records their results into history.
package calculator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/calcdeck/internal/history"
)

var (
	// ErrUnknownCalculator is returned for an id that is not in the catalog.
	ErrUnknownCalculator = errors.New("unknown calculator")
	// ErrInvalidInput is returned when inputs are missing, malformed or out of range.
	ErrInvalidInput = errors.New("invalid input")
)

type Category string

const (
	Financial  Category = "financial"
	Health     Category = "health"
	Math       Category = "math"
	Conversion Category = "conversion"
)

type FieldKind string

const (
	KindNumber FieldKind = "number"
	KindChoice FieldKind = "choice"
)

// Field is one form input.
type Field struct {
	Name    string    `json:"name"`
	Label   string    `json:"label"`
	Kind    FieldKind `json:"kind"`
	Unit    string    `json:"unit,omitempty"`
	Default string    `json:"default,omitempty"`
	Options []string  `json:"options,omitempty"`
}

// Calculator is a single closed-form formula with its form definition.
type Calculator struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Fields   []Field  `json:"fields"`

	compute func(Args) (string, error)
}

// Args gives a compute function typed access to validated inputs.
type Args struct {
	numbers map[string]float64
	choices map[string]string
}

func (a Args) Num(name string) float64 {
	return a.numbers[name]
}

func (a Args) Choice(name string) string {
	return a.choices[name]
}

// Catalog is an immutable set of calculators keyed by id.
type Catalog struct {
	byID map[string]*Calculator
	all  []*Calculator
}

// NewCatalog builds a catalog. Duplicate ids are a programming error.
func NewCatalog(calcs ...*Calculator) *Catalog {
	c := &Catalog{byID: make(map[string]*Calculator, len(calcs))}
	for _, calc := range calcs {
		if _, dup := c.byID[calc.ID]; dup {
			panic(fmt.Sprintf("calculator: duplicate id %q", calc.ID))
		}
		c.byID[calc.ID] = calc
		c.all = append(c.all, calc)
	}
	sort.SliceStable(c.all, func(i, j int) bool {
		if c.all[i].Category != c.all[j].Category {
			return c.all[i].Category < c.all[j].Category
		}
		return c.all[i].Name < c.all[j].Name
	})
	return c
}

// Default returns the built-in calculators.
func Default() *Catalog {
	return NewCatalog(
		tipCalculator(),
		loanCalculator(),
		compoundInterestCalculator(),
		simpleInterestCalculator(),
		discountCalculator(),
		bmiCalculator(),
		percentageCalculator(),
		slopeCalculator(),
		temperatureConverter(),
		lengthConverter(),
	)
}

func (c *Catalog) Lookup(id string) (*Calculator, bool) {
	calc, ok := c.byID[id]
	return calc, ok
}

// All returns calculators ordered by category, then name.
func (c *Catalog) All() []*Calculator {
	out := make([]*Calculator, len(c.all))
	copy(out, c.all)
	return out
}

// Compute validates raw inputs against the form and evaluates the formula.
// The returned Inputs are normalized: form order, numbers as numbers,
// defaults filled in.
func (calc *Calculator) Compute(raw *history.Inputs) (string, *history.Inputs, error) {
	args, normalized, err := calc.bind(raw)
	if err != nil {
		return "", nil, err
	}
	result, err := calc.compute(args)
	if err != nil {
		return "", nil, err
	}
	return result, normalized, nil
}

func (calc *Calculator) bind(raw *history.Inputs) (Args, *history.Inputs, error) {
	if raw == nil {
		raw = history.NewInputs()
	}
	known := make(map[string]bool, len(calc.Fields))
	for _, f := range calc.Fields {
		known[f.Name] = true
	}
	for p := raw.Oldest(); p != nil; p = p.Next() {
		if !known[p.Key] {
			return Args{}, nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidInput, calc.ID, p.Key)
		}
	}

	args := Args{numbers: make(map[string]float64), choices: make(map[string]string)}
	normalized := history.NewInputs()
	for _, f := range calc.Fields {
		v, ok := raw.Get(f.Name)
		if !ok || strings.TrimSpace(v.String()) == "" {
			if f.Default == "" {
				return Args{}, nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, f.Name)
			}
			v = history.String(f.Default)
		}

		switch f.Kind {
		case KindNumber:
			n, ok := v.Float()
			if !ok || !finite(n) {
				return Args{}, nil, fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidInput, f.Name, v.String())
			}
			args.numbers[f.Name] = n
			normalized.Set(f.Name, history.Number(n))
		case KindChoice:
			choice, err := matchOption(f, v.String())
			if err != nil {
				return Args{}, nil, err
			}
			args.choices[f.Name] = choice
			normalized.Set(f.Name, history.String(choice))
		}
	}
	return args, normalized, nil
}

func matchOption(f Field, value string) (string, error) {
	for _, opt := range f.Options {
		if strings.EqualFold(opt, strings.TrimSpace(value)) {
			return opt, nil
		}
	}
	return "", fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidInput, f.Name, strings.Join(f.Options, "|"), value)
}

func number(name, label, unit, def string) Field {
	return Field{Name: name, Label: label, Kind: KindNumber, Unit: unit, Default: def}
}

func choice(name, label, def string, options ...string) Field {
	return Field{Name: name, Label: label, Kind: KindChoice, Default: def, Options: options}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
