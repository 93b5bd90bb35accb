package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Value is a form input: either a string or a number.
type Value struct {
	str   string
	num   float64
	isNum bool
}

// String wraps a text input.
func String(s string) Value {
	return Value{str: s}
}

// Number wraps a numeric input.
func Number(f float64) Value {
	return Value{num: f, isNum: true}
}

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool {
	return v.isNum
}

// Float returns the numeric value. Text values are parsed; ok is false when
// the text is not a number.
func (v Value) Float() (f float64, ok bool) {
	if v.isNum {
		return v.num, true
	}
	f, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v Value) String() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isNum {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return fmt.Errorf("empty input value")
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case bytes.Equal(data, []byte("null")):
		*v = String("")
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("input value must be a string or number: %w", err)
		}
		*v = Number(f)
	}
	return nil
}

func (v Value) MarshalYAML() (interface{}, error) {
	if v.isNum {
		return v.num, nil
	}
	return v.str, nil
}

// Inputs holds form values in the order the form declares them.
type Inputs = orderedmap.OrderedMap[string, Value]

// NewInputs returns an empty Inputs.
func NewInputs() *Inputs {
	return orderedmap.New[string, Value]()
}

// Entry is one recorded calculation. Entries are never mutated after creation.
type Entry struct {
	ID           string  `json:"id" yaml:"id"`
	CalculatorID string  `json:"calculatorId" yaml:"calculatorId"`
	Inputs       *Inputs `json:"inputs" yaml:"inputs"`
	Result       string  `json:"result" yaml:"result"`
	CreatedAt    int64   `json:"createdAt" yaml:"createdAt"`
}

// Time returns CreatedAt as a time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// InputPairs flattens Inputs into "name=value" strings, in form order.
func (e Entry) InputPairs() []string {
	if e.Inputs == nil {
		return nil
	}
	pairs := make([]string, 0, e.Inputs.Len())
	for p := e.Inputs.Oldest(); p != nil; p = p.Next() {
		pairs = append(pairs, p.Key+"="+p.Value.String())
	}
	return pairs
}
