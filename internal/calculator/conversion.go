package calculator

import "fmt"

var temperatureUnits = map[string]string{
	"C": "°C",
	"F": "°F",
	"K": " K",
}

func temperatureConverter() *Calculator {
	return &Calculator{
		ID:       "temperature-converter",
		Name:     "Temperature Converter",
		Category: Conversion,
		Fields: []Field{
			number("value", "Temperature", "", ""),
			choice("from", "From", "C", "C", "F", "K"),
			choice("to", "To", "F", "C", "F", "K"),
		},
		compute: func(a Args) (string, error) {
			value, from, to := a.Num("value"), a.Choice("from"), a.Choice("to")
			var celsius float64
			switch from {
			case "C":
				celsius = value
			case "F":
				celsius = (value - 32) * 5 / 9
			case "K":
				celsius = value - 273.15
			}
			if celsius < -273.15 {
				return "", invalid("temperature is below absolute zero")
			}
			var out float64
			switch to {
			case "C":
				out = celsius
			case "F":
				out = celsius*9/5 + 32
			case "K":
				out = celsius + 273.15
			}
			out, err := checked(out)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s%s = %s%s",
				num(value, 4), temperatureUnits[from], num(out, 2), temperatureUnits[to]), nil
		},
	}
}

// metersPer holds how many meters one unit spans.
var metersPer = map[string]float64{
	"mm": 0.001,
	"cm": 0.01,
	"m":  1,
	"km": 1000,
	"in": 0.0254,
	"ft": 0.3048,
	"yd": 0.9144,
	"mi": 1609.344,
}

var lengthUnits = []string{"mm", "cm", "m", "km", "in", "ft", "yd", "mi"}

func lengthConverter() *Calculator {
	return &Calculator{
		ID:       "length-converter",
		Name:     "Length Converter",
		Category: Conversion,
		Fields: []Field{
			number("value", "Length", "", ""),
			choice("from", "From", "m", lengthUnits...),
			choice("to", "To", "ft", lengthUnits...),
		},
		compute: func(a Args) (string, error) {
			value, from, to := a.Num("value"), a.Choice("from"), a.Choice("to")
			if value < 0 {
				return "", invalid("length must not be negative")
			}
			out, err := checked(value * metersPer[from] / metersPer[to])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s %s = %s %s", num(value, 6), from, num(out, 6), to), nil
		},
	}
}
