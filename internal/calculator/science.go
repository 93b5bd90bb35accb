package calculator

import (
	"fmt"
	"math"
)

func bmiCalculator() *Calculator {
	return &Calculator{
		ID:       "bmi-calculator",
		Name:     "BMI Calculator",
		Category: Health,
		Fields: []Field{
			number("weight", "Weight", "kg", ""),
			number("height", "Height", "cm", ""),
		},
		compute: func(a Args) (string, error) {
			weight, height := a.Num("weight"), a.Num("height")
			if weight <= 0 || height <= 0 {
				return "", invalid("weight and height must be positive")
			}
			m := height / 100
			bmi, err := checked(weight / (m * m))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("BMI: %s (%s)", num(bmi, 1), bmiCategory(bmi)), nil
		},
	}
}

func bmiCategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal weight"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}

func percentageCalculator() *Calculator {
	return &Calculator{
		ID:       "percentage-calculator",
		Name:     "Percentage Calculator",
		Category: Math,
		Fields: []Field{
			number("percent", "Percent", "%", ""),
			number("value", "Of value", "", ""),
		},
		compute: func(a Args) (string, error) {
			pct, value := a.Num("percent"), a.Num("value")
			part, err := checked(pct * value / 100)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s%% of %s is %s", num(pct, 6), num(value, 6), num(part, 6)), nil
		},
	}
}

func slopeCalculator() *Calculator {
	return &Calculator{
		ID:       "slope-calculator",
		Name:     "Slope Calculator",
		Category: Math,
		Fields: []Field{
			number("x1", "x₁", "", ""),
			number("y1", "y₁", "", ""),
			number("x2", "x₂", "", ""),
			number("y2", "y₂", "", ""),
		},
		compute: func(a Args) (string, error) {
			x1, y1, x2, y2 := a.Num("x1"), a.Num("y1"), a.Num("x2"), a.Num("y2")
			if x1 == x2 && y1 == y2 {
				return "", invalid("the two points must differ")
			}
			if x1 == x2 {
				return fmt.Sprintf("Slope: undefined, x = %s", num(x1, 4)), nil
			}
			m, err := checked((y2 - y1) / (x2 - x1))
			if err != nil {
				return "", err
			}
			b, err := checked(y1 - m*x1)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Slope: %s, %s", num(m, 4), lineEquation(m, b)), nil
		},
	}
}

func lineEquation(m, b float64) string {
	var slope string
	switch num(m, 4) {
	case "0":
		return "y = " + num(b, 4)
	case "1":
		slope = "x"
	case "-1":
		slope = "-x"
	default:
		slope = num(m, 4) + "x"
	}
	switch {
	case num(b, 4) == "0":
		return "y = " + slope
	case b < 0:
		return fmt.Sprintf("y = %s - %s", slope, num(math.Abs(b), 4))
	default:
		return fmt.Sprintf("y = %s + %s", slope, num(b, 4))
	}
}
