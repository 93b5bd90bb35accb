package calculator

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

func tipCalculator() *Calculator {
	return &Calculator{
		ID:       "tip-calculator",
		Name:     "Tip Calculator",
		Category: Financial,
		Fields: []Field{
			number("bill", "Bill amount", "$", ""),
			number("tipPercent", "Tip", "%", "15"),
			number("people", "Split between", "people", "1"),
		},
		compute: func(a Args) (string, error) {
			bill, pct, people := a.Num("bill"), a.Num("tipPercent"), a.Num("people")
			if bill < 0 || pct < 0 {
				return "", invalid("bill and tip must not be negative")
			}
			if people < 1 || people != math.Trunc(people) {
				return "", invalid("people must be a whole number of at least 1")
			}
			tip := percentOf(dec(bill), pct)
			total := dec(bill).Add(tip)
			each := total.Div(decimal.NewFromFloat(people))
			if people == 1 {
				return fmt.Sprintf("Tip: %s, Total: %s", money(tip), money(total)), nil
			}
			return fmt.Sprintf("Tip: %s, Total: %s, Per person: %s", money(tip), money(total), money(each)), nil
		},
	}
}

func loanCalculator() *Calculator {
	return &Calculator{
		ID:       "loan-calculator",
		Name:     "Loan Calculator",
		Category: Financial,
		Fields: []Field{
			number("principal", "Loan amount", "$", ""),
			number("rate", "Annual interest rate", "%", ""),
			number("years", "Term", "years", "30"),
		},
		compute: func(a Args) (string, error) {
			principal, rate, years := a.Num("principal"), a.Num("rate"), a.Num("years")
			if principal <= 0 {
				return "", invalid("principal must be positive")
			}
			if rate < 0 {
				return "", invalid("rate must not be negative")
			}
			n := math.Round(years * 12)
			if n < 1 {
				return "", invalid("term must be at least one month")
			}

			var payment decimal.Decimal
			r := rate / 100 / 12
			if r == 0 {
				payment = dec(principal).Div(dec(n))
			} else {
				growth := math.Pow(1+r, n)
				if !finite(growth) {
					return "", invalid("rate and term are out of range")
				}
				factor, err := checked(r * growth / (growth - 1))
				if err != nil {
					return "", err
				}
				payment = dec(principal).Mul(dec(factor))
			}
			payment = payment.Round(2)
			total := payment.Mul(dec(n))
			interest := total.Sub(dec(principal))
			return fmt.Sprintf("Monthly payment: %s, Total interest: %s", money(payment), money(interest)), nil
		},
	}
}

func compoundInterestCalculator() *Calculator {
	return &Calculator{
		ID:       "compound-interest-calculator",
		Name:     "Compound Interest Calculator",
		Category: Financial,
		Fields: []Field{
			number("principal", "Initial deposit", "$", ""),
			number("rate", "Annual interest rate", "%", ""),
			number("years", "Years", "years", ""),
			number("compounds", "Compounds per year", "", "12"),
		},
		compute: func(a Args) (string, error) {
			principal, rate, years, compounds := a.Num("principal"), a.Num("rate"), a.Num("years"), a.Num("compounds")
			if principal < 0 || rate < 0 || years < 0 {
				return "", invalid("principal, rate and years must not be negative")
			}
			if compounds < 1 || compounds != math.Trunc(compounds) {
				return "", invalid("compounds must be a whole number of at least 1")
			}
			growth := math.Pow(1+rate/100/compounds, compounds*years)
			if !finite(growth) {
				return "", invalid("rate and term are out of range")
			}
			amount := dec(principal).Mul(dec(growth))
			earned := amount.Sub(dec(principal))
			return fmt.Sprintf("Final amount: %s, Interest earned: %s", money(amount), money(earned)), nil
		},
	}
}

func simpleInterestCalculator() *Calculator {
	return &Calculator{
		ID:       "simple-interest-calculator",
		Name:     "Simple Interest Calculator",
		Category: Financial,
		Fields: []Field{
			number("principal", "Principal", "$", ""),
			number("rate", "Annual interest rate", "%", ""),
			number("years", "Years", "years", ""),
		},
		compute: func(a Args) (string, error) {
			principal, rate, years := a.Num("principal"), a.Num("rate"), a.Num("years")
			if principal < 0 || rate < 0 || years < 0 {
				return "", invalid("principal, rate and years must not be negative")
			}
			interest := percentOf(dec(principal), rate).Mul(dec(years))
			total := dec(principal).Add(interest)
			return fmt.Sprintf("Interest: %s, Total: %s", money(interest), money(total)), nil
		},
	}
}

func discountCalculator() *Calculator {
	return &Calculator{
		ID:       "discount-calculator",
		Name:     "Discount Calculator",
		Category: Financial,
		Fields: []Field{
			number("price", "Original price", "$", ""),
			number("discount", "Discount", "%", ""),
		},
		compute: func(a Args) (string, error) {
			price, discount := a.Num("price"), a.Num("discount")
			if price < 0 {
				return "", invalid("price must not be negative")
			}
			if discount < 0 || discount > 100 {
				return "", invalid("discount must be between 0 and 100")
			}
			saved := percentOf(dec(price), discount)
			final := dec(price).Sub(saved)
			return fmt.Sprintf("Final price: %s, You save: %s", money(final), money(saved)), nil
		},
	}
}
