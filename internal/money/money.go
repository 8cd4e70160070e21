package money

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Tolerance is the largest difference treated as equal when comparing amounts.
const Tolerance = 0.005

// Sum складывает суммы в десятичной арифметике.
func Sum(values ...float64) float64 {
	total := lo.Reduce(values, func(acc decimal.Decimal, value float64, _ int) decimal.Decimal {
		return acc.Add(decimal.NewFromFloat(value))
	}, decimal.Zero)
	return total.InexactFloat64()
}

// SumBy складывает значения, полученные из элементов коллекции.
func SumBy[T any](items []T, amount func(T) float64) float64 {
	return Sum(lo.Map(items, func(item T, _ int) float64 { return amount(item) })...)
}

// Sub вычитает b из a без накопления ошибки округления.
func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}

// Percent возвращает part/whole*100 с округлением до двух знаков; 0 при нулевом whole.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	ratio := decimal.NewFromFloat(part).Div(decimal.NewFromFloat(whole)).Mul(decimal.NewFromInt(100))
	return ratio.Round(2).InexactFloat64()
}

// Equal сравнивает суммы с допуском Tolerance.
func Equal(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(Tolerance))
}
