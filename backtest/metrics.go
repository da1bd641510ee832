// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// TradingDaysPerYear is the annualization base for daily series
const TradingDaysPerYear = 252

// AnnualRiskFreeRate approximates the 10-year treasury yield
var AnnualRiskFreeRate = decimal.NewFromFloat(0.04)

var (
	tradingDays       = decimal.NewFromInt(TradingDaysPerYear)
	sqrtTradingDays   = decimal.NewFromFloat(math.Sqrt(TradingDaysPerYear))
	dailyRiskFreeRate = AnnualRiskFreeRate.Div(tradingDays)
)

func mean(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.NewFromInt(int64(len(xs))))
}

// sampleStdDev computes the n-1 standard deviation. The square root is
// taken through float64; cent-level accuracy is preserved because the
// variance itself is computed in fixed point.
func sampleStdDev(xs []decimal.Decimal) decimal.Decimal {
	n := len(xs)
	if n < 2 {
		return decimal.Zero
	}
	mu := mean(xs)
	sumSq := decimal.Zero
	for _, x := range xs {
		d := x.Sub(mu)
		sumSq = sumSq.Add(d.Mul(d))
	}
	variance := sumSq.Div(decimal.NewFromInt(int64(n - 1)))
	f, _ := variance.Float64()
	return decimal.NewFromFloat(math.Sqrt(f))
}

// SharpeRatio annualizes the risk-adjusted return of a daily
// fractional return series. Fewer than two observations or a flat
// series yields zero.
func SharpeRatio(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}
	sigma := sampleStdDev(returns)
	if sigma.IsZero() {
		return decimal.Zero
	}
	mu := mean(returns)
	return mu.Sub(dailyRiskFreeRate).Div(sigma).Mul(sqrtTradingDays)
}

// AnnualizedVolatility is the n-1 standard deviation of daily returns
// scaled by the square root of the trading year.
func AnnualizedVolatility(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}
	return sampleStdDev(returns).Mul(sqrtTradingDays)
}

// MaxDrawdown finds the largest peak-to-trough decline of a portfolio
// value series. The duration is measured in calendar days from the
// peak to the trough that realized the drawdown. Drawdowns are
// computed on actual values, never reconstructed from returns.
func MaxDrawdown(values []decimal.Decimal, dates []time.Time) (decimal.Decimal, int) {
	if len(values) == 0 {
		return decimal.Zero, 0
	}

	maxDrawdown := decimal.Zero
	duration := 0

	runningMax := values[0]
	runningMaxDate := dates[0]

	for i := range values {
		if values[i].GreaterThan(runningMax) {
			runningMax = values[i]
			runningMaxDate = dates[i]
		}
		if runningMax.IsPositive() {
			drawdown := values[i].Sub(runningMax).Div(runningMax)
			if drawdown.LessThan(maxDrawdown) {
				maxDrawdown = drawdown
				duration = int(dates[i].Sub(runningMaxDate).Hours() / 24)
			}
		}
	}

	return maxDrawdown, duration
}
