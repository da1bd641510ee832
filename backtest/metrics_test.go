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

package backtest_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quantfolio/qf-api/backtest"
	"github.com/shopspring/decimal"
)

func dec(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(vals))
	for _, v := range vals {
		out = append(out, decimal.NewFromFloat(v))
	}
	return out
}

var _ = Describe("Metrics", func() {
	Describe("when calculating the sharpe ratio", func() {
		It("should be zero for fewer than two returns", func() {
			Expect(backtest.SharpeRatio(nil).IsZero()).To(BeTrue())
			Expect(backtest.SharpeRatio(dec(0.05)).IsZero()).To(BeTrue())
		})

		It("should be zero for a flat return series", func() {
			Expect(backtest.SharpeRatio(dec(0.01, 0.01, 0.01)).IsZero()).To(BeTrue())
		})

		It("should annualize by sqrt(252) with a 4% risk-free rate", func() {
			// mean 0.02, stdev 0.01, rf 0.04/252
			sharpe := backtest.SharpeRatio(dec(0.01, 0.02, 0.03))
			Expect(sharpe.InexactFloat64()).Should(BeNumerically("~", 31.497, 0.001))
		})
	})

	Describe("when calculating annualized volatility", func() {
		It("should be zero for fewer than two returns", func() {
			Expect(backtest.AnnualizedVolatility(dec(0.05)).IsZero()).To(BeTrue())
		})

		It("should scale the sample stdev by sqrt(252)", func() {
			vol := backtest.AnnualizedVolatility(dec(0.01, 0.02, 0.03))
			Expect(vol.InexactFloat64()).Should(BeNumerically("~", 0.1587450, 1e-6))
		})
	})

	Describe("when calculating max drawdown", func() {
		var dates []time.Time

		BeforeEach(func() {
			dates = nil
			start := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				dates = append(dates, start.AddDate(0, 0, i))
			}
		})

		It("should be zero for an empty series", func() {
			dd, duration := backtest.MaxDrawdown(nil, nil)
			Expect(dd.IsZero()).To(BeTrue())
			Expect(duration).To(Equal(0))
		})

		It("should be zero when values never fall", func() {
			dd, duration := backtest.MaxDrawdown(dec(100, 110, 120, 130, 140), dates)
			Expect(dd.IsZero()).To(BeTrue())
			Expect(duration).To(Equal(0))
		})

		It("should measure the decline from the running peak", func() {
			dd, duration := backtest.MaxDrawdown(dec(100, 120, 90, 130, 125), dates)
			Expect(dd.InexactFloat64()).Should(BeNumerically("~", -0.25))
			Expect(duration).To(Equal(1))
		})

		It("should track the deepest trough, not the first", func() {
			dd, duration := backtest.MaxDrawdown(dec(100, 120, 110, 60, 130), dates)
			Expect(dd.InexactFloat64()).Should(BeNumerically("~", -0.50))
			Expect(duration).To(Equal(2))
		})
	})
})
