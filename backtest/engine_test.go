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
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quantfolio/qf-api/backtest"
	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/strategies"
	"github.com/shopspring/decimal"
)

type stubSource struct {
	days   []time.Time
	prices map[data.PriceKey]decimal.Decimal
}

func (s *stubSource) TradingDays(_ context.Context, _ time.Time, _ time.Time) ([]time.Time, error) {
	return s.days, nil
}

func (s *stubSource) PriceLookup(_ context.Context, _ []data.AssetID, _ time.Time, _ time.Time) (map[data.PriceKey]decimal.Decimal, error) {
	return s.prices, nil
}

// scripted replays a fixed action list per date
type scripted struct {
	assets []data.AssetID
	script map[time.Time][]backtest.Action
}

func (s *scripted) OnDay(ctx *backtest.Context) []backtest.Action {
	return s.script[ctx.Date]
}

func (s *scripted) AssetIDs() []data.AssetID {
	return s.assets
}

func (s *scripted) Parameters() map[string]any {
	return map[string]any{"strategy": "scripted"}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func priceKey(id data.AssetID, t time.Time) data.PriceKey {
	return data.PriceKey{AssetID: id, Date: t}
}

var _ = Describe("Engine", func() {
	var (
		d1, d2, d3 time.Time
		source     *stubSource
		engine     *backtest.Engine
	)

	BeforeEach(func() {
		d1 = day(2021, time.March, 1)
		d2 = day(2021, time.March, 2)
		d3 = day(2021, time.March, 3)
		source = &stubSource{
			days: []time.Time{d1, d2, d3},
			prices: map[data.PriceKey]decimal.Decimal{
				priceKey(1, d1): decimal.NewFromInt(100),
				priceKey(1, d2): decimal.NewFromInt(110),
				priceKey(1, d3): decimal.NewFromInt(120),
			},
		}
		engine = backtest.NewEngine(source)
	})

	Describe("when running buy-and-hold in a rising market", func() {
		var result *backtest.Result

		BeforeEach(func() {
			strat, err := strategies.NewBuyAndHold(
				[]data.AssetID{1}, nil, decimal.NewFromInt(1000))
			Expect(err).To(BeNil())

			result, err = engine.Run(context.Background(), strat, d1, d3, decimal.NewFromInt(1000))
			Expect(err).To(BeNil())
		})

		It("should record one snapshot per trading day", func() {
			Expect(result.History).To(HaveLen(3))
		})

		It("should buy 10 shares on the first day", func() {
			Expect(result.History[0].Holdings[1].InexactFloat64()).Should(BeNumerically("~", 10))
		})

		It("should value the portfolio at each day's close", func() {
			Expect(result.History[0].Value.InexactFloat64()).Should(BeNumerically("~", 1000))
			Expect(result.History[1].Value.InexactFloat64()).Should(BeNumerically("~", 1100))
			Expect(result.History[2].Value.InexactFloat64()).Should(BeNumerically("~", 1200))
		})

		It("should compute total returns against invested cash", func() {
			Expect(result.TotalInvested.InexactFloat64()).Should(BeNumerically("~", 1000))
			Expect(result.TotalReturnAbs.InexactFloat64()).Should(BeNumerically("~", 200))
			Expect(result.TotalReturnPct.InexactFloat64()).Should(BeNumerically("~", 0.20))
		})

		It("should count days and investments", func() {
			Expect(result.Metrics.DaysAnalysed).To(Equal(3))
			Expect(result.Metrics.InvestmentsMade).To(Equal(1))
		})

		It("should keep drawdown non-positive and volatility non-negative", func() {
			Expect(result.Metrics.MaxDrawdown.InexactFloat64()).Should(BeNumerically("<=", 0))
			Expect(result.Metrics.Volatility.InexactFloat64()).Should(BeNumerically(">=", 0))
			Expect(result.Metrics.MaxDrawdownDurationDays).Should(BeNumerically(">=", 0))
		})

		It("should conserve cash flow", func() {
			sum := decimal.Zero
			for _, snap := range result.History {
				sum = sum.Add(snap.CashFlow)
			}
			Expect(result.TotalInvested.Equal(sum)).To(BeTrue())
		})
	})

	Describe("when a sell exceeds holdings", func() {
		It("should fail fast with no result", func() {
			strat := &scripted{
				assets: []data.AssetID{1},
				script: map[time.Time][]backtest.Action{
					d1: {backtest.SellAction{AssetID: 1, Quantity: decimal.NewFromInt(10)}},
				},
			}
			result, err := engine.Run(context.Background(), strat, d1, d3, decimal.Zero)
			Expect(err).To(MatchError(backtest.ErrOversell))
			Expect(result).To(BeNil())
		})
	})

	Describe("when an action has no price for the day", func() {
		It("should skip the action silently", func() {
			strat := &scripted{
				assets: []data.AssetID{2},
				script: map[time.Time][]backtest.Action{
					d1: {backtest.BuyAction{AssetID: 2, DollarAmount: decimal.NewFromInt(1000)}},
				},
			}
			result, err := engine.Run(context.Background(), strat, d1, d3, decimal.NewFromInt(1000))
			Expect(err).To(BeNil())
			Expect(result.History[0].Holdings).To(BeEmpty())
			Expect(result.History[0].CashFlow.IsZero()).To(BeTrue())
			Expect(result.History[0].Value.IsZero()).To(BeTrue())
		})
	})

	Describe("when cash flows in mid-run", func() {
		It("should treat contributions as start-of-day for daily returns", func() {
			// day 2 price chosen so the portfolio is worth $1,150 after
			// a $100 top-up: (10 + 100/105) * 105 = 1150
			source.prices[priceKey(1, d2)] = decimal.NewFromInt(105)
			strat := &scripted{
				assets: []data.AssetID{1},
				script: map[time.Time][]backtest.Action{
					d1: {backtest.BuyAction{AssetID: 1, DollarAmount: decimal.NewFromInt(1000)}},
					d2: {backtest.BuyAction{AssetID: 1, DollarAmount: decimal.NewFromInt(100)}},
				},
			}
			result, err := engine.Run(context.Background(), strat, d1, d3, decimal.Zero)
			Expect(err).To(BeNil())
			Expect(result.History[1].Value.InexactFloat64()).Should(BeNumerically("~", 1150))
			Expect(result.History[1].DailyReturnAbs.InexactFloat64()).Should(BeNumerically("~", 50))
			Expect(result.History[1].DailyReturnPct.InexactFloat64()).Should(BeNumerically("~", 50.0/1100.0, 1e-9))
		})
	})

	Describe("when the strategy never invests", func() {
		It("should fall back to initial cash as the investment base", func() {
			strat := &scripted{assets: []data.AssetID{1}}
			result, err := engine.Run(context.Background(), strat, d1, d3, decimal.NewFromInt(5000))
			Expect(err).To(BeNil())
			Expect(result.TotalInvested.InexactFloat64()).Should(BeNumerically("~", 5000))
		})
	})

	Describe("when the caller cancels", func() {
		It("should return a typed cancellation error and no result", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			strat := &scripted{assets: []data.AssetID{1}}
			result, err := engine.Run(ctx, strat, d1, d3, decimal.Zero)
			Expect(err).To(MatchError(backtest.ErrCancelled))
			Expect(result).To(BeNil())
		})
	})

	Describe("when there are no trading days", func() {
		It("should report the empty calendar", func() {
			source.days = nil
			strat := &scripted{assets: []data.AssetID{1}}
			_, err := engine.Run(context.Background(), strat, d1, d3, decimal.Zero)
			Expect(err).To(MatchError(data.ErrNoTradingDays))
		})
	})
})
