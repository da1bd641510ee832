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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

var (
	// ErrOversell indicates a sell action exceeded current holdings.
	// It is fatal for the run; no partial result is returned.
	ErrOversell = errors.New("cannot sell more than owned")

	// ErrCancelled indicates the caller's context expired mid-run
	ErrCancelled = errors.New("backtest run cancelled")
)

// PriceSource supplies the trading-day calendar and the bulk price
// table the engine runs against. data.Service is the production
// implementation.
type PriceSource interface {
	TradingDays(ctx context.Context, begin time.Time, end time.Time) ([]time.Time, error)
	PriceLookup(ctx context.Context, assetIDs []data.AssetID, begin time.Time, end time.Time) (map[data.PriceKey]decimal.Decimal, error)
}

// Engine drives a strategy day by day through the trading calendar.
// All I/O happens up front in Run; the day loop itself is pure.
type Engine struct {
	prices PriceSource
}

func NewEngine(prices PriceSource) *Engine {
	return &Engine{prices: prices}
}

// Run executes the strategy over [start, end] and computes aggregate
// returns and risk metrics. initialCash is only used as the investment
// base when the strategy produces no net cash flow.
func (e *Engine) Run(ctx context.Context, strat Strategy, start time.Time, end time.Time, initialCash decimal.Decimal) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.Run")
	defer span.End()

	start = data.Day(start)
	end = data.Day(end)

	subLog := log.With().
		Time("StartDate", start).
		Time("EndDate", end).
		Fields(map[string]interface{}{"Parameters": strat.Parameters()}).
		Logger()
	subLog.Info().Msg("running backtest")

	tradingDays, err := e.prices.TradingDays(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(tradingDays) == 0 {
		return nil, data.ErrNoTradingDays
	}

	prices, err := e.prices.PriceLookup(ctx, strat.AssetIDs(), start, end)
	if err != nil {
		return nil, err
	}

	holdings := make(map[data.AssetID]decimal.Decimal)
	history := make([]*DailySnapshot, 0, len(tradingDays))
	totalActions := 0

	for _, day := range tradingDays {
		if err := ctx.Err(); err != nil {
			subLog.Warn().Time("Day", day).Msg("backtest cancelled")
			return nil, ErrCancelled
		}

		dayCtx := &Context{
			Date:     day,
			Holdings: copyHoldings(holdings),
			Prices:   prices,
			History:  append([]*DailySnapshot{}, history...),
		}

		actions := strat.OnDay(dayCtx)
		totalActions += len(actions)

		cashFlow, err := executeActions(actions, day, holdings, prices)
		if err != nil {
			subLog.Error().Stack().Err(err).Time("Day", day).Msg("action execution failed")
			return nil, err
		}

		value := decimal.Zero
		for id, shares := range holdings {
			if price, ok := prices[data.PriceKey{AssetID: id, Date: day}]; ok {
				value = value.Add(shares.Mul(price))
			}
		}

		history = append(history, &DailySnapshot{
			Date:     day,
			Value:    value,
			Holdings: copyHoldings(holdings),
			CashFlow: cashFlow,
		})
	}

	computeDailyReturns(history)
	return summarize(history, totalActions, start, end, initialCash), nil
}

func copyHoldings(holdings map[data.AssetID]decimal.Decimal) map[data.AssetID]decimal.Decimal {
	dup := make(map[data.AssetID]decimal.Decimal, len(holdings))
	for k, v := range holdings {
		dup[k] = v
	}
	return dup
}

// executeActions applies a day's trades to holdings and returns the
// net cash flow. Actions with no price for the day are skipped; a sell
// exceeding holdings aborts the run.
func executeActions(actions []Action, day time.Time, holdings map[data.AssetID]decimal.Decimal, prices map[data.PriceKey]decimal.Decimal) (decimal.Decimal, error) {
	cashFlow := decimal.Zero
	for _, action := range actions {
		price, ok := prices[data.PriceKey{AssetID: action.Asset(), Date: day}]
		if !ok {
			log.Debug().Int64("AssetID", int64(action.Asset())).Time("Day", day).Msg("no price for asset; skipping action")
			continue
		}

		switch a := action.(type) {
		case BuyAction:
			shares := a.DollarAmount.Div(price)
			holdings[a.AssetID] = holdings[a.AssetID].Add(shares)
			cashFlow = cashFlow.Add(a.DollarAmount)
		case SellAction:
			if a.Quantity.GreaterThan(holdings[a.AssetID]) {
				return decimal.Zero, fmt.Errorf("%w: asset %d owns %s, sell of %s requested",
					ErrOversell, a.AssetID, holdings[a.AssetID], a.Quantity)
			}
			holdings[a.AssetID] = holdings[a.AssetID].Sub(a.Quantity)
			cashFlow = cashFlow.Sub(a.Quantity.Mul(price))
		}
	}
	return cashFlow, nil
}

// computeDailyReturns fills the return fields of a completed history.
// Cash flows are treated as occurring at the start of day, before the
// market moves, so new contributions never inflate the day's return.
func computeDailyReturns(history []*DailySnapshot) {
	for i := 1; i < len(history); i++ {
		startOfDay := history[i-1].Value.Add(history[i].CashFlow)
		history[i].DailyReturnAbs = history[i].Value.Sub(startOfDay)
		if startOfDay.IsPositive() {
			history[i].DailyReturnPct = history[i].DailyReturnAbs.Div(startOfDay)
		}
	}
}

func summarize(history []*DailySnapshot, totalActions int, start time.Time, end time.Time, initialCash decimal.Decimal) *Result {
	values := make([]decimal.Decimal, 0, len(history))
	dates := make([]time.Time, 0, len(history))
	returns := make([]decimal.Decimal, 0, len(history))
	totalInvested := decimal.Zero

	for i, snap := range history {
		values = append(values, snap.Value)
		dates = append(dates, snap.Date)
		if i > 0 {
			returns = append(returns, snap.DailyReturnPct)
		}
		totalInvested = totalInvested.Add(snap.CashFlow)
	}

	if totalInvested.IsZero() {
		totalInvested = initialCash
	}

	finalValue := values[len(values)-1]
	totalReturnAbs := finalValue.Sub(totalInvested)
	totalReturnPct := decimal.Zero
	if !totalInvested.IsZero() {
		totalReturnPct = totalReturnAbs.Div(totalInvested)
	}

	avgDailyReturn := decimal.Zero
	if len(history) > 0 {
		avgDailyReturn = totalReturnPct.Div(decimal.NewFromInt(int64(len(history))))
	}

	peak := values[0]
	trough := values[0]
	for _, v := range values[1:] {
		if v.GreaterThan(peak) {
			peak = v
		}
		if v.LessThan(trough) {
			trough = v
		}
	}

	maxDrawdown, duration := MaxDrawdown(values, dates)

	return &Result{
		StartDate:      start,
		EndDate:        end,
		TotalInvested:  totalInvested,
		FinalValue:     finalValue,
		TotalReturnPct: totalReturnPct,
		TotalReturnAbs: totalReturnAbs,
		AvgDailyReturn: avgDailyReturn,
		Metrics: &Metrics{
			Sharpe:                  SharpeRatio(returns),
			MaxDrawdown:             maxDrawdown,
			MaxDrawdownDurationDays: duration,
			Volatility:              AnnualizedVolatility(returns),
			DaysAnalysed:            len(history),
			InvestmentsMade:         totalActions,
			PeakValue:               peak,
			TroughValue:             trough,
		},
		History: history,
	}
}
