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

package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/quantfolio/qf-api/backtest"
	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/observability/opentelemetry"
	"github.com/quantfolio/qf-api/strategies"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

const (
	StrategyBuyAndHold = "buy_and_hold"
	StrategyDCA        = "dca"
	StrategyVA         = "va"
)

const (
	minBacktestRange = 7 // days
	maxBacktestYears = 10
)

// BacktestRequest is the JSON body of POST /v1/backtest. Tickers are
// informational; the engine keys on asset ids.
type BacktestRequest struct {
	Strategy    string             `json:"strategy"`
	AssetIDs    []data.AssetID     `json:"asset_ids"`
	Tickers     []string           `json:"tickers"`
	StartDate   common.Date        `json:"start_date"`
	EndDate     common.Date        `json:"end_date"`
	InitialCash float64            `json:"initial_cash"`
	Parameters  BacktestParameters `json:"parameters"`
}

type BacktestParameters struct {
	Allocation            map[string]float64 `json:"allocation,omitempty"`
	AmountPerPeriod       *float64           `json:"amount_per_period,omitempty"`
	Frequency             string             `json:"frequency,omitempty"`
	TargetIncrementAmount *float64           `json:"target_increment_amount,omitempty"`
}

// BacktestResponse is the envelope handed back over the wire
type BacktestResponse struct {
	BacktestID uuid.UUID        `json:"backtest_id"`
	Strategy   string           `json:"strategy"`
	Parameters map[string]any   `json:"parameters"`
	Data       *backtest.Result `json:"data"`
}

// Backtest validates the request, constructs the strategy, runs the
// engine, and best-effort persists the outcome. A persistence failure
// never corrupts the returned result.
func Backtest(ctx context.Context, req *BacktestRequest) (*BacktestResponse, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "services.Backtest")
	defer span.End()

	subLog := log.With().
		Str("Strategy", req.Strategy).
		Time("StartDate", req.StartDate.Time).
		Time("EndDate", req.EndDate.Time).
		Logger()

	if err := validateBacktest(ctx, req); err != nil {
		subLog.Info().Err(err).Msg("backtest request rejected")
		return nil, err
	}

	prices := data.NewService()
	strat, err := buildStrategy(ctx, req, prices)
	if err != nil {
		return nil, err
	}

	engine := backtest.NewEngine(prices)
	result, err := engine.Run(ctx, strat, req.StartDate.Time, req.EndDate.Time, decimal.NewFromFloat(req.InitialCash))
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("backtest run failed")
		return nil, err
	}

	resp := &BacktestResponse{
		BacktestID: uuid.New(),
		Strategy:   req.Strategy,
		Parameters: strat.Parameters(),
		Data:       result,
	}

	if err := SaveBacktest(ctx, req, resp); err != nil {
		subLog.Warn().Stack().Err(err).Str("BacktestID", resp.BacktestID.String()).Msg("could not persist backtest; returning result anyway")
	}

	return resp, nil
}

func validateBacktest(ctx context.Context, req *BacktestRequest) error {
	switch req.Strategy {
	case StrategyBuyAndHold, StrategyDCA, StrategyVA:
	default:
		return validationErrorf("unknown strategy %q", req.Strategy)
	}

	if len(req.AssetIDs) == 0 {
		return validationErrorf("at least one asset is required")
	}

	if req.InitialCash < 0 {
		return validationErrorf("initial_cash must not be negative")
	}

	start := data.Day(req.StartDate.Time)
	end := data.Day(req.EndDate.Time)
	today := data.Day(time.Now())

	if !start.Before(today) || !end.Before(today) {
		return validationErrorf("start_date and end_date must be in the past")
	}
	if !start.Before(end) {
		return validationErrorf("start_date must precede end_date")
	}
	if end.Before(start.AddDate(0, 0, minBacktestRange)) {
		return validationErrorf("date range must cover at least %d days", minBacktestRange)
	}
	if end.After(start.AddDate(maxBacktestYears, 0, 0)) {
		return validationErrorf("date range must not exceed %d years", maxBacktestYears)
	}

	for _, id := range req.AssetIDs {
		asset, err := data.GetAsset(ctx, id)
		if err != nil {
			if errors.Is(err, data.ErrAssetNotFound) {
				return validationErrorf("asset %d does not exist", id)
			}
			return err
		}

		avail, err := data.GetAvailability(ctx, id)
		if err != nil {
			if errors.Is(err, data.ErrNoPriceData) {
				return validationErrorf("asset %s has no price data", asset.Ticker)
			}
			return err
		}
		if start.Before(avail.FirstDate) || end.After(avail.LastDate) {
			return validationErrorf("asset %s only has data from %s to %s",
				asset.Ticker,
				avail.FirstDate.Format(common.DateFormat),
				avail.LastDate.Format(common.DateFormat))
		}
	}

	switch req.Strategy {
	case StrategyBuyAndHold:
		if err := validateAllocation(req); err != nil {
			return err
		}
	case StrategyDCA:
		if len(req.AssetIDs) != 1 {
			return validationErrorf("dca operates on exactly one asset")
		}
		if req.Parameters.AmountPerPeriod == nil || *req.Parameters.AmountPerPeriod <= 0 {
			return validationErrorf("dca requires a positive amount_per_period")
		}
		switch req.Parameters.Frequency {
		case strategies.FrequencyDaily, strategies.FrequencyWeekly, strategies.FrequencyMonthly:
		default:
			return validationErrorf("invalid frequency %q", req.Parameters.Frequency)
		}
	case StrategyVA:
		if len(req.AssetIDs) != 1 {
			return validationErrorf("va operates on exactly one asset")
		}
		if req.Parameters.TargetIncrementAmount == nil || *req.Parameters.TargetIncrementAmount < 0 {
			return validationErrorf("va requires a non-negative target_increment_amount")
		}
	}

	return nil
}

// validateAllocation keeps the allocation keys inside the asset_ids
// universe; every asset the engine will price has then passed the
// existence and availability checks above.
func validateAllocation(req *BacktestRequest) error {
	if len(req.Parameters.Allocation) == 0 {
		return nil
	}

	universe := make(map[data.AssetID]bool, len(req.AssetIDs))
	for _, id := range req.AssetIDs {
		universe[id] = true
	}

	for k := range req.Parameters.Allocation {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return validationErrorf("allocation key %q is not an asset id", k)
		}
		if !universe[data.AssetID(id)] {
			return validationErrorf("allocation asset %d is not listed in asset_ids", id)
		}
	}
	return nil
}

func buildStrategy(ctx context.Context, req *BacktestRequest, prices *data.Service) (backtest.Strategy, error) {
	initialCash := decimal.NewFromFloat(req.InitialCash)

	switch req.Strategy {
	case StrategyBuyAndHold:
		allocation, err := parseAllocation(req.Parameters.Allocation)
		if err != nil {
			return nil, err
		}
		strat, err := strategies.NewBuyAndHold(req.AssetIDs, allocation, initialCash)
		if err != nil {
			return nil, &ValidationError{Reason: err.Error()}
		}
		return strat, nil

	case StrategyDCA:
		return strategies.NewDCA(
			req.AssetIDs[0],
			initialCash,
			decimal.NewFromFloat(*req.Parameters.AmountPerPeriod),
			req.Parameters.Frequency), nil

	case StrategyVA:
		// the month-boundary calendar is injected up front so the
		// strategy never touches the database mid-run
		tradingDays, err := prices.TradingDays(ctx, req.StartDate.Time, req.EndDate.Time)
		if err != nil {
			return nil, err
		}
		return strategies.NewValueAveraging(
			req.AssetIDs[0],
			initialCash,
			decimal.NewFromFloat(*req.Parameters.TargetIncrementAmount),
			tradingDays), nil
	}

	return nil, validationErrorf("unknown strategy %q", req.Strategy)
}

func parseAllocation(raw map[string]float64) (map[data.AssetID]decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	allocation := make(map[data.AssetID]decimal.Decimal, len(raw))
	for k, w := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, validationErrorf("allocation key %q is not an asset id", k)
		}
		allocation[data.AssetID(id)] = decimal.NewFromFloat(w)
	}
	return allocation, nil
}
