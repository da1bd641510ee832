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

package strategies

import (
	"time"

	"github.com/quantfolio/qf-api/backtest"
	"github.com/quantfolio/qf-api/data"
	"github.com/shopspring/decimal"
)

// ValueAveraging buys on the first trading day of each month, sized so
// portfolio value tracks a target growing linearly per period. It only
// buys; value above target is left alone and the period counter does
// not advance until a purchase happens.
type ValueAveraging struct {
	assetID           data.AssetID
	initialInvestment decimal.Decimal
	targetIncrement   decimal.Decimal
	tradingDays       []time.Time
	periodNumber      int64
}

// NewValueAveraging requires the run's trading-day calendar so month
// boundaries can be detected without any database access.
func NewValueAveraging(assetID data.AssetID, initialInvestment decimal.Decimal, targetIncrement decimal.Decimal, tradingDays []time.Time) *ValueAveraging {
	return &ValueAveraging{
		assetID:           assetID,
		initialInvestment: initialInvestment,
		targetIncrement:   targetIncrement,
		tradingDays:       tradingDays,
	}
}

func (s *ValueAveraging) OnDay(ctx *backtest.Context) []backtest.Action {
	if !data.IsFirstTradingDayOfMonth(ctx.Date, s.tradingDays) {
		return nil
	}

	target := s.initialInvestment.Add(s.targetIncrement.Mul(decimal.NewFromInt(s.periodNumber)))

	currentValue := decimal.Zero
	if len(ctx.History) > 0 {
		currentValue = ctx.History[len(ctx.History)-1].Value
	}

	shortfall := target.Sub(currentValue)
	if !shortfall.IsPositive() {
		return nil
	}

	s.periodNumber++
	return []backtest.Action{backtest.BuyAction{
		AssetID:      s.assetID,
		DollarAmount: shortfall,
	}}
}

func (s *ValueAveraging) AssetIDs() []data.AssetID {
	return []data.AssetID{s.assetID}
}

func (s *ValueAveraging) Parameters() map[string]any {
	return map[string]any{
		"strategy":                "va",
		"asset_id":                s.assetID,
		"initial_investment":      s.initialInvestment.String(),
		"target_increment_amount": s.targetIncrement.String(),
	}
}
