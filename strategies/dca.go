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

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// DCA makes an initial lump-sum purchase and then invests a fixed
// amount on a daily, weekly, or monthly cadence. An unrecognized
// frequency disables the periodic purchases but not the initial one.
type DCA struct {
	assetID            data.AssetID
	initialInvestment  decimal.Decimal
	amountPerPeriod    decimal.Decimal
	frequency          string
	lastInvestmentDate time.Time
	investedInitial    bool
}

func NewDCA(assetID data.AssetID, initialInvestment decimal.Decimal, amountPerPeriod decimal.Decimal, frequency string) *DCA {
	return &DCA{
		assetID:           assetID,
		initialInvestment: initialInvestment,
		amountPerPeriod:   amountPerPeriod,
		frequency:         frequency,
	}
}

func (s *DCA) OnDay(ctx *backtest.Context) []backtest.Action {
	if !s.investedInitial {
		s.investedInitial = true
		s.lastInvestmentDate = ctx.Date
		return []backtest.Action{backtest.BuyAction{
			AssetID:      s.assetID,
			DollarAmount: s.initialInvestment,
		}}
	}

	if !s.cadenceElapsed(ctx.Date) {
		return nil
	}

	// the cadence clock only advances on days an investment is made
	s.lastInvestmentDate = ctx.Date
	return []backtest.Action{backtest.BuyAction{
		AssetID:      s.assetID,
		DollarAmount: s.amountPerPeriod,
	}}
}

func (s *DCA) cadenceElapsed(day time.Time) bool {
	switch s.frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return day.Sub(s.lastInvestmentDate).Hours() >= 7*24
	case FrequencyMonthly:
		return day.Year() != s.lastInvestmentDate.Year() || day.Month() != s.lastInvestmentDate.Month()
	default:
		return false
	}
}

func (s *DCA) AssetIDs() []data.AssetID {
	return []data.AssetID{s.assetID}
}

func (s *DCA) Parameters() map[string]any {
	return map[string]any{
		"strategy":           "dca",
		"asset_id":           s.assetID,
		"initial_investment": s.initialInvestment.String(),
		"amount_per_period":  s.amountPerPeriod.String(),
		"frequency":          s.frequency,
	}
}
