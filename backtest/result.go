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
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/data"
	"github.com/shopspring/decimal"
)

// DailySnapshot records the portfolio state at the close of one
// trading day. CashFlow is net external funding for the day, positive
// for buys and negative for sells.
type DailySnapshot struct {
	Date           time.Time
	Value          decimal.Decimal
	Holdings       map[data.AssetID]decimal.Decimal
	CashFlow       decimal.Decimal
	DailyReturnPct decimal.Decimal
	DailyReturnAbs decimal.Decimal
}

// Metrics aggregates the risk statistics of a completed run
type Metrics struct {
	Sharpe                  decimal.Decimal
	MaxDrawdown             decimal.Decimal
	MaxDrawdownDurationDays int
	Volatility              decimal.Decimal
	DaysAnalysed            int
	InvestmentsMade         int
	PeakValue               decimal.Decimal
	TroughValue             decimal.Decimal
}

// Result is the complete outcome of a backtest run
type Result struct {
	StartDate      time.Time
	EndDate        time.Time
	TotalInvested  decimal.Decimal
	FinalValue     decimal.Decimal
	TotalReturnPct decimal.Decimal
	TotalReturnAbs decimal.Decimal
	AvgDailyReturn decimal.Decimal
	Metrics        *Metrics
	History        []*DailySnapshot
}

// currency and ratio convert internal fixed-point values to the wire
// representation: 2 decimal places for dollar amounts, 6 for ratios.
func currency(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func ratio(d decimal.Decimal) float64 {
	f, _ := d.Round(6).Float64()
	return f
}

func (s *DailySnapshot) MarshalJSON() ([]byte, error) {
	holdings := make(map[string]float64, len(s.Holdings))
	for id, shares := range s.Holdings {
		holdings[strconv.FormatInt(int64(id), 10)] = ratio(shares)
	}
	return json.Marshal(struct {
		Date           string             `json:"date"`
		Value          float64            `json:"total_value"`
		Holdings       map[string]float64 `json:"holdings"`
		CashFlow       float64            `json:"cash_flow_today"`
		DailyReturnPct float64            `json:"daily_return_pct"`
		DailyReturnAbs float64            `json:"daily_return_abs"`
	}{
		Date:           s.Date.Format(common.DateFormat),
		Value:          currency(s.Value),
		Holdings:       holdings,
		CashFlow:       currency(s.CashFlow),
		DailyReturnPct: ratio(s.DailyReturnPct),
		DailyReturnAbs: currency(s.DailyReturnAbs),
	})
}

func (m *Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sharpe                  float64 `json:"sharpe"`
		MaxDrawdown             float64 `json:"max_drawdown"`
		MaxDrawdownDurationDays int     `json:"max_drawdown_duration_days"`
		Volatility              float64 `json:"volatility"`
		DaysAnalysed            int     `json:"days_analysed"`
		InvestmentsMade         int     `json:"investments_made"`
		PeakValue               float64 `json:"peak_value"`
		TroughValue             float64 `json:"trough_value"`
	}{
		Sharpe:                  ratio(m.Sharpe),
		MaxDrawdown:             ratio(m.MaxDrawdown),
		MaxDrawdownDurationDays: m.MaxDrawdownDurationDays,
		Volatility:              ratio(m.Volatility),
		DaysAnalysed:            m.DaysAnalysed,
		InvestmentsMade:         m.InvestmentsMade,
		PeakValue:               currency(m.PeakValue),
		TroughValue:             currency(m.TroughValue),
	})
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StartDate      string           `json:"start_date"`
		EndDate        string           `json:"end_date"`
		TotalInvested  float64          `json:"total_invested"`
		FinalValue     float64          `json:"final_value"`
		TotalReturnPct float64          `json:"total_return_pct"`
		TotalReturnAbs float64          `json:"total_return_abs"`
		AvgDailyReturn float64          `json:"avg_daily_return"`
		Metrics        *Metrics         `json:"metrics"`
		History        []*DailySnapshot `json:"history"`
	}{
		StartDate:      r.StartDate.Format(common.DateFormat),
		EndDate:        r.EndDate.Format(common.DateFormat),
		TotalInvested:  currency(r.TotalInvested),
		FinalValue:     currency(r.FinalValue),
		TotalReturnPct: ratio(r.TotalReturnPct),
		TotalReturnAbs: currency(r.TotalReturnAbs),
		AvgDailyReturn: ratio(r.AvgDailyReturn),
		Metrics:        r.Metrics,
		History:        r.History,
	})
}
