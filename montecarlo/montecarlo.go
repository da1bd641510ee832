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

package montecarlo

import (
	"errors"
	"fmt"
)

// Simulation methods accepted over the wire
const (
	MethodNormal    = "Normal Distribution"
	MethodBootstrap = "Bootstrap"
	MethodTStudent  = "T-Student"
)

// Hard caps on simulation size; the return matrix is
// num_simulations x investment_months of 64-bit floats.
const (
	MaxInvestmentMonths = 600
	MaxSimulations      = 200_000
	DefaultSimulations  = 10_000
)

var (
	ErrInvalidMethod      = errors.New("unknown simulation method")
	ErrInvalidMonths      = fmt.Errorf("investment_months must be between 1 and %d", MaxInvestmentMonths)
	ErrInvalidSimulations = fmt.Errorf("num_simulations must be between 1 and %d", MaxSimulations)
	ErrInvalidInvestment  = errors.New("monthly_investment must be positive")
	ErrNoReturns          = errors.New("timeseries too short to derive monthly returns")
)

// Config parameterizes one DCA forward simulation. InitialPrice and
// Seed are optional; a zero InitialPrice defaults to the last close of
// the input timeseries, a nil Seed draws OS entropy.
type Config struct {
	MonthlyInvestment float64
	InvestmentMonths  int
	NumSimulations    int
	InitialPrice      float64
	Seed              *uint64
	Method            string
}

func (c *Config) Validate() error {
	if c.MonthlyInvestment <= 0 {
		return ErrInvalidInvestment
	}
	if c.InvestmentMonths < 1 || c.InvestmentMonths > MaxInvestmentMonths {
		return ErrInvalidMonths
	}
	if c.NumSimulations < 1 || c.NumSimulations > MaxSimulations {
		return ErrInvalidSimulations
	}
	switch c.Method {
	case MethodNormal, MethodBootstrap, MethodTStudent:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMethod, c.Method)
	}
	return nil
}

// ChartPoint is one month of the percentile-band chart. Month 0 is the
// state before the first contribution.
type ChartPoint struct {
	Month    int     `json:"month"`
	Invested float64 `json:"invested"`
	P5       float64 `json:"p5"`
	P10      float64 `json:"p10"`
	P25      float64 `json:"p25"`
	P50      float64 `json:"p50"`
	P75      float64 `json:"p75"`
	P90      float64 `json:"p90"`
	P95      float64 `json:"p95"`
}

// HistogramBin is one equal-width bucket of final portfolio values
type HistogramBin struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type RiskMetrics struct {
	ProbabilityOfLoss float64 `json:"probability_of_loss"`
	MeanReturn        float64 `json:"mean_return"`
	StdReturn         float64 `json:"std_return"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	VaR95             float64 `json:"var_95"`
	CVaR95            float64 `json:"cvar_95"`
}

// Results is the full simulation output, already rounded for the wire
type Results struct {
	ChartData        []*ChartPoint      `json:"chart_data"`
	SamplePaths      [][]float64        `json:"sample_paths"`
	Histogram        []*HistogramBin    `json:"histogram"`
	TotalInvested    float64            `json:"total_invested"`
	FinalPercentiles map[string]float64 `json:"final_percentiles"`
	RiskMetrics      *RiskMetrics       `json:"risk_metrics"`
}
