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
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const maxSamplePaths = 20

// Simulate runs the DCA forward simulation over synthetic monthly
// return paths derived from the asset's daily close history. The
// result is fully determined by (seed, method, timeseries, config).
func Simulate(ctx context.Context, cfg *Config, timeseries []data.ClosePoint) (*Results, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "montecarlo.Simulate")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// the monthly collapse requires ascending dates; sort a copy so
	// callers with unordered series still get correct returns
	series := make([]data.ClosePoint, len(timeseries))
	copy(series, timeseries)
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

	historical := MonthlyReturns(series)
	if len(historical) < 1 {
		return nil, ErrNoReturns
	}

	stats := computeReturnStats(historical)
	log.Info().
		Float64("Mean", stats.Mean).
		Float64("StdDev", stats.StdDev).
		Float64("Skewness", stats.Skewness).
		Float64("Kurtosis", stats.Kurtosis).
		Int("Count", stats.Count).
		Str("Method", cfg.Method).
		Int("NumSimulations", cfg.NumSimulations).
		Int("InvestmentMonths", cfg.InvestmentMonths).
		Msg("running monte carlo simulation")

	rng := rand.New(rand.NewSource(seedValue(cfg.Seed)))
	returns, err := generateReturns(cfg, stats, historical, rng)
	if err != nil {
		return nil, err
	}

	initialPrice := cfg.InitialPrice
	if initialPrice <= 0 {
		initialPrice = series[len(series)-1].Close
	}

	sims := cfg.NumSimulations
	months := cfg.InvestmentMonths

	// price paths compound the synthetic returns; portfolio paths lag
	// by one slot so index 0 is the state before the first contribution
	portfolio := make([][]float64, sims)
	finalValues := make([]float64, sims)
	for s := 0; s < sims; s++ {
		path := make([]float64, months+1)
		price := initialPrice
		shares := 0.0
		for m := 0; m < months; m++ {
			price *= 1 + returns[s][m]
			shares += cfg.MonthlyInvestment / price
			path[m+1] = shares * price
		}
		portfolio[s] = path
		finalValues[s] = path[months]
	}

	totalInvested := cfg.MonthlyInvestment * float64(months)

	res := &Results{
		ChartData:        chartData(portfolio, cfg.MonthlyInvestment, months),
		SamplePaths:      samplePaths(portfolio, rng),
		Histogram:        roundHistogram(histogram(finalValues)),
		TotalInvested:    round2(totalInvested),
		FinalPercentiles: finalPercentiles(finalValues),
		RiskMetrics:      riskMetrics(returns, portfolio, finalValues, totalInvested),
	}
	return res, nil
}

func seedValue(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		log.Panic().Err(err).Msg("could not read entropy for rng seed")
	}
	return binary.LittleEndian.Uint64(b[:])
}

// generateReturns builds the (num_simulations x investment_months)
// synthetic monthly return matrix.
func generateReturns(cfg *Config, stats ReturnStats, historical []float64, rng *rand.Rand) ([][]float64, error) {
	var sample func() float64

	switch cfg.Method {
	case MethodNormal:
		dist := distuv.Normal{Mu: stats.Mean, Sigma: stats.StdDev, Src: rng}
		sample = func() float64 {
			if stats.StdDev == 0 {
				return stats.Mean
			}
			return dist.Rand()
		}
	case MethodBootstrap:
		sample = func() float64 {
			return historical[rng.Intn(len(historical))]
		}
	case MethodTStudent:
		nu, loc, scale := fitStudentsT(stats)
		dist := distuv.StudentsT{Mu: loc, Sigma: scale, Nu: nu, Src: rng}
		sample = func() float64 {
			if scale == 0 {
				return loc
			}
			return dist.Rand()
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, cfg.Method)
	}

	returns := make([][]float64, cfg.NumSimulations)
	for s := range returns {
		row := make([]float64, cfg.InvestmentMonths)
		for m := range row {
			row[m] = sample()
		}
		returns[s] = row
	}
	return returns, nil
}

// chartData computes percentile bands of portfolio value per month
func chartData(portfolio [][]float64, monthlyInvestment float64, months int) []*ChartPoint {
	points := make([]*ChartPoint, 0, months+1)
	column := make([]float64, len(portfolio))

	for m := 0; m <= months; m++ {
		for s := range portfolio {
			column[s] = portfolio[s][m]
		}
		sorted := sortedCopy(column)
		points = append(points, &ChartPoint{
			Month:    m,
			Invested: round2(monthlyInvestment * float64(m)),
			P5:       round2(percentile(sorted, 5)),
			P10:      round2(percentile(sorted, 10)),
			P25:      round2(percentile(sorted, 25)),
			P50:      round2(percentile(sorted, 50)),
			P75:      round2(percentile(sorted, 75)),
			P90:      round2(percentile(sorted, 90)),
			P95:      round2(percentile(sorted, 95)),
		})
	}
	return points
}

// samplePaths picks up to 20 trajectories to return verbatim; the
// selection comes from the same rng so a seeded run reproduces exactly
func samplePaths(portfolio [][]float64, rng *rand.Rand) [][]float64 {
	n := len(portfolio)
	count := maxSamplePaths
	if n < count {
		count = n
	}

	paths := make([][]float64, 0, count)
	for _, idx := range rng.Perm(n)[:count] {
		path := make([]float64, len(portfolio[idx]))
		for i, v := range portfolio[idx] {
			path[i] = round2(v)
		}
		paths = append(paths, path)
	}
	return paths
}

func finalPercentiles(finalValues []float64) map[string]float64 {
	sorted := sortedCopy(finalValues)
	out := make(map[string]float64, 7)
	for _, p := range []float64{5, 10, 25, 50, 75, 90, 95} {
		out[fmt.Sprintf("%.0f", p)] = round2(percentile(sorted, p))
	}
	return out
}

func riskMetrics(returns [][]float64, portfolio [][]float64, finalValues []float64, totalInvested float64) *RiskMetrics {
	n := len(finalValues)

	totalReturns := make([]float64, n)
	losses := 0
	for s, fv := range finalValues {
		totalReturns[s] = (fv - totalInvested) / totalInvested
		if fv < totalInvested {
			losses++
		}
	}

	// periodic sharpe: each simulation's monthly return row is scored
	// on its own, then averaged across simulations
	sharpeSum := 0.0
	for s := range returns {
		mu := stat.Mean(returns[s], nil)
		sigma := math.Sqrt(stat.PopVariance(returns[s], nil))
		sharpeSum += mu / math.Max(sigma, 1e-10) * math.Sqrt(12)
	}

	drawdownSum := 0.0
	for s := range portfolio {
		runningMax := 0.0
		worst := 0.0
		for _, v := range portfolio[s] {
			if v > runningMax {
				runningMax = v
			}
			dd := (v - runningMax) / math.Max(runningMax, 1)
			if dd < worst {
				worst = dd
			}
		}
		drawdownSum += worst
	}

	sortedReturns := sortedCopy(totalReturns)
	var95 := percentile(sortedReturns, 5)

	cvarSum, cvarCount := 0.0, 0
	for _, r := range totalReturns {
		if r <= var95 {
			cvarSum += r
			cvarCount++
		}
	}
	cvar95 := 0.0
	if cvarCount > 0 {
		cvar95 = cvarSum / float64(cvarCount)
	}

	return &RiskMetrics{
		ProbabilityOfLoss: round6(float64(losses) / float64(n)),
		MeanReturn:        round6(stat.Mean(totalReturns, nil)),
		StdReturn:         round6(math.Sqrt(stat.PopVariance(totalReturns, nil))),
		SharpeRatio:       round6(sharpeSum / float64(n)),
		MaxDrawdown:       round6(drawdownSum / float64(n)),
		VaR95:             round6(var95),
		CVaR95:            round6(cvar95),
	}
}

func roundHistogram(bins []*HistogramBin) []*HistogramBin {
	for _, b := range bins {
		b.Min = round2(b.Min)
		b.Max = round2(b.Max)
	}
	return bins
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
