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
	"math"
	"sort"

	"github.com/quantfolio/qf-api/data"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ReturnStats summarizes the empirical monthly return distribution.
// StdDev is the population standard deviation; the simulation treats
// the history as the complete distribution, not a sample from one.
type ReturnStats struct {
	Mean     float64
	StdDev   float64
	Skewness float64
	Kurtosis float64
	Count    int
}

// MonthlyReturns collapses a daily close series to one observation per
// calendar month (the last close) and differences into fractional
// returns. The input must be sorted ascending by date.
func MonthlyReturns(points []data.ClosePoint) []float64 {
	if len(points) == 0 {
		return nil
	}

	monthlyCloses := make([]float64, 0, len(points)/20+1)
	curYear, curMonth := points[0].Date.Year(), points[0].Date.Month()
	last := points[0].Close

	for _, p := range points[1:] {
		y, m := p.Date.Year(), p.Date.Month()
		if y != curYear || m != curMonth {
			monthlyCloses = append(monthlyCloses, last)
			curYear, curMonth = y, m
		}
		last = p.Close
	}
	monthlyCloses = append(monthlyCloses, last)

	if len(monthlyCloses) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(monthlyCloses)-1)
	for i := 1; i < len(monthlyCloses); i++ {
		returns = append(returns, monthlyCloses[i]/monthlyCloses[i-1]-1)
	}
	return returns
}

func computeReturnStats(returns []float64) ReturnStats {
	return ReturnStats{
		Mean:     stat.Mean(returns, nil),
		StdDev:   math.Sqrt(stat.PopVariance(returns, nil)),
		Skewness: stat.Skew(returns, nil),
		Kurtosis: stat.ExKurtosis(returns, nil),
		Count:    len(returns),
	}
}

// fitStudentsT estimates Student-t parameters by moment matching. The
// degrees of freedom come from excess kurtosis (kappa = 6/(nu-4)),
// clamped to keep variance finite, the scale from the relation
// var = scale^2 * nu/(nu-2).
func fitStudentsT(s ReturnStats) (nu float64, loc float64, scale float64) {
	nu = 100.0
	if s.Kurtosis > 0 {
		nu = 4 + 6/s.Kurtosis
	}
	if nu < 2.5 {
		nu = 2.5
	}
	if nu > 100 {
		nu = 100
	}
	loc = s.Mean
	scale = s.StdDev * math.Sqrt((nu-2)/nu)
	return nu, loc, scale
}

// percentile computes the p-th percentile with linear interpolation
// between closest ranks. xs must be sorted ascending.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if len(xs) == 1 {
		return xs[0]
	}
	h := float64(len(xs)-1) * p / 100
	lo := int(math.Floor(h))
	if lo >= len(xs)-1 {
		return xs[len(xs)-1]
	}
	frac := h - float64(lo)
	return xs[lo] + frac*(xs[lo+1]-xs[lo])
}

func sortedCopy(xs []float64) []float64 {
	dup := make([]float64, len(xs))
	copy(dup, xs)
	sort.Float64s(dup)
	return dup
}

const histogramBins = 50

// histogram buckets values into equal-width bins spanning [min, max].
// A degenerate range produces a single bin holding everything.
func histogram(values []float64) []*HistogramBin {
	minV := floats.Min(values)
	maxV := floats.Max(values)

	if maxV == minV {
		return []*HistogramBin{{Min: minV, Max: maxV, Count: len(values)}}
	}

	edges := floats.Span(make([]float64, histogramBins+1), minV, maxV)
	bins := make([]*HistogramBin, histogramBins)
	for i := range bins {
		bins[i] = &HistogramBin{Min: edges[i], Max: edges[i+1]}
	}

	width := (maxV - minV) / histogramBins
	for _, v := range values {
		idx := int((v - minV) / width)
		if idx >= histogramBins {
			idx = histogramBins - 1
		}
		bins[idx].Count++
	}
	return bins
}
