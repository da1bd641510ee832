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
	"errors"
	"sort"

	"github.com/quantfolio/qf-api/backtest"
	"github.com/quantfolio/qf-api/data"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingAllocation = errors.New("allocation required when more than one asset is requested")
	ErrBadAllocation     = errors.New("allocation weights must sum to 1")
)

var allocationTolerance = decimal.NewFromFloat(1e-6)

// BuyAndHold invests the full amount on the first trading day of the
// run, split across the allocation, and never trades again.
type BuyAndHold struct {
	allocation        map[data.AssetID]decimal.Decimal
	initialInvestment decimal.Decimal
	alreadyInvested   bool
}

// NewBuyAndHold builds the strategy. A nil or empty allocation with a
// single asset defaults to 100% in that asset.
func NewBuyAndHold(assetIDs []data.AssetID, allocation map[data.AssetID]decimal.Decimal, initialInvestment decimal.Decimal) (*BuyAndHold, error) {
	if len(allocation) == 0 {
		if len(assetIDs) != 1 {
			return nil, ErrMissingAllocation
		}
		allocation = map[data.AssetID]decimal.Decimal{
			assetIDs[0]: decimal.NewFromInt(1),
		}
	}

	sum := decimal.Zero
	for _, w := range allocation {
		sum = sum.Add(w)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(allocationTolerance) {
		return nil, ErrBadAllocation
	}

	return &BuyAndHold{
		allocation:        allocation,
		initialInvestment: initialInvestment,
	}, nil
}

func (s *BuyAndHold) OnDay(ctx *backtest.Context) []backtest.Action {
	if s.alreadyInvested {
		return nil
	}
	s.alreadyInvested = true

	actions := make([]backtest.Action, 0, len(s.allocation))
	for _, id := range s.AssetIDs() {
		actions = append(actions, backtest.BuyAction{
			AssetID:      id,
			DollarAmount: s.initialInvestment.Mul(s.allocation[id]),
		})
	}
	return actions
}

func (s *BuyAndHold) AssetIDs() []data.AssetID {
	ids := make([]data.AssetID, 0, len(s.allocation))
	for id := range s.allocation {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *BuyAndHold) Parameters() map[string]any {
	allocation := make(map[data.AssetID]string, len(s.allocation))
	for id, w := range s.allocation {
		allocation[id] = w.String()
	}
	return map[string]any{
		"strategy":           "buy_and_hold",
		"allocation":         allocation,
		"initial_investment": s.initialInvestment.String(),
	}
}
