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
	"time"

	"github.com/quantfolio/qf-api/data"
	"github.com/shopspring/decimal"
)

// Strategy is the capability set the engine requires. Implementations
// are stateful per run; a fresh instance must be constructed for each
// call to Run.
type Strategy interface {
	// OnDay is invoked once per trading day in ascending date order and
	// returns the trades to execute on that day, possibly none.
	OnDay(ctx *Context) []Action

	// AssetIDs returns the stable set of assets the strategy trades;
	// the engine bulk-loads prices for exactly this set.
	AssetIDs() []data.AssetID

	// Parameters describes the strategy configuration for logging and
	// persistence.
	Parameters() map[string]any
}

// Context is the read-only view a strategy receives each day. Holdings
// and History are defensive copies; strategies may inspect them freely
// but mutations never reach the engine.
type Context struct {
	Date     time.Time
	Holdings map[data.AssetID]decimal.Decimal
	Prices   map[data.PriceKey]decimal.Decimal
	History  []*DailySnapshot
}

// Price returns the adjusted close for the asset on the context date;
// ok is false when no observation exists.
func (c *Context) Price(id data.AssetID) (decimal.Decimal, bool) {
	price, ok := c.Prices[data.PriceKey{AssetID: id, Date: c.Date}]
	return price, ok
}
