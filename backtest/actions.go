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
	"github.com/quantfolio/qf-api/data"
	"github.com/shopspring/decimal"
)

// Action is the closed set of trades a strategy may emit for a single
// trading day. The engine dispatches on the concrete type.
type Action interface {
	Asset() data.AssetID
}

// BuyAction invests a fixed dollar amount; the engine converts it to
// shares at that day's adjusted close.
type BuyAction struct {
	AssetID      data.AssetID
	DollarAmount decimal.Decimal
}

func (a BuyAction) Asset() data.AssetID {
	return a.AssetID
}

// SellAction liquidates a share quantity, never a dollar amount.
// Quantity must not exceed current holdings.
type SellAction struct {
	AssetID  data.AssetID
	Quantity decimal.Decimal
}

func (a SellAction) Asset() data.AssetID {
	return a.AssetID
}
