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

	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/observability/opentelemetry"
	"go.opentelemetry.io/otel"
)

// AssetDetail augments the asset record with its price coverage and
// most recent close
type AssetDetail struct {
	Asset       *data.Asset `json:"asset"`
	FirstDate   common.Date `json:"first_date"`
	LastDate    common.Date `json:"last_date"`
	TotalDays   int         `json:"total_days"`
	LatestClose float64     `json:"latest_close"`
}

// Assets lists the investable universe
func Assets(ctx context.Context) ([]*data.Asset, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "services.Assets")
	defer span.End()

	return data.AllAssets(ctx)
}

// AssetInfo loads a single asset together with its availability window
// and the latest adjusted close
func AssetInfo(ctx context.Context, id data.AssetID) (*AssetDetail, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "services.AssetInfo")
	defer span.End()

	asset, err := data.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	avail, err := data.GetAvailability(ctx, id)
	if err != nil {
		return nil, err
	}

	latest, err := data.NewService().LatestPrice(ctx, id)
	if err != nil {
		return nil, err
	}

	return &AssetDetail{
		Asset:       asset,
		FirstDate:   common.DateOf(avail.FirstDate),
		LastDate:    common.DateOf(avail.LastDate),
		TotalDays:   avail.TotalDays,
		LatestClose: latest.Round(2).InexactFloat64(),
	}, nil
}
