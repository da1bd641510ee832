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
	"errors"

	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/montecarlo"
	"github.com/quantfolio/qf-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
)

// Simulate resolves the asset's close history and runs the Monte Carlo
// DCA simulation. Engine parameter problems come back as validation
// errors; a missing asset surfaces as data.ErrAssetNotFound.
func Simulate(ctx context.Context, assetID data.AssetID, cfg *montecarlo.Config) (*montecarlo.Results, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "services.Simulate")
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	if _, err := data.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}

	prices := data.NewService()
	closes, err := prices.AssetCloses(ctx, assetID)
	if err != nil {
		if errors.Is(err, data.ErrNoPriceData) {
			return nil, validationErrorf("asset %d has no price data", assetID)
		}
		return nil, err
	}

	results, err := montecarlo.Simulate(ctx, cfg, closes)
	if err != nil {
		if errors.Is(err, montecarlo.ErrNoReturns) {
			return nil, validationErrorf("asset %d has too little history to derive monthly returns", assetID)
		}
		log.Error().Stack().Err(err).Int64("AssetID", int64(assetID)).Msg("monte carlo simulation failed")
		return nil, err
	}
	return results, nil
}
