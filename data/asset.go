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

package data

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/quantfolio/qf-api/database"
	"github.com/rs/zerolog/log"
)

// AssetID is the primary key of an asset across the whole system
type AssetID int64

type Asset struct {
	ID     AssetID `json:"id"`
	Ticker string  `json:"ticker"`
	Name   string  `json:"name"`
}

// Availability is the window of price data held for a single asset
type Availability struct {
	FirstDate time.Time
	LastDate  time.Time
	TotalDays int
}

// AllAssets returns the complete asset universe
func AllAssets(ctx context.Context) ([]*Asset, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not get transaction for asset query")
		return nil, err
	}

	rows, err := trx.Query(ctx, "SELECT id, ticker, asset_name FROM assets ORDER BY id")
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not query assets")
		if err := trx.Rollback(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	assets := make([]*Asset, 0, 100)
	for rows.Next() {
		a := &Asset{}
		if err := rows.Scan(&a.ID, &a.Ticker, &a.Name); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan asset row")
			if err := trx.Rollback(ctx); err != nil {
				log.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		assets = append(assets, a)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return assets, nil
}

// GetAsset loads a single asset by id
func GetAsset(ctx context.Context, id AssetID) (*Asset, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	a := &Asset{}
	err = trx.QueryRow(ctx, "SELECT id, ticker, asset_name FROM assets WHERE id=$1", id).Scan(&a.ID, &a.Ticker, &a.Name)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		log.Error().Stack().Err(err).Int64("AssetID", int64(id)).Msg("could not query asset")
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return a, nil
}

// GetAvailability reports the first and last trading day with a price
// for the asset, along with the total number of observations
func GetAvailability(ctx context.Context, id AssetID) (*Availability, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	avail := &Availability{}
	sql := `SELECT MIN(trading_day), MAX(trading_day), COUNT(*) FROM eod_prices WHERE asset_id=$1`
	var first, last *time.Time
	err = trx.QueryRow(ctx, sql, id).Scan(&first, &last, &avail.TotalDays)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		log.Error().Stack().Err(err).Int64("AssetID", int64(id)).Msg("could not query data availability")
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	if avail.TotalDays == 0 || first == nil || last == nil {
		return nil, ErrNoPriceData
	}

	avail.FirstDate = Day(*first)
	avail.LastDate = Day(*last)
	return avail, nil
}
