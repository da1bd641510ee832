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

	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v4"
	"github.com/quantfolio/qf-api/database"
	"github.com/quantfolio/qf-api/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const priceCacheSize = 16384

// PriceKey addresses a single observation in a price lookup table.
// Dates must be normalized with Day before use as a key.
type PriceKey struct {
	AssetID AssetID
	Date    time.Time
}

// ClosePoint is one adjusted-close observation; float64 because its
// only consumer is the Monte Carlo numerical kernel
type ClosePoint struct {
	Date  time.Time
	Close float64
}

// Day truncates t to midnight UTC so equal calendar dates compare ==
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Service answers price and calendar questions for the engines. The
// single-point cache is owned by the instance; each run gets its own
// Service so concurrent runs never share mutable state.
type Service struct {
	cache *lru.Cache
}

func NewService() *Service {
	cache, err := lru.New(priceCacheSize)
	if err != nil {
		log.Panic().Err(err).Msg("could not create price cache")
	}
	return &Service{cache: cache}
}

// TradingDays returns every distinct date in [begin, end] on which at
// least one asset has a price, in ascending order.
func (s *Service) TradingDays(ctx context.Context, begin time.Time, end time.Time) ([]time.Time, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.TradingDays")
	defer span.End()

	subLog := log.With().Time("Begin", begin).Time("End", end).Logger()

	if end.Before(begin) {
		subLog.Warn().Stack().Msg("end before begin in call to TradingDays")
		return nil, ErrInvalidTimeRange
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when querying trading days")
		return nil, err
	}

	rows, err := trx.Query(ctx,
		"SELECT DISTINCT trading_day FROM eod_prices WHERE trading_day BETWEEN $1 AND $2 ORDER BY trading_day",
		Day(begin), Day(end))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not query trading days")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	res := make([]time.Time, 0, 252)
	for rows.Next() {
		var dt time.Time
		if err = rows.Scan(&dt); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan trading day")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		res = append(res, Day(dt))
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return res, nil
}

// PriceLookup bulk-materializes the (asset, day) -> adjusted close map
// for a backtest run; subsequent lookups are map accesses.
func (s *Service) PriceLookup(ctx context.Context, assetIDs []AssetID, begin time.Time, end time.Time) (map[PriceKey]decimal.Decimal, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.PriceLookup")
	defer span.End()

	subLog := log.With().Time("Begin", begin).Time("End", end).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when querying prices")
		return nil, err
	}

	ids := make([]int64, 0, len(assetIDs))
	for _, id := range assetIDs {
		ids = append(ids, int64(id))
	}

	rows, err := trx.Query(ctx,
		"SELECT asset_id, trading_day, adj_close::text FROM eod_prices WHERE asset_id = ANY ($1) AND trading_day BETWEEN $2 AND $3",
		ids, Day(begin), Day(end))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not query prices")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return nil, err
	}

	lookup := make(map[PriceKey]decimal.Decimal, 252*len(assetIDs))
	for rows.Next() {
		var id AssetID
		var dt time.Time
		var priceStr string
		if err = rows.Scan(&id, &dt, &priceStr); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan price row")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			subLog.Error().Stack().Err(err).Str("Price", priceStr).Msg("could not parse price")
			continue
		}
		lookup[PriceKey{AssetID: id, Date: Day(dt)}] = price
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return lookup, nil
}

// Get returns the adjusted close for a single (asset, day); the second
// return is false when no observation exists. Results are memoised in
// the per-instance cache.
func (s *Service) Get(ctx context.Context, id AssetID, day time.Time) (decimal.Decimal, bool, error) {
	key := PriceKey{AssetID: id, Date: Day(day)}
	if v, ok := s.cache.Get(key); ok {
		return v.(decimal.Decimal), true, nil
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}

	var priceStr string
	err = trx.QueryRow(ctx,
		"SELECT adj_close::text FROM eod_prices WHERE asset_id=$1 AND trading_day=$2",
		id, key.Date).Scan(&priceStr)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, false, err
	}
	s.cache.Add(key, price)
	return price, true, nil
}

// LatestPrice returns the most recent adjusted close for the asset
func (s *Service) LatestPrice(ctx context.Context, id AssetID) (decimal.Decimal, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	var priceStr string
	err = trx.QueryRow(ctx,
		"SELECT adj_close::text FROM eod_prices WHERE asset_id=$1 ORDER BY trading_day DESC LIMIT 1",
		id).Scan(&priceStr)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNoPriceData
		}
		return decimal.Zero, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return decimal.NewFromString(priceStr)
}

// AssetCloses returns the full adjusted-close series for an asset in
// ascending date order; this is the Monte Carlo engine's input.
func (s *Service) AssetCloses(ctx context.Context, id AssetID) ([]ClosePoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.AssetCloses")
	defer span.End()

	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := trx.Query(ctx,
		"SELECT trading_day, adj_close::double precision FROM eod_prices WHERE asset_id=$1 ORDER BY trading_day",
		id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	points := make([]ClosePoint, 0, 2520)
	for rows.Next() {
		var p ClosePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
				log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
			}
			return nil, err
		}
		p.Date = Day(p.Date)
		points = append(points, p)
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	if len(points) == 0 {
		return nil, ErrNoPriceData
	}
	return points, nil
}

// IsTradingDay is the optimistic weekday pre-filter; it does not
// consult the calendar derived from actual price data.
func IsTradingDay(day time.Time) bool {
	wd := day.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsFirstTradingDayOfMonth reports whether day is present in
// tradingDays and no earlier day of the same calendar month is.
func IsFirstTradingDayOfMonth(day time.Time, tradingDays []time.Time) bool {
	day = Day(day)
	found := false
	for _, td := range tradingDays {
		td = Day(td)
		if td.Year() == day.Year() && td.Month() == day.Month() {
			if td.Before(day) {
				return false
			}
			if td.Equal(day) {
				found = true
			}
		}
	}
	return found
}
