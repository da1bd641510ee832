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
	"encoding/hex"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/database"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/zeebo/blake3"
)

var ErrBacktestNotFound = errors.New("backtest not found")

// Fingerprint is a stable digest of the request used as the dedupe
// column of the backtests table.
func Fingerprint(req *BacktestRequest) string {
	raw, err := json.Marshal(req)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not marshal request for fingerprint")
		return ""
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func cacheKey(id uuid.UUID) string {
	return "backtest:" + id.String()
}

// SaveBacktest writes the response envelope to the backtests table and
// the result cache. Callers treat failures as non-fatal.
func SaveBacktest(ctx context.Context, req *BacktestRequest, resp *BacktestResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	if err := common.CacheSet(cacheKey(resp.BacktestID), payload); err != nil {
		log.Warn().Stack().Err(err).Msg("could not cache backtest result")
	}

	params, err := json.Marshal(resp.Parameters)
	if err != nil {
		return err
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		return err
	}

	temporary := !viper.GetBool("backtest.permanent")
	_, err = trx.Exec(ctx,
		`INSERT INTO backtests (id, strategy, parameters, start_date, end_date, fingerprint, summary, temporary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		resp.BacktestID, resp.Strategy, params,
		req.StartDate.Time, req.EndDate.Time,
		Fingerprint(req), payload, temporary)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return err
	}

	return trx.Commit(ctx)
}

// LoadBacktest returns the persisted response envelope as raw JSON,
// serving from cache when possible.
func LoadBacktest(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if payload, err := common.CacheGet(cacheKey(id)); err == nil {
		return payload, nil
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = trx.QueryRow(ctx, "SELECT summary FROM backtests WHERE id=$1", id).Scan(&payload)
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBacktestNotFound
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	if err := common.CacheSet(cacheKey(id), payload); err != nil {
		log.Warn().Stack().Err(err).Msg("could not cache backtest result")
	}
	return payload, nil
}

// PurgeExpired deletes temporary backtest rows older than the
// configured TTL and returns how many were removed.
func PurgeExpired(ctx context.Context) (int64, error) {
	ttl := viper.GetDuration("backtest.ttl")
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := trx.Exec(ctx,
		"DELETE FROM backtests WHERE temporary='t' AND created_at < $1",
		time.Now().Add(-ttl))
	if err != nil {
		if rollbackErr := trx.Rollback(ctx); rollbackErr != nil {
			log.Error().Stack().Err(rollbackErr).Msg("could not rollback transaction")
		}
		return 0, err
	}

	if err := trx.Commit(ctx); err != nil {
		return 0, err
	}

	log.Info().Int64("NumRecords", tag.RowsAffected()).Msg("purged expired backtests")
	return tag.RowsAffected(), nil
}
