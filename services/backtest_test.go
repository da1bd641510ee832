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

package services_test

import (
	"context"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jackc/pgx/v4"
	"github.com/pashagolub/pgxmock"

	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/database"
	"github.com/quantfolio/qf-api/services"
)

func expectValidationError(err error, substr string) {
	ExpectWithOffset(1, err).To(HaveOccurred())
	ExpectWithOffset(1, err).To(BeAssignableToTypeOf(&services.ValidationError{}))
	ExpectWithOffset(1, err.Error()).To(ContainSubstring(substr))
}

var _ = Describe("Backtest validation", func() {
	var (
		mock pgxmock.PgxConnIface
		req  *services.BacktestRequest
	)

	BeforeEach(func() {
		var err error
		mock, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(mock)

		amount := 100.0
		req = &services.BacktestRequest{
			Strategy:    services.StrategyDCA,
			AssetIDs:    []data.AssetID{1},
			Tickers:     []string{"VTI"},
			StartDate:   common.NewDate(2020, time.January, 2),
			EndDate:     common.NewDate(2020, time.December, 31),
			InitialCash: 1000,
			Parameters: services.BacktestParameters{
				AmountPerPeriod: &amount,
				Frequency:       "monthly",
			},
		}
	})

	It("should reject an unknown strategy", func() {
		req.Strategy = "martingale"
		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "unknown strategy")
	})

	It("should reject an empty asset list", func() {
		req.AssetIDs = nil
		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "at least one asset")
	})

	It("should reject negative initial cash", func() {
		req.InitialCash = -1
		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "initial_cash")
	})

	It("should reject dates in the future", func() {
		future := time.Now().AddDate(1, 0, 0)
		req.StartDate = common.DateOf(future)
		req.EndDate = common.DateOf(future.AddDate(0, 1, 0))
		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "in the past")
	})

	It("should reject an inverted date range", func() {
		req.StartDate = common.NewDate(2020, time.June, 1)
		req.EndDate = common.NewDate(2020, time.May, 1)
		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "precede")
	})

	It("should reject a range shorter than a week", func() {
		req.StartDate = common.NewDate(2020, time.June, 1)
		req.EndDate = common.NewDate(2020, time.June, 4)
		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "at least 7 days")
	})

	It("should reject a range longer than ten years", func() {
		req.StartDate = common.NewDate(2005, time.January, 1)
		req.EndDate = common.NewDate(2020, time.January, 1)
		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "10 years")
	})

	It("should reject an asset that does not exist", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, ticker, asset_name FROM assets WHERE id=$1")).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "does not exist")
	})

	It("should name the asset and its window when data does not cover the range", func() {
		first := time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, ticker, asset_name FROM assets WHERE id=$1")).
			WillReturnRows(pgxmock.NewRows([]string{"id", "ticker", "asset_name"}).
				AddRow(data.AssetID(1), "VTI", "Vanguard Total Stock Market ETF"))
		mock.ExpectCommit()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(trading_day), MAX(trading_day), COUNT(*) FROM eod_prices WHERE asset_id=$1")).
			WillReturnRows(pgxmock.NewRows([]string{"min", "max", "count"}).
				AddRow(&first, &last, 252))
		mock.ExpectCommit()

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "VTI only has data from 2020-06-01 to 2021-06-01")
	})

	It("should reject an allocation asset missing from asset_ids", func() {
		req.Strategy = services.StrategyBuyAndHold
		req.Parameters = services.BacktestParameters{
			Allocation: map[string]float64{"999": 1.0},
		}
		mockAssetChecks(mock)

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "allocation asset 999 is not listed in asset_ids")
	})

	It("should reject a non-numeric allocation key", func() {
		req.Strategy = services.StrategyBuyAndHold
		req.Parameters = services.BacktestParameters{
			Allocation: map[string]float64{"VTI": 1.0},
		}
		mockAssetChecks(mock)

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "not an asset id")
	})

	It("should reject dca over more than one asset", func() {
		req.AssetIDs = []data.AssetID{1, 2}
		mockAssetChecks(mock)
		mockAssetChecks(mock)

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "exactly one asset")
	})

	It("should reject va over more than one asset", func() {
		increment := 100.0
		req.Strategy = services.StrategyVA
		req.AssetIDs = []data.AssetID{1, 2}
		req.Parameters = services.BacktestParameters{TargetIncrementAmount: &increment}
		mockAssetChecks(mock)
		mockAssetChecks(mock)

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "exactly one asset")
	})

	It("should require dca parameters", func() {
		req.Parameters.AmountPerPeriod = nil
		mockAssetChecks(mock)

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "amount_per_period")
	})

	It("should reject an invalid dca frequency", func() {
		req.Parameters.Frequency = "hourly"
		mockAssetChecks(mock)

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "invalid frequency")
	})

	It("should require the va target increment", func() {
		req.Strategy = services.StrategyVA
		req.Parameters.TargetIncrementAmount = nil
		mockAssetChecks(mock)

		_, err := services.Backtest(context.Background(), req)
		expectValidationError(err, "target_increment_amount")
	})
})

// mockAssetChecks satisfies the existence and availability queries for
// asset 1 with a window wide enough for any 2020 range
func mockAssetChecks(mock pgxmock.PgxConnIface) {
	first := time.Date(2015, time.January, 2, 0, 0, 0, 0, time.UTC)
	last := time.Date(2021, time.December, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, ticker, asset_name FROM assets WHERE id=$1")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "ticker", "asset_name"}).
			AddRow(data.AssetID(1), "VTI", "Vanguard Total Stock Market ETF"))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(trading_day), MAX(trading_day), COUNT(*) FROM eod_prices WHERE asset_id=$1")).
		WillReturnRows(pgxmock.NewRows([]string{"min", "max", "count"}).
			AddRow(&first, &last, 1764))
	mock.ExpectCommit()
}
