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

package data_test

import (
	"context"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jackc/pgx/v4"
	"github.com/pashagolub/pgxmock"

	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/database"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ = Describe("PriceService", func() {
	var (
		mock pgxmock.PgxConnIface
		svc  *data.Service
	)

	BeforeEach(func() {
		var err error
		mock, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(mock)
		svc = data.NewService()
	})

	Describe("when querying trading days", func() {
		It("should reject an inverted range without touching the database", func() {
			_, err := svc.TradingDays(context.Background(), day(2021, time.June, 1), day(2021, time.May, 1))
			Expect(err).To(MatchError(data.ErrInvalidTimeRange))
		})

		It("should return the distinct days in ascending order", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT trading_day FROM eod_prices WHERE trading_day BETWEEN $1 AND $2 ORDER BY trading_day")).
				WillReturnRows(pgxmock.NewRows([]string{"trading_day"}).
					AddRow(day(2021, time.March, 1)).
					AddRow(day(2021, time.March, 2)).
					AddRow(day(2021, time.March, 3)))
			mock.ExpectCommit()

			days, err := svc.TradingDays(context.Background(), day(2021, time.March, 1), day(2021, time.March, 5))
			Expect(err).To(BeNil())
			Expect(days).To(HaveLen(3))
			Expect(days[0]).To(Equal(day(2021, time.March, 1)))
			Expect(days[2]).To(Equal(day(2021, time.March, 3)))
		})
	})

	Describe("when bulk loading prices", func() {
		It("should key the lookup by asset and normalized day", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT asset_id, trading_day, adj_close::text FROM eod_prices")).
				WillReturnRows(pgxmock.NewRows([]string{"asset_id", "trading_day", "adj_close"}).
					AddRow(data.AssetID(1), day(2021, time.March, 1), "101.25").
					AddRow(data.AssetID(1), day(2021, time.March, 2), "102.50"))
			mock.ExpectCommit()

			lookup, err := svc.PriceLookup(context.Background(), []data.AssetID{1}, day(2021, time.March, 1), day(2021, time.March, 2))
			Expect(err).To(BeNil())
			Expect(lookup).To(HaveLen(2))

			price := lookup[data.PriceKey{AssetID: 1, Date: day(2021, time.March, 1)}]
			Expect(price.InexactFloat64()).Should(BeNumerically("~", 101.25))
		})
	})

	Describe("when fetching a single price", func() {
		It("should report absence without error", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT adj_close::text FROM eod_prices WHERE asset_id=$1 AND trading_day=$2")).
				WillReturnError(pgx.ErrNoRows)
			mock.ExpectRollback()

			_, ok, err := svc.Get(context.Background(), 1, day(2021, time.March, 6))
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())
		})

		It("should memoise the first hit", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT adj_close::text FROM eod_prices WHERE asset_id=$1 AND trading_day=$2")).
				WillReturnRows(pgxmock.NewRows([]string{"adj_close"}).AddRow("99.10"))
			mock.ExpectCommit()

			price, ok, err := svc.Get(context.Background(), 1, day(2021, time.March, 1))
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())
			Expect(price.InexactFloat64()).Should(BeNumerically("~", 99.10))

			// second call served from the cache; no expectations remain
			price, ok, err = svc.Get(context.Background(), 1, day(2021, time.March, 1))
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())
			Expect(price.InexactFloat64()).Should(BeNumerically("~", 99.10))
			Expect(mock.ExpectationsWereMet()).To(BeNil())
		})
	})

	Describe("when fetching the latest price", func() {
		It("should return the most recent close", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT adj_close::text FROM eod_prices WHERE asset_id=$1 ORDER BY trading_day DESC LIMIT 1")).
				WillReturnRows(pgxmock.NewRows([]string{"adj_close"}).AddRow("215.37"))
			mock.ExpectCommit()

			price, err := svc.LatestPrice(context.Background(), 1)
			Expect(err).To(BeNil())
			Expect(price.InexactFloat64()).Should(BeNumerically("~", 215.37))
		})

		It("should surface the absence of data", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT adj_close::text FROM eod_prices WHERE asset_id=$1 ORDER BY trading_day DESC LIMIT 1")).
				WillReturnError(pgx.ErrNoRows)
			mock.ExpectRollback()

			_, err := svc.LatestPrice(context.Background(), 1)
			Expect(err).To(MatchError(data.ErrNoPriceData))
		})
	})

	Describe("when loading the full close series", func() {
		It("should surface the absence of data", func() {
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT trading_day, adj_close::double precision FROM eod_prices WHERE asset_id=$1 ORDER BY trading_day")).
				WillReturnRows(pgxmock.NewRows([]string{"trading_day", "adj_close"}))
			mock.ExpectCommit()

			_, err := svc.AssetCloses(context.Background(), 1)
			Expect(err).To(MatchError(data.ErrNoPriceData))
		})
	})
})

var _ = Describe("Assets", func() {
	var mock pgxmock.PgxConnIface

	BeforeEach(func() {
		var err error
		mock, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(mock)
	})

	It("should list the universe in id order", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, ticker, asset_name FROM assets ORDER BY id")).
			WillReturnRows(pgxmock.NewRows([]string{"id", "ticker", "asset_name"}).
				AddRow(data.AssetID(1), "VTI", "Vanguard Total Stock Market ETF").
				AddRow(data.AssetID(2), "BND", "Vanguard Total Bond Market ETF"))
		mock.ExpectCommit()

		assets, err := data.AllAssets(context.Background())
		Expect(err).To(BeNil())
		Expect(assets).To(HaveLen(2))
		Expect(assets[0].Ticker).To(Equal("VTI"))
		Expect(assets[1].ID).To(Equal(data.AssetID(2)))
	})

	It("should translate a missing asset into a typed error", func() {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, ticker, asset_name FROM assets WHERE id=$1")).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := data.GetAsset(context.Background(), 999)
		Expect(err).To(MatchError(data.ErrAssetNotFound))
	})

	It("should report the availability window", func() {
		first := day(2015, time.January, 2)
		last := day(2021, time.December, 31)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(trading_day), MAX(trading_day), COUNT(*) FROM eod_prices WHERE asset_id=$1")).
			WillReturnRows(pgxmock.NewRows([]string{"min", "max", "count"}).
				AddRow(&first, &last, 1764))
		mock.ExpectCommit()

		avail, err := data.GetAvailability(context.Background(), 1)
		Expect(err).To(BeNil())
		Expect(avail.FirstDate).To(Equal(day(2015, time.January, 2)))
		Expect(avail.TotalDays).To(Equal(1764))
	})
})

var _ = Describe("Calendar helpers", func() {
	It("should pre-filter weekends", func() {
		Expect(data.IsTradingDay(day(2021, time.March, 1))).To(BeTrue())  // Monday
		Expect(data.IsTradingDay(day(2021, time.March, 6))).To(BeFalse()) // Saturday
		Expect(data.IsTradingDay(day(2021, time.March, 7))).To(BeFalse()) // Sunday
	})

	It("should recognize the first trading day of a month", func() {
		tradingDays := []time.Time{
			day(2021, time.January, 4),
			day(2021, time.January, 5),
			day(2021, time.February, 1),
		}
		Expect(data.IsFirstTradingDayOfMonth(day(2021, time.January, 4), tradingDays)).To(BeTrue())
		Expect(data.IsFirstTradingDayOfMonth(day(2021, time.January, 5), tradingDays)).To(BeFalse())
		Expect(data.IsFirstTradingDayOfMonth(day(2021, time.February, 1), tradingDays)).To(BeTrue())
		Expect(data.IsFirstTradingDayOfMonth(day(2021, time.March, 1), tradingDays)).To(BeFalse())
	})

	It("should normalize timestamps to midnight UTC", func() {
		loc, err := time.LoadLocation("America/New_York")
		Expect(err).To(BeNil())
		ts := time.Date(2021, time.March, 1, 16, 0, 0, 0, loc)
		Expect(data.Day(ts)).To(Equal(day(2021, time.March, 1)))
	})
})
