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

package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/montecarlo"
	"github.com/quantfolio/qf-api/services"
)

// RunSimulation executes GET /v1/montecarlo. Parameters arrive as
// query args: ticker_id, monthly_investment, investment_months,
// simulation_method, and optional num_simulations and seed.
func RunSimulation(c *fiber.Ctx) error {
	assetID, err := strconv.ParseInt(c.Query("ticker_id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "ticker_id must be an integer")
	}

	monthlyInvestment, err := strconv.ParseFloat(c.Query("monthly_investment"), 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "monthly_investment must be a number")
	}

	investmentMonths, err := strconv.Atoi(c.Query("investment_months"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "investment_months must be an integer")
	}

	cfg := &montecarlo.Config{
		MonthlyInvestment: monthlyInvestment,
		InvestmentMonths:  investmentMonths,
		NumSimulations:    c.QueryInt("num_simulations", montecarlo.DefaultSimulations),
		Method:            c.Query("simulation_method", montecarlo.MethodNormal),
	}

	if seedStr := c.Query("seed"); seedStr != "" {
		seed, err := strconv.ParseUint(seedStr, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "seed must be an unsigned integer")
		}
		cfg.Seed = &seed
	}

	results, err := services.Simulate(c.Context(), data.AssetID(assetID), cfg)
	if err != nil {
		return translateError(err)
	}
	return c.JSON(results)
}
