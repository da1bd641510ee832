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
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/quantfolio/qf-api/services"
	"github.com/rs/zerolog/log"
)

// RunBacktest executes POST /v1/backtest
func RunBacktest(c *fiber.Ctx) error {
	req := &services.BacktestRequest{}
	if err := json.Unmarshal(c.Body(), req); err != nil {
		log.Info().Err(err).Msg("could not parse backtest request body")
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := services.Backtest(c.Context(), req)
	if err != nil {
		return translateError(err)
	}
	return c.JSON(resp)
}

// GetBacktest replays a persisted backtest: GET /v1/backtest/:id
func GetBacktest(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid backtest id")
	}

	payload, err := services.LoadBacktest(c.Context(), id)
	if err != nil {
		return translateError(err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}
