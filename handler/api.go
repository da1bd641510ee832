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
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/quantfolio/qf-api/backtest"
	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/services"
)

// Ping responds with an availability check
func Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "success", "message": "API is functional"})
}

// translateError is the single place engine and service errors become
// HTTP status codes.
func translateError(err error) error {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return fiber.NewError(fiber.StatusBadRequest, validationErr.Reason)
	case errors.Is(err, data.ErrAssetNotFound):
		return fiber.NewError(fiber.StatusNotFound, "asset not found")
	case errors.Is(err, data.ErrNoPriceData):
		return fiber.NewError(fiber.StatusNotFound, "no price data for asset")
	case errors.Is(err, services.ErrBacktestNotFound):
		return fiber.NewError(fiber.StatusNotFound, "backtest not found")
	case errors.Is(err, backtest.ErrCancelled):
		return fiber.NewError(fiber.StatusServiceUnavailable, "backtest cancelled")
	case errors.Is(err, backtest.ErrOversell):
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
}
