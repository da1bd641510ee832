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
	"github.com/quantfolio/qf-api/services"
)

// ListAssets executes GET /v1/assets
func ListAssets(c *fiber.Ctx) error {
	assets, err := services.Assets(c.Context())
	if err != nil {
		return translateError(err)
	}
	return c.JSON(assets)
}

// GetAssetDetail executes GET /v1/assets/:id
func GetAssetDetail(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "id must be an integer")
	}

	detail, err := services.AssetInfo(c.Context(), data.AssetID(id))
	if err != nil {
		return translateError(err)
	}
	return c.JSON(detail)
}
