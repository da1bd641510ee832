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

package cmd

import (
	"context"

	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/database"
	"github.com/quantfolio/qf-api/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(purgeCmd)
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired temporary backtest records",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		num, err := services.PurgeExpired(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("purge failed")
		}
		log.Info().Int64("NumRecords", num).Msg("purge complete")
	},
}
