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
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/database"
	"github.com/quantfolio/qf-api/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(backtestCmd)
}

var backtestCmd = &cobra.Command{
	Use:   "backtest [request file]",
	Args:  cobra.ExactArgs(1),
	Short: "Run a backtest from a JSON request file and print the result",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("FileName", args[0]).Msg("could not read request file")
		}

		req := &services.BacktestRequest{}
		if err := json.Unmarshal(raw, req); err != nil {
			log.Fatal().Err(err).Msg("could not parse request file")
		}

		resp, err := services.Backtest(ctx, req)
		if err != nil {
			log.Fatal().Err(err).Msg("backtest failed")
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("could not serialize result")
		}
		fmt.Println(string(out))
	},
}
