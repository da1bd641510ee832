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
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/quantfolio/qf-api/common"
	"github.com/quantfolio/qf-api/data"
	"github.com/quantfolio/qf-api/database"
	"github.com/quantfolio/qf-api/montecarlo"
	"github.com/quantfolio/qf-api/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	simMonthlyInvestment float64
	simMonths            int
	simNumSimulations    int
	simMethod            string
	simSeed              uint64
)

func init() {
	simulateCmd.Flags().Float64Var(&simMonthlyInvestment, "monthly-investment", 500, "Dollar amount invested each month")
	simulateCmd.Flags().IntVar(&simMonths, "months", 120, "Number of months to simulate")
	simulateCmd.Flags().IntVar(&simNumSimulations, "sims", montecarlo.DefaultSimulations, "Number of simulation paths")
	simulateCmd.Flags().StringVar(&simMethod, "method", montecarlo.MethodNormal, "Sampling method: 'Normal Distribution', 'Bootstrap', or 'T-Student'")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "RNG seed; 0 draws OS entropy")

	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [asset id]",
	Args:  cobra.ExactArgs(1),
	Short: "Run a Monte Carlo DCA simulation and print the result",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()

		assetID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			log.Fatal().Err(err).Str("Arg", args[0]).Msg("asset id must be an integer")
		}

		ctx := context.Background()
		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		cfg := &montecarlo.Config{
			MonthlyInvestment: simMonthlyInvestment,
			InvestmentMonths:  simMonths,
			NumSimulations:    simNumSimulations,
			Method:            simMethod,
		}
		if simSeed != 0 {
			cfg.Seed = &simSeed
		}

		results, err := services.Simulate(ctx, data.AssetID(assetID), cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("simulation failed")
		}

		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("could not serialize result")
		}
		fmt.Println(string(out))
	},
}
