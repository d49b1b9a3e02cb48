/*
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package cmd

import (
	"github.com/apache/incubator-horaedb-extcatalog/ctl/operation"
	"github.com/spf13/cobra"
)

var (
	total       uint64
	parallelism int
	limiterCfg  operation.FlowLimiter
)

var workerCmd = &cobra.Command{
	Use:     "worker",
	Aliases: []string{"w"},
	Short:   "List the workers known by the node",
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.WorkersList())
	},
}

var numbersCmd = &cobra.Command{
	Use:   "numbers",
	Short: "Plan the scan tasks of numbers(total, parallelism)",
	Run: func(cmd *cobra.Command, args []string) {
		_, err := operation.NumbersPlan(total, parallelism)
		printIfErr(err)
	},
}

var limiterCmd = &cobra.Command{
	Use:     "limiter",
	Aliases: []string{"l"},
	Short:   "Flow limiter of the metastore calls",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var limiterGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Get the flow limiter config",
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.LimiterGet())
	},
}

var limiterSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the flow limiter config",
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.LimiterSet(limiterCfg))
	},
}

var leaderCmd = &cobra.Command{
	Use:   "leader",
	Short: "Show the endpoint of the leader",
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.LeaderGet())
	},
}

func init() {
	numbersCmd.Flags().Uint64VarP(&total, "total", "t", 0, "total numbers to generate")
	numbersCmd.Flags().IntVarP(&parallelism, "parallelism", "p", 1, "number of scan tasks")
	limiterSetCmd.Flags().IntVar(&limiterCfg.Limit, "limit", 0, "rate of the limiter")
	limiterSetCmd.Flags().IntVar(&limiterCfg.Burst, "burst", 0, "burst of the limiter")
	limiterSetCmd.Flags().BoolVar(&limiterCfg.Enable, "enable", false, "enable or disable the limiter")
	limiterCmd.AddCommand(limiterGetCmd, limiterSetCmd)
	rootCmd.AddCommand(workerCmd, numbersCmd, limiterCmd, leaderCmd)
}
