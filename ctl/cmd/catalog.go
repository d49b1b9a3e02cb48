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
	"fmt"

	"github.com/apache/incubator-horaedb-extcatalog/ctl/operation"
	"github.com/spf13/cobra"
)

var refresh bool

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Aliases: []string{"c"},
	Short:   "Operations on the catalogs",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered catalogs",
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.CatalogsList())
	},
}

var catalogInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the catalog, or refresh it from the metastore with --refresh",
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.CatalogInit(refresh))
	},
}

var databaseCmd = &cobra.Command{
	Use:     "database",
	Aliases: []string{"d"},
	Short:   "Operations on the databases of the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var databaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the databases of the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.DatabasesList())
	},
}

var databaseLoadCmd = &cobra.Command{
	Use:   "load <database>",
	Short: "Cache the table names of the database on the node",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.DatabaseLoad(args[0]))
	},
}

var tableCmd = &cobra.Command{
	Use:     "table",
	Aliases: []string{"t"},
	Short:   "Operations on the tables of the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var tableListCmd = &cobra.Command{
	Use:   "list <database>",
	Short: "List the tables of the database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printIfErr(operation.TablesList(args[0]))
	},
}

var tableExistsCmd = &cobra.Command{
	Use:   "exists <database> <table>",
	Short: "Check whether the table exists in the metastore",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		exists, err := operation.TableExist(args[0], args[1])
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println(exists)
	},
}

func printIfErr(err error) {
	if err != nil {
		fmt.Println(err)
	}
}

func init() {
	catalogInitCmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "refresh the catalog from the metastore")
	catalogCmd.AddCommand(catalogListCmd, catalogInitCmd)
	databaseCmd.AddCommand(databaseListCmd, databaseLoadCmd)
	tableCmd.AddCommand(tableListCmd, tableExistsCmd)
	rootCmd.AddCommand(catalogCmd, databaseCmd, tableCmd)
}
