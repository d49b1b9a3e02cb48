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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/incubator-horaedb-extcatalog/ctl/operation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "extcatalogctl",
	Short: "extcatalogctl is a command line tool for the external catalog service",
	Run:   func(cmd *cobra.Command, args []string) {},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}

	for _, arg := range os.Args {
		if arg == "-h" || arg == "--help" {
			os.Exit(0)
		}
	}

	for {
		printPrompt(viper.GetString(operation.RootAddr), viper.GetString(operation.RootCatalog))
		args, err := ReadArgs(os.Stdin)
		if err != nil {
			fmt.Println(err)
			continue
		}
		rootCmd.SetArgs(args)
		if err = rootCmd.Execute(); err != nil {
			fmt.Println(err)
		}
	}
}

func init() {
	rootCmd.PersistentFlags().String(operation.RootAddr, "127.0.0.1:8080", "addr of the http service of any node")
	_ = viper.BindPFlag(operation.RootAddr, rootCmd.PersistentFlags().Lookup(operation.RootAddr))

	rootCmd.PersistentFlags().StringP(operation.RootCatalog, "c", "", "name of the catalog to operate on")
	_ = viper.BindPFlag(operation.RootCatalog, rootCmd.PersistentFlags().Lookup(operation.RootCatalog))

	rootCmd.CompletionOptions = cobra.CompletionOptions{
		DisableDefaultCmd:   true,
		DisableNoDescFlag:   true,
		DisableDescriptions: true,
		HiddenDefaultCmd:    true,
	}
}

func printPrompt(address, catalog string) {
	fmt.Printf("%s(%s) > ", address, catalog)
}

// ReadArgs reads one command from the input. A line ending with '\' continues on the next line, and a part quoted by
// single quotes is kept as one argument.
func ReadArgs(in io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(in)

	var lines []string
	for scanner.Scan() {
		line := strings.Trim(scanner.Text(), "\r\n ")
		if line == "" {
			return []string{}, nil
		}
		if line[len(line)-1] == '\\' {
			line = line[:len(line)-1]
			lines = append(lines, line)
		} else {
			lines = append(lines, line)
			break
		}
	}

	argsStr := strings.Join(lines, " ")
	rawArgs := strings.Split(argsStr, "'")

	if len(rawArgs) != 1 && len(rawArgs) != 3 {
		return nil, errors.New("read args from input error")
	}

	args := strings.Split(rawArgs[0], " ")

	if len(rawArgs) == 3 {
		args = append(args, rawArgs[1])
		args = append(args, strings.Split(rawArgs[2], " ")...)
	}

	res := make([]string, 0, len(args))
	for _, arg := range args {
		if arg != "" {
			res = append(res, strings.TrimSpace(arg))
		}
	}
	return res, nil
}
