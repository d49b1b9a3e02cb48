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

package operation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func tableWriter(strs []string) table.Writer {
	header := table.Row{}
	for _, s := range strs {
		header = append(header, s)
	}
	t := table.NewWriter()
	t.AppendHeader(header)
	return t
}

func baseURL() string {
	return HTTP + viper.GetString(RootAddr)
}

func catalogURL() string {
	return baseURL() + APICatalogs + "/" + viper.GetString(RootCatalog)
}

// HTTPUtil sends the request and decodes the data of a successful response into data.
func HTTPUtil(method, url string, body io.Reader, data interface{}) error {
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		return errors.WithMessagef(err, "build request, url:%s", url)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	resp, err := (&http.Client{}).Do(request)
	if err != nil {
		return errors.WithMessagef(err, "send request, url:%s", url)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithMessage(err, "read response")
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return errors.WithMessagef(err, "decode response, status code:%d", resp.StatusCode)
	}
	if env.Status != "success" {
		return errors.Errorf("request failed, status code:%d, err:%s", resp.StatusCode, env.Error)
	}
	if data == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, data)
}

func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000")
}

func render(t table.Writer) {
	fmt.Println(t.Render())
}
