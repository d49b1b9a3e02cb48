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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	viper.Set(RootAddr, strings.TrimPrefix(srv.URL, HTTP))
	viper.Set(RootCatalog, "c1")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPUtil(t *testing.T) {
	re := require.New(t)
	newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case APICatalogs + "/c1/databases/sales/tables/orders":
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "success",
				"data":   TableExists{Database: "sales", Table: "orders", Exists: true},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "error": "catalog not found"})
		}
	})

	exists, err := TableExist("sales", "orders")
	re.NoError(err)
	re.True(exists)

	_, err = TableExist("sales", "refunds")
	re.Error(err)
	re.Contains(err.Error(), "catalog not found")
	re.Contains(err.Error(), "404")
}

func TestNumbersPlan(t *testing.T) {
	re := require.New(t)
	newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		re.Equal(APIPlan, r.URL.Path)
		body, err := io.ReadAll(r.Body)
		re.NoError(err)

		var req struct {
			Kind        string            `json:"kind"`
			Parallelism int               `json:"parallelism"`
			Params      map[string]string `json:"params"`
		}
		re.NoError(json.Unmarshal(body, &req))
		re.Equal("numbers", req.Kind)
		re.Equal(2, req.Parallelism)
		re.Equal("10", req.Params["total"])

		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"workerName": "a", "endpoint": "http://a", "kind": "numbers", "range": map[string]uint64{"start": 0, "end": 5, "total": 10}},
				{"workerName": "b", "endpoint": "http://b", "kind": "numbers", "range": map[string]uint64{"start": 5, "end": 10, "total": 10}},
			},
		})
	})

	tasks, err := NumbersPlan(10, 2)
	re.NoError(err)
	re.Len(tasks, 2)
	re.Equal("b", tasks[1].WorkerName)
	re.JSONEq(`{"start":5,"end":10,"total":10}`, string(tasks[1].Range))
}
