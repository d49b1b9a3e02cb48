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

package http

import (
	"net/http"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/limiter"
	"github.com/apache/incubator-horaedb-extcatalog/server/planner"
	"github.com/apache/incubator-horaedb-extcatalog/server/status"
	"github.com/apache/incubator-horaedb-extcatalog/server/worker"
)

const (
	statusSuccess string = "success"
	statusError   string = "error"

	catalogParam  string = "catalog"
	databaseParam string = "database"
	tableParam    string = "table"
	idParam       string = "id"
	kindParam     string = "kind"

	apiPrefix string = "/api/v1"
)

type response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   int         `json:"code,omitempty"`
}

type apiFuncResult struct {
	data interface{}
	err  error
}

func okResult(data interface{}) apiFuncResult {
	return apiFuncResult{
		data: data,
		err:  nil,
	}
}

func errResult(err error) apiFuncResult {
	return apiFuncResult{
		data: nil,
		err:  err,
	}
}

type apiFunc func(r *http.Request) apiFuncResult

type API struct {
	catalogManager *catalog.Manager
	planner        *planner.Planner
	workers        *worker.RegistryImpl

	serverStatus *status.ServerStatus

	forwardClient *ForwardClient
	flowLimiter   *limiter.FlowLimiter
}

type CatalogInfo struct {
	ID              uint64            `json:"id"`
	Name            string            `json:"name"`
	Kind            string            `json:"kind"`
	Properties      map[string]string `json:"properties"`
	Initialized     bool              `json:"initialized"`
	AppliedRevision int64             `json:"appliedRevision"`
}

type DatabaseInfo struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Initialized bool   `json:"initialized"`
}

type TableExistsResult struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Exists   bool   `json:"exists"`
}

type PlanRequest struct {
	Kind        string            `json:"kind"`
	Parallelism int               `json:"parallelism"`
	Params      map[string]string `json:"params"`
}

type ScanTaskInfo struct {
	WorkerID   uint64            `json:"workerId"`
	WorkerName string            `json:"workerName"`
	Endpoint   string            `json:"endpoint"`
	Kind       string            `json:"kind"`
	Range      planner.ScanRange `json:"range"`
}

type WorkerHeartbeatRequest struct {
	Endpoint string `json:"endpoint"`
}

type WorkerInfo struct {
	ID            uint64    `json:"id"`
	Name          string    `json:"name"`
	Endpoint      string    `json:"endpoint"`
	LastTouchTime time.Time `json:"lastTouchTime"`
	Live          bool      `json:"live"`
}

type UpdateFlowLimiterRequest struct {
	Limit  int  `json:"limit"`
	Burst  int  `json:"burst"`
	Enable bool `json:"enable"`
}
