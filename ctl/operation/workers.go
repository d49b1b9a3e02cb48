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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Worker struct {
	ID            uint64    `json:"id"`
	Name          string    `json:"name"`
	Endpoint      string    `json:"endpoint"`
	LastTouchTime time.Time `json:"lastTouchTime"`
	Live          bool      `json:"live"`
}

type ScanTask struct {
	WorkerID   uint64          `json:"workerId"`
	WorkerName string          `json:"workerName"`
	Endpoint   string          `json:"endpoint"`
	Kind       string          `json:"kind"`
	Range      json.RawMessage `json:"range"`
}

type FlowLimiter struct {
	Limit  int  `json:"limit"`
	Burst  int  `json:"burst"`
	Enable bool `json:"enable"`
}

func WorkersList() error {
	var workers []Worker
	if err := HTTPUtil(http.MethodGet, baseURL()+APIWorkers, nil, &workers); err != nil {
		return err
	}

	t := tableWriter(workersListHeader)
	for _, w := range workers {
		t.AppendRow(table.Row{w.ID, w.Name, w.Endpoint, w.Live, FormatTime(w.LastTouchTime)})
	}
	render(t)
	return nil
}

// NumbersPlan plans the scan tasks of numbers(total, parallelism).
func NumbersPlan(total uint64, parallelism int) ([]ScanTask, error) {
	body, err := json.Marshal(map[string]any{
		"kind":        "numbers",
		"parallelism": parallelism,
		"params":      map[string]string{"total": strconv.FormatUint(total, 10)},
	})
	if err != nil {
		return nil, err
	}

	var tasks []ScanTask
	if err := HTTPUtil(http.MethodPost, baseURL()+APIPlan, bytes.NewReader(body), &tasks); err != nil {
		return nil, err
	}

	t := tableWriter(planHeader)
	for i, task := range tasks {
		t.AppendRow(table.Row{i, task.WorkerID, task.WorkerName, task.Endpoint, task.Kind, string(task.Range)})
	}
	render(t)
	return tasks, nil
}

func LimiterGet() error {
	var cfg FlowLimiter
	if err := HTTPUtil(http.MethodGet, baseURL()+APILimiter, nil, &cfg); err != nil {
		return err
	}

	t := tableWriter(limiterHeader)
	t.AppendRow(table.Row{cfg.Limit, cfg.Burst, cfg.Enable})
	render(t)
	return nil
}

func LimiterSet(cfg FlowLimiter) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return HTTPUtil(http.MethodPut, baseURL()+APILimiter, bytes.NewReader(body), nil)
}

func LeaderGet() error {
	var leader string
	if err := HTTPUtil(http.MethodGet, baseURL()+APIDebugLead, nil, &leader); err != nil {
		return err
	}
	fmt.Println(leader)
	return nil
}
