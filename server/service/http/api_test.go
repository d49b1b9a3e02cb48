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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/config"
	"github.com/apache/incubator-horaedb-extcatalog/server/limiter"
	"github.com/apache/incubator-horaedb-extcatalog/server/member"
	"github.com/apache/incubator-horaedb-extcatalog/server/planner"
	"github.com/apache/incubator-horaedb-extcatalog/server/status"
	"github.com/apache/incubator-horaedb-extcatalog/server/worker"
	"github.com/stretchr/testify/require"
)

// memCatalog serves a fixed set of databases and tables.
type memCatalog struct {
	replica     *catalog.Replica
	tables      map[string][]string
	rev         atomic.Int64
	invalidates atomic.Int32
	lock        sync.Mutex
}

func newMemCatalogFactory(tables map[string][]string, created chan<- *memCatalog) catalog.Factory {
	return func(replica *catalog.Replica, _ catalog.Deps) (catalog.Catalog, error) {
		c := &memCatalog{replica: replica, tables: tables}
		created <- c
		return c, nil
	}
}

func (c *memCatalog) Meta() catalog.Meta { return c.replica.Meta() }

func (c *memCatalog) Replica() *catalog.Replica { return c.replica }

func (c *memCatalog) Close() error { return nil }

func (c *memCatalog) Invalidate(_ context.Context) error {
	c.invalidates.Add(1)
	return c.replica.Apply(c.rev.Add(1), catalog.NewInvalidateEvent(1, c.Meta().ID))
}

func (c *memCatalog) EnsureInitialized(_ context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.replica.IsInitialized() {
		return nil
	}
	state := c.replica.State()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	init := &catalog.InitEvent{CatalogID: c.Meta().ID, Kind: c.Meta().Kind}
	for i, name := range names {
		if db, ok := state.GetByName(name); ok {
			init.RefreshedDBs = append(init.RefreshedDBs, db.ID)
			continue
		}
		init.CreatedDBs = append(init.CreatedDBs, catalog.DatabaseEntry{ID: catalog.DatabaseID(100 + i), Name: name})
	}
	return c.replica.Apply(c.rev.Add(1), catalog.NewInitEvent(1, init))
}

func (c *memCatalog) ListDatabaseNames(ctx context.Context) ([]string, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	return c.replica.State().DatabaseNames(), nil
}

func (c *memCatalog) ListTableNames(_ context.Context, dbName string) ([]string, error) {
	tables, ok := c.tables[dbName]
	if !ok {
		return nil, catalog.ErrDatabaseNotFound.WithMessagef("database:%s", dbName)
	}
	return tables, nil
}

func (c *memCatalog) TableExists(_ context.Context, dbName, tableName string) (bool, error) {
	for _, t := range c.tables[dbName] {
		if t == tableName {
			return true, nil
		}
	}
	return false, nil
}

func (c *memCatalog) GetDatabaseByName(ctx context.Context, name string) (*catalog.Database, bool, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, false, err
	}
	db, ok := c.replica.State().GetByName(name)
	return db, ok, nil
}

func (c *memCatalog) GetDatabaseByID(ctx context.Context, id catalog.DatabaseID) (*catalog.Database, bool, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, false, err
	}
	db, ok := c.replica.State().GetByID(id)
	return db, ok, nil
}

func (c *memCatalog) GetDatabaseIDs(ctx context.Context) ([]catalog.DatabaseID, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	return c.replica.State().DatabaseIDs(), nil
}

func (c *memCatalog) LoadDatabase(ctx context.Context, dbName string) error {
	db, ok, err := c.GetDatabaseByName(ctx, dbName)
	if err != nil {
		return err
	}
	if !ok {
		return catalog.ErrDatabaseNotFound.WithMessagef("database:%s", dbName)
	}
	db.InstallTables(c.tables[dbName])
	return nil
}

type staticLeader struct {
	lock   sync.Mutex
	leader member.GetLeaderAddrResp
}

func (l *staticLeader) set(endpoint string, isLocal bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.leader = member.GetLeaderAddrResp{LeaderEndpoint: endpoint, IsLocal: isLocal}
}

func (l *staticLeader) GetLeaderAddr(_ context.Context) (member.GetLeaderAddrResp, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.leader, nil
}

type testNode struct {
	server   *httptest.Server
	catalog  *memCatalog
	leader   *staticLeader
	workers  *worker.RegistryImpl
	status   *status.ServerStatus
	limiter  *limiter.FlowLimiter
	httpPort int
}

func newTestNode(t *testing.T, httpPort int) *testNode {
	re := require.New(t)

	created := make(chan *memCatalog, 1)
	factories := map[catalog.Kind]catalog.Factory{
		catalog.KindHMS: newMemCatalogFactory(map[string][]string{
			"sales": {"orders", "refunds"},
			"hr":    {"staff"},
		}, created),
	}
	metas := []catalog.Meta{catalog.NewMeta(1, "c1", catalog.KindHMS, map[string]string{"hive.metastore.uris": "thrift://hms:9083"})}
	manager, err := catalog.NewManager(metas, factories, catalog.Deps{})
	re.NoError(err)

	node := &testNode{
		catalog:  <-created,
		leader:   &staticLeader{},
		workers:  worker.NewRegistryImpl(time.Minute),
		status:   status.NewServerStatus(),
		limiter:  limiter.NewFlowLimiter(config.LimiterConfig{Limit: 10, Burst: 10, Enable: true}),
		httpPort: httpPort,
	}
	node.status.Set(status.StatusRunning)
	node.leader.set("http://127.0.0.1:8831", true)

	api := NewAPI(manager, planner.NewPlanner(node.workers, 64, planner.NumbersSource{}), node.workers, node.status, NewForwardClient(node.leader, httpPort), node.limiter)
	node.server = httptest.NewServer(api.NewAPIRouter())
	t.Cleanup(node.server.Close)
	return node
}

func (n *testNode) do(t *testing.T, method, path string, body any, data any) (int, response) {
	re := require.New(t)

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		re.NoError(err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, n.server.URL+path, reader)
	re.NoError(err)
	resp, err := http.DefaultClient.Do(req)
	re.NoError(err)
	defer resp.Body.Close()

	var raw struct {
		response
		Data json.RawMessage `json:"data"`
	}
	re.NoError(json.NewDecoder(resp.Body).Decode(&raw))
	if data != nil && len(raw.Data) > 0 {
		re.NoError(json.Unmarshal(raw.Data, data))
	}
	return resp.StatusCode, raw.response
}

func TestCatalogAPI(t *testing.T) {
	re := require.New(t)
	node := newTestNode(t, 0)

	var names []string
	code, _ := node.do(t, http.MethodGet, "/api/v1/catalogs/c1/databases", nil, &names)
	re.Equal(http.StatusOK, code)
	re.Equal([]string{"hr", "sales"}, names)

	var catalogs []CatalogInfo
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs", nil, &catalogs)
	re.Equal(http.StatusOK, code)
	re.Len(catalogs, 1)
	re.Equal("c1", catalogs[0].Name)
	re.True(catalogs[0].Initialized)

	var db DatabaseInfo
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs/c1/databases/sales", nil, &db)
	re.Equal(http.StatusOK, code)
	re.Equal(uint64(101), db.ID)
	re.False(db.Initialized)

	code, _ = node.do(t, http.MethodPost, "/api/v1/catalogs/c1/databases/sales/load", nil, nil)
	re.Equal(http.StatusOK, code)
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs/c1/database-ids/101", nil, &db)
	re.Equal(http.StatusOK, code)
	re.Equal("sales", db.Name)
	re.True(db.Initialized)

	var ids []uint64
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs/c1/database-ids", nil, &ids)
	re.Equal(http.StatusOK, code)
	re.Equal([]uint64{100, 101}, ids)

	var tables []string
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs/c1/databases/sales/tables", nil, &tables)
	re.Equal(http.StatusOK, code)
	re.Equal([]string{"orders", "refunds"}, tables)

	var exists TableExistsResult
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs/c1/databases/hr/tables/staff", nil, &exists)
	re.Equal(http.StatusOK, code)
	re.True(exists.Exists)

	code, resp := node.do(t, http.MethodGet, "/api/v1/catalogs/c1/databases/finance", nil, nil)
	re.Equal(http.StatusNotFound, code)
	re.Equal(statusError, resp.Status)
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs/c2/databases", nil, nil)
	re.Equal(http.StatusNotFound, code)
	code, _ = node.do(t, http.MethodGet, "/api/v1/catalogs/c1/database-ids/abc", nil, nil)
	re.Equal(http.StatusBadRequest, code)
}

func TestRefreshIsForwardedToLeader(t *testing.T) {
	re := require.New(t)
	leader := newTestNode(t, 0)
	leaderURL, err := url.Parse(leader.server.URL)
	re.NoError(err)
	var leaderPort int
	_, err = fmt.Sscanf(leaderURL.Port(), "%d", &leaderPort)
	re.NoError(err)

	follower := newTestNode(t, leaderPort)
	follower.leader.set(fmt.Sprintf("http://%s:8831", leaderURL.Hostname()), false)

	var info CatalogInfo
	code, _ := follower.do(t, http.MethodPost, "/api/v1/catalogs/c1/refresh", nil, &info)
	re.Equal(http.StatusOK, code)
	re.True(info.Initialized)
	re.Equal(int32(1), leader.catalog.invalidates.Load())
	re.Equal(int32(0), follower.catalog.invalidates.Load())

	// Reads are always served locally.
	code, _ = follower.do(t, http.MethodGet, "/api/v1/catalogs/c1/databases", nil, nil)
	re.Equal(http.StatusOK, code)
	re.True(follower.catalog.replica.IsInitialized())
}

func TestPlanAndWorkerAPI(t *testing.T) {
	re := require.New(t)
	node := newTestNode(t, 0)

	code, resp := node.do(t, http.MethodPost, "/api/v1/tvf/plan", PlanRequest{Kind: planner.NumbersKind, Parallelism: 3, Params: map[string]string{planner.ParamTotal: "30"}}, nil)
	re.Equal(http.StatusServiceUnavailable, code)
	re.Equal(statusError, resp.Status)

	for _, endpoint := range []string{"http://a:9060", "http://b:9060"} {
		code, _ = node.do(t, http.MethodPost, "/api/v1/worker/heartbeat", WorkerHeartbeatRequest{Endpoint: endpoint}, nil)
		re.Equal(http.StatusOK, code)
	}
	code, _ = node.do(t, http.MethodPost, "/api/v1/worker/heartbeat", WorkerHeartbeatRequest{}, nil)
	re.Equal(http.StatusBadRequest, code)

	var workers []WorkerInfo
	code, _ = node.do(t, http.MethodGet, "/api/v1/workers", nil, &workers)
	re.Equal(http.StatusOK, code)
	re.Len(workers, 2)
	re.True(workers[0].Live)

	var tasks []struct {
		WorkerName string               `json:"workerName"`
		Kind       string               `json:"kind"`
		Range      planner.NumbersRange `json:"range"`
	}
	code, _ = node.do(t, http.MethodPost, "/api/v1/tvf/plan", PlanRequest{Kind: planner.NumbersKind, Parallelism: 3, Params: map[string]string{planner.ParamTotal: "30"}}, &tasks)
	re.Equal(http.StatusOK, code)
	re.Len(tasks, 3)
	for i, task := range tasks {
		re.Equal(planner.NumbersKind, task.Kind)
		re.Equal(uint64(i*10), task.Range.Start)
	}

	var columns []planner.Column
	code, _ = node.do(t, http.MethodGet, "/api/v1/tvf/numbers/columns", nil, &columns)
	re.Equal(http.StatusOK, code)
	re.Equal("number", columns[0].Name)
}

func TestFlowLimiterAndHealthAPI(t *testing.T) {
	re := require.New(t)
	node := newTestNode(t, 0)

	code, _ := node.do(t, http.MethodPut, "/api/v1/flowLimiter", UpdateFlowLimiterRequest{Limit: 5, Burst: 2, Enable: false}, nil)
	re.Equal(http.StatusOK, code)
	var cfg config.LimiterConfig
	code, _ = node.do(t, http.MethodGet, "/api/v1/flowLimiter", nil, &cfg)
	re.Equal(http.StatusOK, code)
	re.Equal(config.LimiterConfig{Limit: 5, Burst: 2, Enable: false}, cfg)

	code, _ = node.do(t, http.MethodPut, "/api/v1/flowLimiter", UpdateFlowLimiterRequest{Limit: -1, Burst: 2, Enable: true}, nil)
	re.Equal(http.StatusBadRequest, code)

	code, _ = node.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	re.Equal(http.StatusOK, code)
	node.status.Set(status.StatusReplaying)
	code, _ = node.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	re.Equal(http.StatusServiceUnavailable, code)
}

func TestFormatHTTPAddr(t *testing.T) {
	re := require.New(t)

	addr, err := formatHTTPAddr("http://127.0.0.1:8831", 8080)
	re.NoError(err)
	re.Equal("127.0.0.1:8080", addr)

	_, err = formatHTTPAddr("http://127.0.0.1", 8080)
	re.Error(err)
}
