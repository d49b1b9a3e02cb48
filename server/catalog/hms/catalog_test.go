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

package hms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestConcurrentEnsureInitialized(t *testing.T) {
	re := require.New(t)
	node, _ := newLeaderNode("sales", "hr")
	// Keep the refresh in flight long enough for the other callers to pile up.
	node.metastore.listDBHook = func() { time.Sleep(20 * time.Millisecond) }

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- node.catalog.EnsureInitialized(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		re.NoError(err)
	}

	re.Equal(int32(1), node.factory.calls.Load())
	re.Equal(int32(1), node.metastore.listDBCalls.Load())
	re.True(node.catalog.Replica().IsInitialized())
	re.Equal([]string{"hr", "sales"}, node.catalog.Replica().State().DatabaseNames())
}

func TestListDatabaseNamesRefreshesOnce(t *testing.T) {
	re := require.New(t)
	node, log := newLeaderNode("sales", "hr")
	ctx := context.Background()

	names, err := node.catalog.ListDatabaseNames(ctx)
	re.NoError(err)
	re.Equal([]string{"hr", "sales"}, names)
	re.Equal(int32(1), node.metastore.listDBCalls.Load())

	names, err = node.catalog.ListDatabaseNames(ctx)
	re.NoError(err)
	re.Equal([]string{"hr", "sales"}, names)
	re.Equal(int32(1), node.metastore.listDBCalls.Load())
	re.Equal(1, log.appendedCount())
}

func TestRefreshScenario(t *testing.T) {
	re := require.New(t)
	node, _ := newLeaderNode("sales", "hr")
	ctx := context.Background()

	ids, err := node.catalog.GetDatabaseIDs(ctx)
	re.NoError(err)
	re.Equal([]catalog.DatabaseID{100, 101}, ids)
	sales, ok, err := node.catalog.GetDatabaseByName(ctx, "sales")
	re.NoError(err)
	re.True(ok)
	hr, ok, err := node.catalog.GetDatabaseByName(ctx, "hr")
	re.NoError(err)
	re.True(ok)
	re.NotEqual(sales.ID, hr.ID)

	node.metastore.setDatabases("sales", "finance")
	re.NoError(node.catalog.Invalidate(ctx))
	re.False(node.catalog.Replica().IsInitialized())

	names, err := node.catalog.ListDatabaseNames(ctx)
	re.NoError(err)
	re.Equal([]string{"finance", "sales"}, names)

	sales2, ok, err := node.catalog.GetDatabaseByName(ctx, "sales")
	re.NoError(err)
	re.True(ok)
	re.Equal(sales.ID, sales2.ID)

	finance, ok, err := node.catalog.GetDatabaseByName(ctx, "finance")
	re.NoError(err)
	re.True(ok)
	re.Equal(catalog.DatabaseID(102), finance.ID)

	_, ok, err = node.catalog.GetDatabaseByName(ctx, "hr")
	re.NoError(err)
	re.False(ok)
	_, ok, err = node.catalog.GetDatabaseByID(ctx, hr.ID)
	re.NoError(err)
	re.False(ok)
}

func TestTransientRefreshFailure(t *testing.T) {
	re := require.New(t)
	node, log := newLeaderNode("sales")
	ctx := context.Background()

	node.metastore.setListDBErr(errors.New("metastore is down"))
	re.NoError(node.catalog.EnsureInitialized(ctx))
	re.False(node.catalog.Replica().IsInitialized())
	re.Equal(0, node.catalog.Replica().State().Len())
	re.Equal(0, log.appendedCount())

	node.metastore.setListDBErr(nil)
	names, err := node.catalog.ListDatabaseNames(ctx)
	re.NoError(err)
	re.Equal([]string{"sales"}, names)
	re.True(node.catalog.Replica().IsInitialized())
	re.Equal(int32(2), node.metastore.listDBCalls.Load())
}

func TestConnectionSetupFailure(t *testing.T) {
	re := require.New(t)
	node, _ := newLeaderNode("sales")
	node.factory.failures.Store(1)
	ctx := context.Background()

	err := node.catalog.EnsureInitialized(ctx)
	re.True(coderr.Is(err, coderr.ConnectionSetup))
	re.Contains(err.Error(), "c1")
	re.False(node.catalog.Replica().IsInitialized())

	re.NoError(node.catalog.EnsureInitialized(ctx))
	re.True(node.catalog.Replica().IsInitialized())
	re.Equal(int32(2), node.factory.calls.Load())
}

func TestAppendFailureKeepsState(t *testing.T) {
	re := require.New(t)
	log := newMemLog(2)
	// The node believes it still leads with the term 1, which the log has moved past.
	node := newTestNode(log, &fakeLeadership{leader: true, term: 1}, nil, newFakeMetastore("sales"), newSeqAllocator(1))

	err := node.catalog.EnsureInitialized(context.Background())
	re.Error(err)
	re.False(node.catalog.Replica().IsInitialized())
	re.Equal(0, node.catalog.Replica().State().Len())
}

func TestFollowerForwardsToLeader(t *testing.T) {
	re := require.New(t)
	leader, log := newLeaderNode("sales", "hr")
	forwarder := &leaderForwarder{leader: leader.catalog}
	followerMetastore := newFakeMetastore("should", "not", "be", "listed")
	follower := newTestNode(log, &fakeLeadership{leader: false}, forwarder, followerMetastore, newSeqAllocator(1000))
	ctx := context.Background()

	names, err := follower.catalog.ListDatabaseNames(ctx)
	re.NoError(err)
	re.Equal([]string{"hr", "sales"}, names)
	re.Equal(int32(1), forwarder.calls.Load())
	re.Equal(int32(0), followerMetastore.listDBCalls.Load())
	re.Equal(int32(1), leader.metastore.listDBCalls.Load())

	// Both nodes reach the same generation.
	leaderIDs, err := leader.catalog.GetDatabaseIDs(ctx)
	re.NoError(err)
	followerIDs, err := follower.catalog.GetDatabaseIDs(ctx)
	re.NoError(err)
	re.Equal(leaderIDs, followerIDs)

	// The follower is initialized now and serves reads locally.
	_, err = follower.catalog.ListDatabaseNames(ctx)
	re.NoError(err)
	re.Equal(int32(1), forwarder.calls.Load())

	err = follower.catalog.Invalidate(ctx)
	re.True(coderr.Is(err, coderr.NotLeader))

	// An invalidation by the leader reaches the follower through the log.
	leader.metastore.setDatabases("sales", "finance")
	re.NoError(leader.catalog.Invalidate(ctx))
	re.False(follower.catalog.Replica().IsInitialized())
	names, err = follower.catalog.ListDatabaseNames(ctx)
	re.NoError(err)
	re.Equal([]string{"finance", "sales"}, names)
	re.Equal(int32(2), forwarder.calls.Load())
}

func TestFollowerForwardFailure(t *testing.T) {
	re := require.New(t)
	log := newMemLog(1)
	forwarder := &failingForwarder{err: errors.New("leader unreachable")}
	follower := newTestNode(log, &fakeLeadership{leader: false}, forwarder, newFakeMetastore(), newSeqAllocator(1))

	_, err := follower.catalog.ListDatabaseNames(context.Background())
	re.Error(err)
	re.Contains(err.Error(), "c1")
	re.False(follower.catalog.Replica().IsInitialized())
}

type failingForwarder struct {
	err error
}

func (f *failingForwarder) Forward(_ context.Context, _ catalog.ID, _ catalog.ApplyWaiter) error {
	return f.err
}

func TestListTableNames(t *testing.T) {
	re := require.New(t)
	node, _ := newLeaderNode("sales", "hr")
	node.metastore.tables["sales"] = []string{"orders", "customers"}
	ctx := context.Background()

	// Not loaded: every call reads through.
	tables, err := node.catalog.ListTableNames(ctx, "sales")
	re.NoError(err)
	re.ElementsMatch([]string{"orders", "customers"}, tables)
	_, err = node.catalog.ListTableNames(ctx, "sales")
	re.NoError(err)
	re.Equal(int32(2), node.metastore.listTablesCalls.Load())
	db, _, err := node.catalog.GetDatabaseByName(ctx, "sales")
	re.NoError(err)
	re.False(db.IsInitialized())

	// Loaded: served from the cache.
	re.NoError(node.catalog.LoadDatabase(ctx, "sales"))
	re.Equal(int32(3), node.metastore.listTablesCalls.Load())
	tables, err = node.catalog.ListTableNames(ctx, "sales")
	re.NoError(err)
	re.Equal([]string{"customers", "orders"}, tables)
	re.Equal(int32(3), node.metastore.listTablesCalls.Load())

	// A refresh drops the cache.
	re.NoError(node.catalog.Invalidate(ctx))
	re.NoError(node.catalog.EnsureInitialized(ctx))
	_, err = node.catalog.ListTableNames(ctx, "sales")
	re.NoError(err)
	re.Equal(int32(4), node.metastore.listTablesCalls.Load())

	// Unknown to the generation: read through without a refresh.
	node.metastore.tables["finance"] = []string{"ledger"}
	tables, err = node.catalog.ListTableNames(ctx, "finance")
	re.NoError(err)
	re.Equal([]string{"ledger"}, tables)
	re.Equal(int32(5), node.metastore.listTablesCalls.Load())
	re.Equal(int32(2), node.metastore.listDBCalls.Load())
	_, ok, err := node.catalog.GetDatabaseByName(ctx, "finance")
	re.NoError(err)
	re.False(ok)
	re.True(coderr.Is(node.catalog.LoadDatabase(ctx, "finance"), coderr.NotFound))

	node.metastore.queryErr = errors.New("timeout")
	_, err = node.catalog.ListTableNames(ctx, "hr")
	re.True(coderr.Is(err, coderr.RemoteQuery))
	re.Contains(err.Error(), "hr")
}

func TestTableExists(t *testing.T) {
	re := require.New(t)
	node, _ := newLeaderNode("sales")
	node.metastore.tables["sales"] = []string{"orders"}
	ctx := context.Background()

	exists, err := node.catalog.TableExists(ctx, "sales", "orders")
	re.NoError(err)
	re.True(exists)
	exists, err = node.catalog.TableExists(ctx, "sales", "refunds")
	re.NoError(err)
	re.False(exists)
	re.Equal(int32(2), node.metastore.existsCalls.Load())

	// Existence checks never refresh the catalog.
	re.False(node.catalog.Replica().IsInitialized())
	re.Equal(int32(0), node.metastore.listDBCalls.Load())

	node.metastore.queryErr = errors.New("timeout")
	_, err = node.catalog.TableExists(ctx, "sales", "orders")
	re.True(coderr.Is(err, coderr.RemoteQuery))
}

func TestPassThroughLimited(t *testing.T) {
	re := require.New(t)
	node, _ := newLeaderNode("sales")
	node.catalog.deps.Limiter = denyLimiter{}

	_, err := node.catalog.TableExists(context.Background(), "sales", "orders")
	re.True(coderr.Is(err, coderr.TooManyRequests))
	re.Equal(int32(0), node.metastore.existsCalls.Load())
}

func TestParseMetastoreURIs(t *testing.T) {
	re := require.New(t)

	host, port, err := parseMetastoreURIs("thrift://hms-0:9084,thrift://hms-1:9084")
	re.NoError(err)
	re.Equal("hms-0", host)
	re.Equal(9084, port)

	host, port, err = parseMetastoreURIs("thrift://hms")
	re.NoError(err)
	re.Equal("hms", host)
	re.Equal(defaultMetastorePort, port)

	for _, invalid := range []string{"", "http://hms:9083", "thrift://:9083", "thrift://hms:port"} {
		_, _, err = parseMetastoreURIs(invalid)
		re.Error(err, invalid)
	}
}
