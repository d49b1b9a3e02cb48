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
	"sync/atomic"

	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/pkg/errors"
)

type fakeMetastore struct {
	lock       sync.Mutex
	dbs        []string
	tables     map[string][]string
	listDBErr  error
	queryErr   error
	listDBHook func()

	listDBCalls     atomic.Int32
	listTablesCalls atomic.Int32
	existsCalls     atomic.Int32
}

func newFakeMetastore(dbs ...string) *fakeMetastore {
	return &fakeMetastore{dbs: dbs, tables: map[string][]string{}}
}

func (m *fakeMetastore) setDatabases(dbs ...string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.dbs = dbs
}

func (m *fakeMetastore) setListDBErr(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listDBErr = err
}

func (m *fakeMetastore) ListAllDatabases(_ context.Context) ([]string, error) {
	m.listDBCalls.Add(1)
	if m.listDBHook != nil {
		m.listDBHook()
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.listDBErr != nil {
		return nil, m.listDBErr
	}
	return append([]string{}, m.dbs...), nil
}

func (m *fakeMetastore) ListAllTables(_ context.Context, dbName string) ([]string, error) {
	m.listTablesCalls.Add(1)
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return append([]string{}, m.tables[dbName]...), nil
}

func (m *fakeMetastore) TableExists(_ context.Context, dbName, tableName string) (bool, error) {
	m.existsCalls.Add(1)
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.queryErr != nil {
		return false, m.queryErr
	}
	for _, t := range m.tables[dbName] {
		if t == tableName {
			return true, nil
		}
	}
	return false, nil
}

func (m *fakeMetastore) Close() {}

// countingFactory hands out the metastore, failing the first failures calls.
type countingFactory struct {
	metastore *fakeMetastore
	failures  atomic.Int32
	calls     atomic.Int32
}

func (f *countingFactory) newClient(_ catalog.Meta) (MetastoreClient, error) {
	f.calls.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return nil, errors.New("connection refused")
	}
	return f.metastore, nil
}

type fakeLeadership struct {
	leader bool
	term   int64
}

func (l *fakeLeadership) IsLeader() bool { return l.leader }

func (l *fakeLeadership) Term() int64 {
	if !l.leader {
		return 0
	}
	return l.term
}

// memLog delivers every appended event to all the subscribed replicas synchronously.
type memLog struct {
	lock        sync.Mutex
	term        int64
	rev         int64
	lastRevs    map[catalog.ID]int64
	subscribers []*catalog.Replica
	appended    []*catalog.Event
}

func newMemLog(term int64) *memLog {
	return &memLog{term: term, lastRevs: map[catalog.ID]int64{}}
}

func (l *memLog) subscribe(r *catalog.Replica) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.subscribers = append(l.subscribers, r)
}

func (l *memLog) Append(_ context.Context, ev *catalog.Event, term int64) (int64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if term != l.term {
		return 0, errors.Errorf("term mismatch, expect:%d, given:%d", l.term, term)
	}
	l.rev++
	l.lastRevs[ev.CatalogID] = l.rev
	l.appended = append(l.appended, ev)
	for _, r := range l.subscribers {
		_ = r.Apply(l.rev, ev)
	}
	return l.rev, nil
}

func (l *memLog) LastRevision(_ context.Context, catalogID catalog.ID) (int64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.lastRevs[catalogID], nil
}

func (l *memLog) appendedCount() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.appended)
}

type seqAllocator struct {
	next atomic.Uint64
}

func newSeqAllocator(start uint64) *seqAllocator {
	a := &seqAllocator{}
	a.next.Store(start)
	return a
}

func (a *seqAllocator) Alloc(_ context.Context) (uint64, error) {
	return a.next.Add(1) - 1, nil
}

// leaderForwarder initializes the catalog on the leader directly and waits for the local replica.
type leaderForwarder struct {
	leader *Catalog
	calls  atomic.Int32
}

func (f *leaderForwarder) Forward(ctx context.Context, _ catalog.ID, waiter catalog.ApplyWaiter) error {
	f.calls.Add(1)
	if err := f.leader.EnsureInitialized(ctx); err != nil {
		return err
	}
	if !f.leader.replica.IsInitialized() {
		return nil
	}
	return waiter.WaitApplied(ctx, f.leader.replica.AppliedRevision())
}

type denyLimiter struct{}

func (denyLimiter) Allow() bool { return false }

type testNode struct {
	catalog   *Catalog
	factory   *countingFactory
	metastore *fakeMetastore
}

func newTestNode(log *memLog, leadership *fakeLeadership, forwarder catalog.Forwarder, metastore *fakeMetastore, alloc *seqAllocator) *testNode {
	replica := catalog.NewReplica(catalog.NewMeta(1, "c1", catalog.KindHMS, map[string]string{
		PropMetastoreURIs: "thrift://127.0.0.1:9083",
	}))
	log.subscribe(replica)
	factory := &countingFactory{metastore: metastore}
	deps := catalog.Deps{
		Leadership:  leadership,
		Forwarder:   forwarder,
		EventLog:    log,
		IDAllocator: alloc,
		Limiter:     nil,
	}
	return &testNode{
		catalog:   NewCatalog(replica, deps, factory.newClient),
		factory:   factory,
		metastore: metastore,
	}
}

func newLeaderNode(dbs ...string) (*testNode, *memLog) {
	log := newMemLog(1)
	node := newTestNode(log, &fakeLeadership{leader: true, term: 1}, nil, newFakeMetastore(dbs...), newSeqAllocator(100))
	return node, log
}
