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

package editlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/etcdutil"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const rewatchInterval = 500 * time.Millisecond

// Applier installs the events read from the edit log. The revision of an event is the create revision of its key.
type Applier interface {
	Apply(rev int64, ev *catalog.Event)
}

// EtcdEditLog stores every event as a key under <root>/editlog/<catalog id>/. The etcd revision gives a total order of
// the events, and an append is committed only if the leader key is still the one created at the given term.
type EtcdEditLog struct {
	logger    *zap.Logger
	client    *clientv3.Client
	prefix    string
	leaderKey string
	applier   Applier

	lock   sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEtcdEditLog(client *clientv3.Client, rootPath, leaderKey string, applier Applier) *EtcdEditLog {
	return &EtcdEditLog{
		logger:    log.With(zap.String("component", "editlog")),
		client:    client,
		prefix:    fmt.Sprintf("%s/editlog/", rootPath),
		leaderKey: leaderKey,
		applier:   applier,
		lock:      sync.Mutex{},
		cancel:    nil,
		wg:        sync.WaitGroup{},
	}
}

func (l *EtcdEditLog) catalogPrefix(id catalog.ID) string {
	return fmt.Sprintf("%s%d/", l.prefix, id)
}

func (l *EtcdEditLog) Append(ctx context.Context, ev *catalog.Event, term int64) (int64, error) {
	data, err := catalog.EncodeEvent(ev)
	if err != nil {
		return 0, err
	}

	key := l.catalogPrefix(ev.CatalogID) + ev.ID
	resp, err := l.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(l.leaderKey), "=", term)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return 0, ErrAppend.WithCausef(err, "key:%s", key)
	}
	if !resp.Succeeded {
		return 0, ErrFenced.WithMessagef("key:%s, term:%d", key, term)
	}
	return resp.Header.Revision, nil
}

func (l *EtcdEditLog) LastRevision(ctx context.Context, catalogID catalog.ID) (int64, error) {
	rev, err := etcdutil.LastCreateRevision(ctx, l.client, l.catalogPrefix(catalogID))
	if err != nil {
		return 0, ErrLastRevison.WithCausef(err, "catalog id:%d", catalogID)
	}
	return rev, nil
}

// Start replays the whole edit log and then keeps applying the new events in the background until Stop is called.
func (l *EtcdEditLog) Start(ctx context.Context) error {
	rev, err := l.replay(ctx)
	if err != nil {
		return err
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	watchCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.watch(watchCtx, rev+1)
	}()
	return nil
}

func (l *EtcdEditLog) Stop() {
	l.lock.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}

// replay applies all the stored events and returns the revision the replay has caught up to.
func (l *EtcdEditLog) replay(ctx context.Context) (int64, error) {
	count := 0
	rev, err := etcdutil.ScanPrefixByCreateRevision(ctx, l.client, l.prefix, func(kv *mvccpb.KeyValue) error {
		l.applyKV(kv)
		count++
		return nil
	})
	if err != nil {
		return 0, ErrReplay.WithCause(err)
	}

	l.logger.Info("edit log is replayed", zap.Int("events", count), zap.Int64("revision", rev))
	return rev, nil
}

func (l *EtcdEditLog) applyKV(kv *mvccpb.KeyValue) {
	ev, err := catalog.DecodeEvent(kv.Value)
	if err != nil {
		l.logger.Error("skip undecodable event", zap.ByteString("key", kv.Key), zap.Error(err))
		return
	}
	l.applier.Apply(kv.CreateRevision, ev)
}

func (l *EtcdEditLog) watch(ctx context.Context, fromRev int64) {
	l.logger.Info("start watching edit log", zap.Int64("from-revision", fromRev))
	defer l.logger.Info("stop watching edit log")

	for {
		fromRev = l.watchOnce(ctx, fromRev)

		select {
		case <-ctx.Done():
			return
		case <-time.After(rewatchInterval):
		}
	}
}

// watchOnce applies the events from fromRev until the watch breaks, and returns the revision to watch from next.
func (l *EtcdEditLog) watchOnce(ctx context.Context, fromRev int64) int64 {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wch := l.client.Watch(ctx, l.prefix, clientv3.WithPrefix(), clientv3.WithRev(fromRev))
	for resp := range wch {
		// The events in between are compacted, replay the whole log instead.
		if resp.CompactRevision != 0 {
			l.logger.Warn("required revision has been compacted, replay edit log",
				zap.Int64("required-revision", fromRev), zap.Int64("compact-revision", resp.CompactRevision))
			rev, err := l.replay(ctx)
			if err != nil {
				l.logger.Error("replay edit log failed", zap.Error(err))
				return fromRev
			}
			return rev + 1
		}
		if err := resp.Err(); err != nil {
			l.logger.Error("watch edit log failed", zap.Error(err))
			return fromRev
		}

		for _, ev := range resp.Events {
			fromRev = ev.Kv.ModRevision + 1
			if !ev.IsCreate() {
				continue
			}
			l.applyKV(ev.Kv)
		}
	}
	return fromRev
}
