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

package member

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-proto/golang/pkg/metastoragepb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

const leaderCheckInterval = time.Duration(100) * time.Millisecond

// Member manages the leadership and the role of the node in the extcatalog cluster.
//
// The term of a leadership is the create revision of the leader key. It only grows across leaderships, so writes
// conditioned on it are rejected once the leadership is lost.
type Member struct {
	ID         uint64
	Name       string
	Endpoint   string
	rootPath   string
	leaderKey  string
	etcdCli    *clientv3.Client
	rpcTimeout time.Duration
	logger     *zap.Logger

	// leader is the memory cache of the latest known leader.
	leader atomic.Pointer[leaderRecord]
}

type leaderRecord struct {
	member *metastoragepb.Member
	term   int64
}

func formatLeaderKey(rootPath string) string {
	return fmt.Sprintf("%s/members/leader", rootPath)
}

func NewMember(rootPath string, id uint64, name, endpoint string, etcdCli *clientv3.Client, rpcTimeout time.Duration) *Member {
	return &Member{
		ID:         id,
		Name:       name,
		Endpoint:   endpoint,
		rootPath:   rootPath,
		leaderKey:  formatLeaderKey(rootPath),
		etcdCli:    etcdCli,
		rpcTimeout: rpcTimeout,
		logger:     log.With(zap.String("node-name", name), zap.Uint64("node-id", id)),
		leader:     atomic.Pointer[leaderRecord]{},
	}
}

// LeaderKey is the etcd key holding the leader record.
func (m *Member) LeaderKey() string {
	return m.leaderKey
}

// GetLeader queries the leader of the cluster from etcd.
// GetLeaderResp.Leader == nil if no leader found.
func (m *Member) GetLeader(ctx context.Context) (*GetLeaderResp, error) {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	resp, err := m.etcdCli.Get(ctx, m.leaderKey)
	if err != nil {
		return nil, ErrGetLeader.WithCause(err)
	}
	if len(resp.Kvs) > 1 {
		return nil, ErrMultipleLeader.WithMessagef("leader key:%s", m.leaderKey)
	}
	if len(resp.Kvs) == 0 {
		return &GetLeaderResp{
			Leader:   nil,
			Revision: 0,
			Term:     0,
			IsLocal:  false,
		}, nil
	}

	leaderKv := resp.Kvs[0]
	leader := &metastoragepb.Member{}
	if err := proto.Unmarshal(leaderKv.Value, leader); err != nil {
		return nil, ErrInvalidLeaderValue.WithCause(err)
	}

	return &GetLeaderResp{
		Leader:   leader,
		Revision: leaderKv.ModRevision,
		Term:     leaderKv.CreateRevision,
		IsLocal:  leader.GetEndpoint() == m.Endpoint,
	}, nil
}

// GetLeaderAddr gets the leader address of the cluster with memory cache.
// return error if no leader found.
func (m *Member) GetLeaderAddr(_ context.Context) (GetLeaderAddrResp, error) {
	leader := m.leader.Load()
	if leader == nil {
		return GetLeaderAddrResp{
			LeaderEndpoint: "",
			IsLocal:        false,
		}, ErrNoLeader.WithMessagef("member:%s", m.Name)
	}
	return GetLeaderAddrResp{
		LeaderEndpoint: leader.member.Endpoint,
		IsLocal:        leader.member.Endpoint == m.Endpoint,
	}, nil
}

// IsLeader tells whether the node holds the leadership according to the memory cache.
func (m *Member) IsLeader() bool {
	leader := m.leader.Load()
	return leader != nil && leader.member.Endpoint == m.Endpoint
}

// Term returns the term of the leadership held by this node, 0 if it is not the leader.
func (m *Member) Term() int64 {
	leader := m.leader.Load()
	if leader == nil || leader.member.Endpoint != m.Endpoint {
		return 0
	}
	return leader.term
}

func (m *Member) setLeader(leader *metastoragepb.Member, term int64) {
	m.leader.Store(&leaderRecord{member: leader, term: term})
}

func (m *Member) resetLeaderCache() {
	m.leader.Store(nil)
}

func (m *Member) ResetLeader(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	if _, err := m.etcdCli.Delete(ctx, m.leaderKey); err != nil {
		return ErrResetLeader.WithCause(err)
	}
	m.resetLeaderCache()
	return nil
}

// WaitForLeaderChange blocks until the leader key is deleted or the ctx is done.
func (m *Member) WaitForLeaderChange(ctx context.Context, revision int64) {
	watcher := clientv3.NewWatcher(m.etcdCli)
	defer func() {
		if err := watcher.Close(); err != nil {
			m.logger.Error("close watcher failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		wch := watcher.Watch(ctx, m.leaderKey, clientv3.WithRev(revision))
		for resp := range wch {
			// Meet compacted error, use the compact revision.
			if resp.CompactRevision != 0 {
				m.logger.Warn("required revision has been compacted, use the compact revision",
					zap.Int64("required-revision", revision),
					zap.Int64("compact-revision", resp.CompactRevision))
				revision = resp.CompactRevision
				break
			}

			if resp.Canceled {
				m.logger.Error("watcher is cancelled", zap.Int64("revision", revision), zap.String("leader-key", m.leaderKey))
				return
			}

			for _, ev := range resp.Events {
				if ev.Type == mvccpb.DELETE {
					m.logger.Info("current leader is deleted", zap.String("leader-key", m.leaderKey))
					m.resetLeaderCache()
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// CampaignAndKeepLeader puts the leader key bound to a new lease and keeps the lease alive until the leadership is
// lost or the ctx is done. The leader key is released before returning.
func (m *Member) CampaignAndKeepLeader(ctx context.Context, leaseTTLSec int64, leadershipChecker LeadershipChecker, callbacks LeadershipEventCallbacks) error {
	leaderVal, err := m.Marshal()
	if err != nil {
		return err
	}

	newLease := newLease(clientv3.NewLease(m.etcdCli), leaseTTLSec)
	closeLeaseOnce := sync.Once{}
	closeLease := func() {
		ctx1, cancel := context.WithTimeout(context.Background(), m.rpcTimeout)
		defer cancel()
		if err := newLease.Close(ctx1); err != nil {
			m.logger.Error("close lease failed", zap.Error(err))
		}
	}
	defer closeLeaseOnce.Do(closeLease)
	defer m.resetLeaderCache()

	if err := newLease.Grant(ctx); err != nil {
		return err
	}

	// The leader key must not exist, so the CreateRevision is 0.
	cmp := clientv3.Compare(clientv3.CreateRevision(m.leaderKey), "=", 0)
	ctx1, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	resp, err := m.etcdCli.
		Txn(ctx1).
		If(cmp).
		Then(clientv3.OpPut(m.leaderKey, leaderVal, clientv3.WithLease(newLease.ID))).
		Commit()
	if err != nil {
		return ErrTxnPutLeader.WithCause(err)
	} else if !resp.Succeeded {
		return ErrTxnPutLeader.WithMessagef("leader key exists, key:%s", m.leaderKey)
	}

	// The put is the only operation of the txn, so the revision of the txn is the create revision of the leader key.
	term := resp.Header.Revision
	m.logger.Info("[SetLeader]", zap.String("leader-key", m.leaderKey), zap.String("leader", m.Name), zap.Int64("term", term))
	m.setLeader(&metastoragepb.Member{
		Name:     m.Name,
		Id:       m.ID,
		Endpoint: m.Endpoint,
	}, term)

	if callbacks != nil {
		callbacks.AfterElected(ctx)
		defer callbacks.BeforeTransfer(ctx)
	}

	keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
	defer cancelKeepAlive()
	go func() {
		newLease.KeepAlive(keepAliveCtx)
		closeLeaseOnce.Do(closeLease)
	}()

	// Check the leadership periodically and exit if it changes.
	leaderCheckTicker := time.NewTicker(leaderCheckInterval)
	defer leaderCheckTicker.Stop()

	for {
		select {
		case <-leaderCheckTicker.C:
			if newLease.IsExpired() {
				m.logger.Info("no longer a leader because lease has expired")
				return nil
			}

			if !leadershipChecker.ShouldCampaign(m) {
				m.logger.Info("etcd leader changed and should re-assign the leadership", zap.String("old-leader", m.Name))
				return nil
			}
		case <-ctx.Done():
			m.logger.Info("server is closed")
			return nil
		}
	}
}

func (m *Member) Marshal() (string, error) {
	memPB := &metastoragepb.Member{
		Name:     m.Name,
		Id:       m.ID,
		Endpoint: m.Endpoint,
	}
	bs, err := proto.Marshal(memPB)
	if err != nil {
		return "", ErrMarshalMember.WithCause(err)
	}

	return string(bs), nil
}

type GetLeaderResp struct {
	Leader   *metastoragepb.Member
	Revision int64
	Term     int64
	IsLocal  bool
}

type GetLeaderAddrResp struct {
	LeaderEndpoint string
	IsLocal        bool
}
