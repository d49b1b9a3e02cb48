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
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/etcdutil"
	"github.com/apache/incubator-horaedb-proto/golang/pkg/metastoragepb"
	"go.uber.org/zap"
)

const (
	watchLeaderFailInterval = time.Duration(200) * time.Millisecond

	waitReasonFailEtcd    = "fail to access etcd"
	waitReasonResetLeader = "leader is reset"
	waitReasonElectLeader = "leader is electing"
	waitReasonNoWait      = ""
)

type WatchContext interface {
	etcdutil.EtcdLeaderGetter
	ShouldStop() bool
}

type LeadershipEventCallbacks interface {
	AfterElected(ctx context.Context)
	BeforeTransfer(ctx context.Context)
}

// LeadershipChecker tells which member should campaign the leadership, and whether the current leader is valid.
type LeadershipChecker interface {
	ShouldCampaign(self *Member) bool
	IsValidLeader(memLeader *metastoragepb.Member) bool
}

// embeddedEtcdLeadershipChecker makes the leader of the embedded etcd cluster the leader of the extcatalog cluster.
type embeddedEtcdLeadershipChecker struct {
	etcdLeaderGetter etcdutil.EtcdLeaderGetter
}

func (c embeddedEtcdLeadershipChecker) ShouldCampaign(self *Member) bool {
	return self.ID == c.etcdLeaderGetter.EtcdLeaderID()
}

func (c embeddedEtcdLeadershipChecker) IsValidLeader(memLeader *metastoragepb.Member) bool {
	return memLeader.Id == c.etcdLeaderGetter.EtcdLeaderID()
}

type LeaderWatcher struct {
	watchCtx          WatchContext
	self              *Member
	leaseTTLSec       int64
	leadershipChecker LeadershipChecker
}

func NewLeaderWatcher(ctx WatchContext, self *Member, leaseTTLSec int64) *LeaderWatcher {
	return &LeaderWatcher{
		watchCtx:          ctx,
		self:              self,
		leaseTTLSec:       leaseTTLSec,
		leadershipChecker: embeddedEtcdLeadershipChecker{etcdLeaderGetter: ctx},
	}
}

// Watch watches the leader changes:
//  1. Check whether the leader is valid if leader exists.
//     - Leader is valid: cache it and wait for the leader changes.
//     - Leader is not valid: reset the leader by the current leader.
//  2. Campaign the leadership if leader does not exist.
//     - The etcd leader campaigns and keeps the leadership lease alive.
//     - The other members keep waiting for the leader changes.
//
// The callbacks will be triggered when this member gets or loses the leadership.
func (l *LeaderWatcher) Watch(ctx context.Context, callbacks LeadershipEventCallbacks) {
	var wait string
	logger := log.With(zap.String("self", l.self.Name))

	for {
		if l.watchCtx.ShouldStop() {
			logger.Warn("stop watching leader because of server is closed")
			return
		}

		select {
		case <-ctx.Done():
			logger.Warn("stop watching leader because ctx is done")
			return
		default:
		}

		if wait != waitReasonNoWait {
			logger.Warn("sleep a while during watch", zap.String("wait-reason", wait))
			time.Sleep(watchLeaderFailInterval)
			wait = waitReasonNoWait
		}

		leaderResp, err := l.self.GetLeader(ctx)
		if err != nil {
			logger.Error("fail to get leader", zap.Error(err))
			wait = waitReasonFailEtcd
			continue
		}

		if leaderResp.Leader == nil {
			l.self.resetLeaderCache()
			if l.leadershipChecker.ShouldCampaign(l.self) {
				// Campaign the leader and block until leader changes.
				if err := l.self.CampaignAndKeepLeader(ctx, l.leaseTTLSec, l.leadershipChecker, callbacks); err != nil {
					logger.Error("fail to campaign and keep leader", zap.Error(err))
					wait = waitReasonFailEtcd
				} else {
					logger.Info("stop keeping leader")
				}
				continue
			}

			wait = waitReasonElectLeader
			continue
		}

		if l.leadershipChecker.IsValidLeader(leaderResp.Leader) {
			// A leader record of this member left by a previous process can not be kept alive, reset it.
			if leaderResp.IsLocal && !l.self.IsLeader() {
				if err := l.self.ResetLeader(ctx); err != nil {
					logger.Error("fail to reset stale leader", zap.Error(err))
					wait = waitReasonFailEtcd
				}
				continue
			}

			l.self.setLeader(leaderResp.Leader, leaderResp.Term)
			l.self.WaitForLeaderChange(ctx, leaderResp.Revision)
			logger.Warn("leader changes and stop watching")
			continue
		}

		// The leader is not valid, reset it if this member should be the leader.
		if l.leadershipChecker.ShouldCampaign(l.self) {
			if err := l.self.ResetLeader(ctx); err != nil {
				logger.Error("fail to reset leader", zap.Error(err))
				wait = waitReasonFailEtcd
			}
			continue
		}

		wait = waitReasonResetLeader
	}
}
