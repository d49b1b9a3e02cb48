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

package forward

import (
	"context"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/member"
	"github.com/apache/incubator-horaedb-extcatalog/server/service"
	grpcservice "github.com/apache/incubator-horaedb-extcatalog/server/service/grpc"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type LeaderGetter interface {
	GetLeaderAddr(ctx context.Context) (member.GetLeaderAddrResp, error)
}

// Forwarder asks the leader to initialize a catalog over gRPC, and waits until the local replica has applied the
// outcome. The rpc and the wait share one timeout.
type Forwarder struct {
	leaderGetter LeaderGetter
	conns        *service.ConnPool
	timeout      time.Duration
	logger       *zap.Logger
}

func NewForwarder(leaderGetter LeaderGetter, conns *service.ConnPool, timeout time.Duration) *Forwarder {
	return &Forwarder{
		leaderGetter: leaderGetter,
		conns:        conns,
		timeout:      timeout,
		logger:       log.With(zap.String("component", "forwarder")),
	}
}

func (f *Forwarder) Forward(ctx context.Context, catalogID catalog.ID, waiter catalog.ApplyWaiter) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	leader, err := f.leaderGetter.GetLeaderAddr(ctx)
	if err != nil {
		return ErrLeaderUnreachable.WithCausef(err, "catalog id:%d", catalogID)
	}
	if leader.IsLocal {
		return ErrLeaderUnreachable.WithMessagef("leadership is changing, catalog id:%d", catalogID)
	}

	cc, err := f.conns.Get(ctx, leader.LeaderEndpoint)
	if err != nil {
		return ErrLeaderUnreachable.WithCausef(err, "leader:%s, catalog id:%d", leader.LeaderEndpoint, catalogID)
	}

	resp, err := grpcservice.NewCatalogServiceClient(cc).InitCatalog(ctx, wrapperspb.UInt64(uint64(catalogID)))
	if err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded, codes.FailedPrecondition, codes.Canceled:
			return ErrLeaderUnreachable.WithCausef(err, "leader:%s, catalog id:%d", leader.LeaderEndpoint, catalogID)
		default:
			return ErrRemoteRefresh.WithCausef(err, "leader:%s, catalog id:%d", leader.LeaderEndpoint, catalogID)
		}
	}

	rev := resp.GetValue()
	if rev == 0 {
		f.logger.Warn("leader left the catalog uninitialized", zap.Uint64("catalog-id", uint64(catalogID)), zap.String("leader", leader.LeaderEndpoint))
		return nil
	}

	if err := waiter.WaitApplied(ctx, rev); err != nil {
		return ErrWaitApplyTimeout.WithCausef(err, "catalog id:%d, revision:%d", catalogID, rev)
	}
	return nil
}
