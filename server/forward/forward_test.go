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
	"net"
	"testing"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/member"
	"github.com/apache/incubator-horaedb-extcatalog/server/service"
	grpcservice "github.com/apache/incubator-horaedb-extcatalog/server/service/grpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type staticLeader struct {
	resp member.GetLeaderAddrResp
	err  error
}

func (l staticLeader) GetLeaderAddr(_ context.Context) (member.GetLeaderAddrResp, error) {
	return l.resp, l.err
}

type leaderHandler struct {
	rev int64
	err error
}

func (h leaderHandler) IsLeader() bool { return true }

func (h leaderHandler) InitCatalog(_ context.Context, _ catalog.ID) (int64, error) {
	return h.rev, h.err
}

func (h leaderHandler) WorkerHeartbeat(_ string) {}

func startLeader(t *testing.T, h grpcservice.Handler) (string, func()) {
	re := require.New(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	re.NoError(err)

	srv := grpc.NewServer()
	grpcservice.RegisterCatalogServiceServer(srv, grpcservice.NewService(time.Second, h))
	go func() {
		_ = srv.Serve(lis)
	}()
	return "http://" + lis.Addr().String(), srv.Stop
}

func newForwarder(endpoint string, timeout time.Duration) (*Forwarder, *service.ConnPool) {
	pool := service.NewConnPool()
	leader := staticLeader{resp: member.GetLeaderAddrResp{LeaderEndpoint: endpoint, IsLocal: false}}
	return NewForwarder(leader, pool, timeout), pool
}

func newReplica() *catalog.Replica {
	return catalog.NewReplica(catalog.NewMeta(1, "c1", catalog.KindHMS, nil))
}

func TestForwardWaitsForApply(t *testing.T) {
	re := require.New(t)
	endpoint, stop := startLeader(t, leaderHandler{rev: 5})
	defer stop()
	f, pool := newForwarder(endpoint, 5*time.Second)
	defer pool.Close()

	replica := newReplica()
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = replica.Apply(5, catalog.NewInitEvent(1, &catalog.InitEvent{
			CatalogID:  1,
			Kind:       catalog.KindHMS,
			CreatedDBs: []catalog.DatabaseEntry{{ID: 1, Name: "sales"}},
		}))
	}()

	re.NoError(f.Forward(context.Background(), 1, replica))
	re.True(replica.IsInitialized())
}

func TestForwardWaitTimeout(t *testing.T) {
	re := require.New(t)
	endpoint, stop := startLeader(t, leaderHandler{rev: 5})
	defer stop()
	f, pool := newForwarder(endpoint, 200*time.Millisecond)
	defer pool.Close()

	err := f.Forward(context.Background(), 1, newReplica())
	re.True(coderr.Is(err, coderr.WaitApplyTimeout))
}

func TestForwardLeaderLeftUninitialized(t *testing.T) {
	re := require.New(t)
	endpoint, stop := startLeader(t, leaderHandler{rev: 0})
	defer stop()
	f, pool := newForwarder(endpoint, time.Second)
	defer pool.Close()

	replica := newReplica()
	re.NoError(f.Forward(context.Background(), 1, replica))
	re.False(replica.IsInitialized())
}

func TestForwardRemoteRefreshFailure(t *testing.T) {
	re := require.New(t)
	endpoint, stop := startLeader(t, leaderHandler{err: errors.New("append failed")})
	defer stop()
	f, pool := newForwarder(endpoint, time.Second)
	defer pool.Close()

	err := f.Forward(context.Background(), 1, newReplica())
	re.True(coderr.Is(err, coderr.RemoteRefresh))
}

func TestForwardLeaderUnreachable(t *testing.T) {
	re := require.New(t)

	pool := service.NewConnPool()
	defer pool.Close()
	noLeader := NewForwarder(staticLeader{err: errors.New("no leader")}, pool, time.Second)
	err := noLeader.Forward(context.Background(), 1, newReplica())
	re.True(coderr.Is(err, coderr.LeaderUnreachable))

	local := NewForwarder(staticLeader{resp: member.GetLeaderAddrResp{LeaderEndpoint: "http://127.0.0.1:1", IsLocal: true}}, pool, time.Second)
	err = local.Forward(context.Background(), 1, newReplica())
	re.True(coderr.Is(err, coderr.LeaderUnreachable))

	// Nothing listens on the port of a stopped server.
	endpoint, stop := startLeader(t, leaderHandler{rev: 5})
	stop()
	f, pool2 := newForwarder(endpoint, 500*time.Millisecond)
	defer pool2.Close()
	err = f.Forward(context.Background(), 1, newReplica())
	re.True(coderr.Is(err, coderr.LeaderUnreachable))
}
