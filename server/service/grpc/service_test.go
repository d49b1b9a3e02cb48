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

package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/service"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeHandler struct {
	lock       sync.Mutex
	leader     bool
	revs       map[catalog.ID]int64
	heartbeats []string
}

func (h *fakeHandler) IsLeader() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.leader
}

func (h *fakeHandler) InitCatalog(_ context.Context, id catalog.ID) (int64, error) {
	rev, ok := h.revs[id]
	if !ok {
		return 0, catalog.ErrCatalogNotFound.WithMessagef("catalog id:%d", id)
	}
	return rev, nil
}

func (h *fakeHandler) WorkerHeartbeat(endpoint string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.heartbeats = append(h.heartbeats, endpoint)
}

func startService(t *testing.T, h Handler) (string, func()) {
	re := require.New(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	re.NoError(err)

	srv := grpc.NewServer()
	RegisterCatalogServiceServer(srv, NewService(time.Second, h))
	go func() {
		_ = srv.Serve(lis)
	}()
	return "http://" + lis.Addr().String(), srv.Stop
}

func TestCatalogService(t *testing.T) {
	re := require.New(t)
	h := &fakeHandler{leader: false, revs: map[catalog.ID]int64{1: 42}}
	addr, stop := startService(t, h)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool := service.NewConnPool()
	defer pool.Close()
	cc, err := pool.Get(ctx, addr)
	re.NoError(err)
	cc2, err := pool.Get(ctx, addr)
	re.NoError(err)
	re.Same(cc, cc2)
	client := NewCatalogServiceClient(cc)

	_, err = client.InitCatalog(ctx, wrapperspb.UInt64(1))
	re.Equal(codes.FailedPrecondition, status.Code(err))

	h.lock.Lock()
	h.leader = true
	h.lock.Unlock()

	resp, err := client.InitCatalog(ctx, wrapperspb.UInt64(1))
	re.NoError(err)
	re.Equal(int64(42), resp.GetValue())

	_, err = client.InitCatalog(ctx, wrapperspb.UInt64(2))
	re.Equal(codes.NotFound, status.Code(err))

	_, err = client.WorkerHeartbeat(ctx, wrapperspb.String("http://10.0.0.1:9000"))
	re.NoError(err)
	_, err = client.WorkerHeartbeat(ctx, wrapperspb.String(""))
	re.Equal(codes.InvalidArgument, status.Code(err))
	re.Equal([]string{"http://10.0.0.1:9000"}, h.heartbeats)
}
