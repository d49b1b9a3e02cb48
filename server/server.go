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

package server

import (
	"context"
	"fmt"
	"net"
	"path"
	"sync"
	"sync/atomic"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog/hms"
	"github.com/apache/incubator-horaedb-extcatalog/server/config"
	"github.com/apache/incubator-horaedb-extcatalog/server/editlog"
	"github.com/apache/incubator-horaedb-extcatalog/server/etcdutil"
	"github.com/apache/incubator-horaedb-extcatalog/server/forward"
	"github.com/apache/incubator-horaedb-extcatalog/server/id"
	"github.com/apache/incubator-horaedb-extcatalog/server/limiter"
	"github.com/apache/incubator-horaedb-extcatalog/server/member"
	"github.com/apache/incubator-horaedb-extcatalog/server/planner"
	"github.com/apache/incubator-horaedb-extcatalog/server/service"
	grpcservice "github.com/apache/incubator-horaedb-extcatalog/server/service/grpc"
	httpservice "github.com/apache/incubator-horaedb-extcatalog/server/service/http"
	"github.com/apache/incubator-horaedb-extcatalog/server/status"
	"github.com/apache/incubator-horaedb-extcatalog/server/worker"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const databaseIDKey = "database_id"

type Server struct {
	isClosed int32
	status   *status.ServerStatus

	cfg     *config.Config
	etcdCfg *embed.Config

	etcdSrv *embed.Etcd
	etcdCli *clientv3.Client
	member  *member.Member

	editLog        *editlog.EtcdEditLog
	catalogManager *catalog.Manager
	connPool       *service.ConnPool
	flowLimiter    *limiter.FlowLimiter

	workers         *worker.RegistryImpl
	workerInspector *worker.Inspector
	planner         *planner.Planner

	grpcServer  *grpc.Server
	httpService *httpservice.Service
	services    *errgroup.Group

	bgJobWg     sync.WaitGroup
	bgJobCancel func()
}

// CreateServer creates the server instance without starting any services or background jobs.
func CreateServer(cfg *config.Config) (*Server, error) {
	etcdCfg, err := cfg.GenEtcdConfig()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		isClosed: 0,
		status:   status.NewServerStatus(),
		cfg:      cfg,
		etcdCfg:  etcdCfg,
		bgJobWg:  sync.WaitGroup{},
	}
	return srv, nil
}

// Run starts the embedded etcd, replays the edit log, and then starts the services and the background jobs.
func (srv *Server) Run(ctx context.Context) error {
	if err := srv.startEtcd(ctx); err != nil {
		srv.status.Set(status.Terminated)
		return err
	}

	if err := srv.startServer(ctx); err != nil {
		srv.status.Set(status.Terminated)
		return err
	}

	srv.startBgJobs(ctx)
	srv.status.Set(status.StatusRunning)

	return nil
}

func (srv *Server) Close() {
	atomic.StoreInt32(&srv.isClosed, 1)
	srv.status.Set(status.Terminated)

	srv.stopBgJobs()
	srv.stopServices()

	if srv.editLog != nil {
		srv.editLog.Stop()
	}
	if srv.catalogManager != nil {
		srv.catalogManager.Close()
	}
	if srv.connPool != nil {
		srv.connPool.Close()
	}

	if srv.etcdCli != nil {
		if err := srv.etcdCli.Close(); err != nil {
			log.Error("fail to close etcdCli", zap.Error(err))
		}
	}
	if srv.etcdSrv != nil {
		srv.etcdSrv.Close()
	}
}

func (srv *Server) IsClosed() bool {
	return atomic.LoadInt32(&srv.isClosed) == 1
}

func (srv *Server) startEtcd(ctx context.Context) error {
	etcdSrv, err := embed.StartEtcd(srv.etcdCfg)
	if err != nil {
		return ErrStartEtcd.WithCause(err)
	}
	srv.etcdSrv = etcdSrv

	newCtx, cancel := context.WithTimeout(ctx, srv.cfg.EtcdStartTimeout())
	defer cancel()

	select {
	case <-etcdSrv.Server.ReadyNotify():
	case <-newCtx.Done():
		return ErrStartEtcdTimeout.WithMessagef("timeout is:%v", srv.cfg.EtcdStartTimeout())
	}

	endpoints := []string{srv.etcdCfg.AdvertiseClientUrls[0].String()}
	lgc := log.GetLoggerConfig()
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: srv.cfg.EtcdCallTimeout(),
		LogConfig:   lgc,
	})
	if err != nil {
		return ErrCreateEtcdClient.WithCause(err)
	}
	srv.etcdCli = client

	srv.member = member.NewMember(srv.cfg.StorageRootPath, uint64(etcdSrv.Server.ID()), srv.cfg.NodeName, srv.cfg.GrpcEndpoint(), client, srv.cfg.EtcdCallTimeout())
	return nil
}

// startServer builds the catalogs over the replayed edit log and starts the grpc and http services.
func (srv *Server) startServer(ctx context.Context) error {
	srv.connPool = service.NewConnPool()
	srv.flowLimiter = limiter.NewFlowLimiter(srv.cfg.FlowLimiter)
	srv.workers = worker.NewRegistryImpl(srv.cfg.WorkerExpire())
	srv.workerInspector = worker.NewInspector(log.With(zap.String("component", "worker-inspector")), srv.workers, srv.cfg.WorkerEvict())
	srv.planner = planner.NewPlanner(srv.workers, srv.cfg.MaxScanParallelism, planner.NumbersSource{})
	srv.editLog = editlog.NewEtcdEditLog(srv.etcdCli, srv.cfg.StorageRootPath, srv.member.LeaderKey(), srv)

	metas := make([]catalog.Meta, 0, len(srv.cfg.Catalogs))
	for _, c := range srv.cfg.Catalogs {
		metas = append(metas, catalog.NewMeta(catalog.ID(c.ID), c.Name, catalog.Kind(c.Kind), c.Properties))
	}
	factories := map[catalog.Kind]catalog.Factory{
		catalog.KindHMS: hms.NewFactory(hms.NewGoHiveClientFactory(srv.cfg.MetastoreAuthMechanism)),
	}
	idAllocator := id.NewAllocatorImpl(log.With(zap.String("alloc", databaseIDKey)), srv.etcdCli, path.Join(srv.cfg.StorageRootPath, databaseIDKey), srv.cfg.IDAllocatorStep)
	manager, err := catalog.NewManager(metas, factories, catalog.Deps{
		Leadership:  srv.member,
		Forwarder:   forward.NewForwarder(srv.member, srv.connPool, srv.cfg.ForwardTimeout()),
		EventLog:    srv.editLog,
		IDAllocator: idAllocator,
		Limiter:     srv.flowLimiter,
	})
	if err != nil {
		return ErrCreateCatalogs.WithCause(err)
	}
	srv.catalogManager = manager

	srv.status.Set(status.StatusReplaying)
	if err := srv.editLog.Start(ctx); err != nil {
		return ErrReplayEditLog.WithCause(err)
	}

	return srv.startServices()
}

func (srv *Server) startServices() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", srv.cfg.GrpcPort))
	if err != nil {
		return ErrStartServer.WithCausef(err, "listen grpc port:%d", srv.cfg.GrpcPort)
	}
	srv.grpcServer = grpc.NewServer()
	grpcservice.RegisterCatalogServiceServer(srv.grpcServer, grpcservice.NewService(srv.cfg.GrpcHandleTimeout(), srv))

	forwardClient := httpservice.NewForwardClient(srv.member, srv.cfg.HTTPPort)
	api := httpservice.NewAPI(srv.catalogManager, srv.planner, srv.workers, srv.status, forwardClient, srv.flowLimiter)
	srv.httpService = httpservice.NewHTTPService(srv.cfg.HTTPPort, srv.cfg.HTTPReadTimeout(), srv.cfg.HTTPWriteTimeout(), api.NewAPIRouter())

	srv.services = &errgroup.Group{}
	srv.services.Go(func() error {
		log.Info("grpc service starts", zap.Int("port", srv.cfg.GrpcPort))
		return srv.grpcServer.Serve(lis)
	})
	srv.services.Go(func() error {
		log.Info("http service starts", zap.Int("port", srv.cfg.HTTPPort))
		return srv.httpService.Start()
	})
	return nil
}

func (srv *Server) stopServices() {
	if srv.services == nil {
		return
	}

	srv.grpcServer.Stop()
	if err := srv.httpService.Stop(); err != nil {
		log.Error("fail to stop http service", zap.Error(err))
	}
	if err := srv.services.Wait(); err != nil {
		log.Error("service exits with error", zap.Error(err))
	}
}

func (srv *Server) startBgJobs(ctx context.Context) {
	var bgJobCtx context.Context
	bgJobCtx, srv.bgJobCancel = context.WithCancel(ctx)

	srv.bgJobWg.Add(1)
	go srv.watchLeader(bgJobCtx)

	if err := srv.workerInspector.Start(bgJobCtx); err != nil {
		log.Error("fail to start worker inspector", zap.Error(err))
	}
}

func (srv *Server) stopBgJobs() {
	if srv.bgJobCancel == nil {
		return
	}
	srv.bgJobCancel()
	srv.bgJobWg.Wait()

	if err := srv.workerInspector.Stop(context.Background()); err != nil {
		log.Error("fail to stop worker inspector", zap.Error(err))
	}
}

func (srv *Server) watchLeader(ctx context.Context) {
	defer srv.bgJobWg.Done()

	watchCtx := &leaderWatchContext{
		LeaderGetterWrapper: &etcdutil.LeaderGetterWrapper{Server: srv.etcdSrv.Server},
		srv:                 srv,
	}
	watcher := member.NewLeaderWatcher(watchCtx, srv.member, srv.cfg.LeaseTTLSec)

	callbacks := &leadershipEventCallbacks{srv: srv}
	watcher.Watch(ctx, callbacks)
}

// Apply implements editlog.Applier.
func (srv *Server) Apply(rev int64, ev *catalog.Event) {
	srv.catalogManager.Apply(rev, ev)
}

// IsLeader implements grpcservice.Handler.
func (srv *Server) IsLeader() bool {
	return srv.member.IsLeader()
}

// InitCatalog implements grpcservice.Handler.
func (srv *Server) InitCatalog(ctx context.Context, catalogID catalog.ID) (int64, error) {
	return srv.catalogManager.InitCatalog(ctx, catalogID)
}

// WorkerHeartbeat implements grpcservice.Handler.
func (srv *Server) WorkerHeartbeat(endpoint string) {
	srv.workers.Heartbeat(endpoint)
}

type leaderWatchContext struct {
	*etcdutil.LeaderGetterWrapper
	srv *Server
}

func (ctx *leaderWatchContext) ShouldStop() bool {
	return ctx.srv.IsClosed()
}

type leadershipEventCallbacks struct {
	srv *Server
}

func (c *leadershipEventCallbacks) AfterElected(_ context.Context) {
	log.Info("become the leader", zap.String("node", c.srv.cfg.NodeName), zap.Int64("term", c.srv.member.Term()))
}

func (c *leadershipEventCallbacks) BeforeTransfer(_ context.Context) {
	log.Info("lose the leadership", zap.String("node", c.srv.cfg.NodeName), zap.Int64("term", c.srv.member.Term()))
}
