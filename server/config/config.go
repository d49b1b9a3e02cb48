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

package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/caarlos0/env/v6"
	"github.com/pelletier/go-toml/v2"
	"go.etcd.io/etcd/server/v3/embed"
	"go.uber.org/zap"
)

const (
	defaultGrpcHandleTimeoutMs int64 = 10 * 1000
	defaultEtcdStartTimeoutMs  int64 = 60 * 1000
	defaultCallTimeoutMs             = 5 * 1000
	defaultEtcdLeaseTTLSec           = 10
	defaultForwardTimeoutMs    int64 = 30 * 1000

	defaultWorkerExpireMs     int64 = 10 * 1000
	defaultWorkerEvictMs      int64 = 10 * 60 * 1000
	defaultMaxScanParallelism       = 1024

	defaultNodeNamePrefix          = "extcatalog"
	defaultStorageRootPath         = "/extcatalog"
	defaultDataDir                 = "/tmp/extcatalog"
	defaultInitialClusterState     = embed.ClusterStateFlagNew
	defaultInitialClusterToken     = "extcatalog-cluster" //#nosec G101
	defaultCompactionMode          = "periodic"
	defaultAutoCompactionRetention = "1h"

	defaultTickIntervalMs    int64 = 500
	defaultElectionTimeoutMs       = 3000
	defaultQuotaBackendBytes       = 8 * 1024 * 1024 * 1024 // 8GB

	defaultMaxRequestBytes uint = 2 * 1024 * 1024 // 2MB

	defaultIDAllocatorStep = 200

	defaultAdvertiseAddr = "127.0.0.1"
	defaultGrpcPort      = 8831
	defaultHTTPPort      = 8080
	defaultClientUrls    = "http://0.0.0.0:2379"
	defaultPeerUrls      = "http://0.0.0.0:2380"

	defaultFlowLimitEnable       = false
	defaultFlowLimitPerSec       = 100
	defaultFlowLimitBurstPerSec  = 200
	defaultHTTPReadTimeoutMs     = 10 * 1000
	defaultHTTPWriteTimeoutMs    = 60 * 1000

	defaultMetastoreAuthMechanism = "NOSASL"
)

// LimiterConfig bounds the rate of calls passed straight through to external metastores.
type LimiterConfig struct {
	// Limit is the updated rate of tokens.
	Limit int `json:"limit" toml:"limit" env:"EXTCATALOG_FLOW_LIMITER_LIMIT"`
	// Burst is the maximum number of tokens.
	Burst int `json:"burst" toml:"burst" env:"EXTCATALOG_FLOW_LIMITER_BURST"`
	// Enable is used to control the switch of the limiter.
	Enable bool `json:"enable" toml:"enable" env:"EXTCATALOG_FLOW_LIMITER_ENABLE"`
}

// CatalogConfig registers one external catalog. It is supplied once and never changes for the catalog id.
type CatalogConfig struct {
	ID         uint64            `toml:"id"`
	Name       string            `toml:"name"`
	Kind       string            `toml:"kind"`
	Properties map[string]string `toml:"properties"`
}

type Config struct {
	Log     log.Config `toml:"log" envPrefix:"EXTCATALOG_LOG_"`
	EtcdLog log.Config `toml:"etcd-log" envPrefix:"EXTCATALOG_ETCD_LOG_"`

	FlowLimiter LimiterConfig   `toml:"flow-limiter"`
	Catalogs    []CatalogConfig `toml:"catalogs"`

	GrpcHandleTimeoutMs int64 `toml:"grpc-handle-timeout-ms" env:"EXTCATALOG_GRPC_HANDLE_TIMEOUT_MS"`
	EtcdStartTimeoutMs  int64 `toml:"etcd-start-timeout-ms" env:"EXTCATALOG_ETCD_START_TIMEOUT_MS"`
	EtcdCallTimeoutMs   int64 `toml:"etcd-call-timeout-ms" env:"EXTCATALOG_ETCD_CALL_TIMEOUT_MS"`
	// ForwardTimeoutMs bounds both the rpc to the leader and the wait for the local edit log to catch up.
	ForwardTimeoutMs int64 `toml:"forward-timeout-ms" env:"EXTCATALOG_FORWARD_TIMEOUT_MS"`

	LeaseTTLSec int64 `toml:"lease-sec" env:"EXTCATALOG_LEASE_SEC"`

	// WorkerExpireMs is how long a worker stays live after its last heartbeat.
	WorkerExpireMs int64 `toml:"worker-expire-ms" env:"EXTCATALOG_WORKER_EXPIRE_MS"`
	// WorkerEvictMs is how long an expired worker is kept in the registry before it is dropped.
	WorkerEvictMs int64 `toml:"worker-evict-ms" env:"EXTCATALOG_WORKER_EVICT_MS"`
	// MaxScanParallelism caps the number of scan tasks one plan request may ask for.
	MaxScanParallelism int `toml:"max-scan-parallelism" env:"EXTCATALOG_MAX_SCAN_PARALLELISM"`

	IDAllocatorStep uint `toml:"id-allocator-step" env:"EXTCATALOG_ID_ALLOCATOR_STEP"`

	// MetastoreAuthMechanism is used when a catalog does not set hive.metastore.auth.
	MetastoreAuthMechanism string `toml:"metastore-auth-mechanism" env:"EXTCATALOG_METASTORE_AUTH_MECHANISM"`

	NodeName            string `toml:"node-name" env:"EXTCATALOG_NODE_NAME"`
	DataDir             string `toml:"data-dir" env:"EXTCATALOG_DATA_DIR"`
	StorageRootPath     string `toml:"storage-root-path" env:"EXTCATALOG_STORAGE_ROOT_PATH"`
	InitialCluster      string `toml:"initial-cluster" env:"EXTCATALOG_INITIAL_CLUSTER"`
	InitialClusterState string `toml:"initial-cluster-state" env:"EXTCATALOG_INITIAL_CLUSTER_STATE"`
	InitialClusterToken string `toml:"initial-cluster-token" env:"EXTCATALOG_INITIAL_CLUSTER_TOKEN"`
	// TickIntervalMs is the interval for etcd Raft tick.
	TickIntervalMs    int64 `toml:"tick-interval-ms" env:"EXTCATALOG_TICK_INTERVAL_MS"`
	ElectionTimeoutMs int64 `toml:"election-timeout-ms" env:"EXTCATALOG_ELECTION_TIMEOUT_MS"`
	// QuotaBackendBytes Raise alarms when backend size exceeds the given quota. 0 means use the default quota.
	QuotaBackendBytes int64 `toml:"quota-backend-bytes" env:"EXTCATALOG_QUOTA_BACKEND_BYTES"`
	// AutoCompactionMode is either 'periodic' or 'revision'.
	AutoCompactionMode string `toml:"auto-compaction-mode" env:"EXTCATALOG_AUTO_COMPACTION_MODE"`
	// AutoCompactionRetention is either duration string with time unit (e.g. '5m' for 5-minute), or revision unit
	// (e.g. '5000').
	AutoCompactionRetention string `toml:"auto-compaction-retention" env:"EXTCATALOG_AUTO_COMPACTION_RETENTION"`
	MaxRequestBytes         uint   `toml:"max-request-bytes" env:"EXTCATALOG_MAX_REQUEST_BYTES"`

	ClientUrls          string `toml:"client-urls" env:"EXTCATALOG_CLIENT_URLS"`
	PeerUrls            string `toml:"peer-urls" env:"EXTCATALOG_PEER_URLS"`
	AdvertiseClientUrls string `toml:"advertise-client-urls" env:"EXTCATALOG_ADVERTISE_CLIENT_URLS"`
	AdvertisePeerUrls   string `toml:"advertise-peer-urls" env:"EXTCATALOG_ADVERTISE_PEER_URLS"`

	// AdvertiseAddr is the address other nodes use to reach the grpc and http services of this node.
	AdvertiseAddr      string `toml:"advertise-addr" env:"EXTCATALOG_ADVERTISE_ADDR"`
	GrpcPort           int    `toml:"grpc-port" env:"EXTCATALOG_GRPC_PORT"`
	HTTPPort           int    `toml:"http-port" env:"EXTCATALOG_HTTP_PORT"`
	HTTPReadTimeoutMs  int64  `toml:"http-read-timeout-ms" env:"EXTCATALOG_HTTP_READ_TIMEOUT_MS"`
	HTTPWriteTimeoutMs int64  `toml:"http-write-timeout-ms" env:"EXTCATALOG_HTTP_WRITE_TIMEOUT_MS"`
}

func (c *Config) GrpcHandleTimeout() time.Duration {
	return time.Duration(c.GrpcHandleTimeoutMs) * time.Millisecond
}

func (c *Config) EtcdStartTimeout() time.Duration {
	return time.Duration(c.EtcdStartTimeoutMs) * time.Millisecond
}

func (c *Config) EtcdCallTimeout() time.Duration {
	return time.Duration(c.EtcdCallTimeoutMs) * time.Millisecond
}

func (c *Config) ForwardTimeout() time.Duration {
	return time.Duration(c.ForwardTimeoutMs) * time.Millisecond
}

func (c *Config) WorkerExpire() time.Duration {
	return time.Duration(c.WorkerExpireMs) * time.Millisecond
}

func (c *Config) WorkerEvict() time.Duration {
	return time.Duration(c.WorkerEvictMs) * time.Millisecond
}

func (c *Config) HTTPReadTimeout() time.Duration {
	return time.Duration(c.HTTPReadTimeoutMs) * time.Millisecond
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	return time.Duration(c.HTTPWriteTimeoutMs) * time.Millisecond
}

// GrpcEndpoint is the address published in the leader record, in the form of http://host:port.
func (c *Config) GrpcEndpoint() string {
	return fmt.Sprintf("http://%s:%d", c.AdvertiseAddr, c.GrpcPort)
}

// ValidateAndAdjust checks the catalogs and fills the derived fields.
func (c *Config) ValidateAndAdjust() error {
	if c.GrpcPort <= 0 || c.HTTPPort <= 0 {
		return ErrInvalidConfig.WithMessagef("grpc-port:%d, http-port:%d", c.GrpcPort, c.HTTPPort)
	}
	if c.ForwardTimeoutMs <= 0 {
		return ErrInvalidConfig.WithMessagef("forward-timeout-ms must be positive, got:%d", c.ForwardTimeoutMs)
	}
	if c.WorkerExpireMs <= 0 {
		return ErrInvalidConfig.WithMessagef("worker-expire-ms must be positive, got:%d", c.WorkerExpireMs)
	}
	if c.MaxScanParallelism <= 0 {
		return ErrInvalidConfig.WithMessagef("max-scan-parallelism must be positive, got:%d", c.MaxScanParallelism)
	}
	if c.WorkerEvictMs < c.WorkerExpireMs {
		c.WorkerEvictMs = c.WorkerExpireMs
	}
	if c.IDAllocatorStep == 0 {
		c.IDAllocatorStep = defaultIDAllocatorStep
	}
	if c.AdvertiseClientUrls == "" {
		c.AdvertiseClientUrls = c.ClientUrls
	}
	if c.AdvertisePeerUrls == "" {
		c.AdvertisePeerUrls = c.PeerUrls
	}

	ids := make(map[uint64]struct{}, len(c.Catalogs))
	names := make(map[string]struct{}, len(c.Catalogs))
	for _, catalog := range c.Catalogs {
		if catalog.Name == "" {
			return ErrInvalidCatalog.WithMessagef("catalog name is empty, id:%d", catalog.ID)
		}
		if _, ok := ids[catalog.ID]; ok {
			return ErrInvalidCatalog.WithMessagef("duplicate catalog id:%d", catalog.ID)
		}
		if _, ok := names[catalog.Name]; ok {
			return ErrInvalidCatalog.WithMessagef("duplicate catalog name:%s", catalog.Name)
		}
		ids[catalog.ID] = struct{}{}
		names[catalog.Name] = struct{}{}
	}

	return nil
}

// ToTomlBytes returns the config in toml, which is used for printing the config on startup.
func (c *Config) ToTomlBytes() ([]byte, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return nil, ErrInvalidConfig.WithCausef(err, "marshal config")
	}
	return b, nil
}

func (c *Config) GenEtcdConfig() (*embed.Config, error) {
	cfg := embed.NewConfig()

	cfg.Name = c.NodeName
	cfg.Dir = c.DataDir
	cfg.InitialCluster = c.InitialCluster
	cfg.ClusterState = c.InitialClusterState
	cfg.InitialClusterToken = c.InitialClusterToken
	cfg.TickMs = uint(c.TickIntervalMs)
	cfg.ElectionMs = uint(c.ElectionTimeoutMs)
	cfg.AutoCompactionMode = c.AutoCompactionMode
	cfg.AutoCompactionRetention = c.AutoCompactionRetention
	cfg.QuotaBackendBytes = c.QuotaBackendBytes
	cfg.MaxRequestBytes = c.MaxRequestBytes

	var err error
	cfg.ListenPeerUrls, err = parseUrls(c.PeerUrls)
	if err != nil {
		return nil, err
	}

	cfg.AdvertisePeerUrls, err = parseUrls(c.AdvertisePeerUrls)
	if err != nil {
		return nil, err
	}

	cfg.ListenClientUrls, err = parseUrls(c.ClientUrls)
	if err != nil {
		return nil, err
	}

	cfg.AdvertiseClientUrls, err = parseUrls(c.AdvertiseClientUrls)
	if err != nil {
		return nil, err
	}

	cfg.Logger = "zap"
	cfg.LogLevel = c.EtcdLog.Level
	cfg.LogOutputs = []string{c.EtcdLog.File}

	return cfg, nil
}

type Parser struct {
	flagSet        *flag.FlagSet
	cfg            *Config
	configFilePath string
}

func (p *Parser) Parse(arguments []string) (*Config, error) {
	if err := p.flagSet.Parse(arguments); err != nil {
		if err == flag.ErrHelp {
			return nil, ErrHelpRequested.WithCause(err)
		}
		return nil, ErrInvalidCommandArgs.WithCausef(err, "original arguments:%v", arguments)
	}

	return p.cfg, nil
}

// ParseConfigFromToml overrides the flag values by the toml file given by -config.
func (p *Parser) ParseConfigFromToml() error {
	if p.configFilePath == "" {
		log.Info("no config file specified")
		return nil
	}
	log.Info("get config from toml", zap.String("file", p.configFilePath))

	file, err := os.ReadFile(p.configFilePath)
	if err != nil {
		return ErrReadConfigFile.WithCausef(err, "file:%s", p.configFilePath)
	}

	if err := toml.Unmarshal(file, p.cfg); err != nil {
		return ErrInvalidConfig.WithCausef(err, "file:%s", p.configFilePath)
	}

	return nil
}

// ParseConfigFromEnv overrides the values from files and flags by the EXTCATALOG_* environment variables.
func (p *Parser) ParseConfigFromEnv() error {
	if err := env.Parse(p.cfg); err != nil {
		return ErrInvalidConfig.WithCausef(err, "parse config from env")
	}
	return nil
}

func makeDefaultNodeName() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", ErrRetrieveHostname.WithCause(err)
	}

	return fmt.Sprintf("%s-%s", defaultNodeNamePrefix, host), nil
}

func makeDefaultInitialCluster(nodeName string) string {
	return fmt.Sprintf("%s=%s", nodeName, defaultPeerUrls)
}

func MakeConfigParser() (*Parser, error) {
	fs, cfg := flag.NewFlagSet("extcatalog", flag.ContinueOnError), &Config{}
	builder := &Parser{
		flagSet: fs,
		cfg:     cfg,
	}

	fs.StringVar(&builder.configFilePath, "config", "", "config file path")

	fs.StringVar(&cfg.Log.Level, "log-level", log.DefaultLogLevel, "level of the log")
	fs.StringVar(&cfg.Log.File, "log-file", log.DefaultLogFile, "file for log output")
	fs.StringVar(&cfg.Log.Encoding, "log-encoding", log.DefaultLogEncoding, "encoding of the log, console or json")
	fs.StringVar(&cfg.EtcdLog.Level, "etcd-log-level", log.DefaultLogLevel, "level of the etcd log")
	fs.StringVar(&cfg.EtcdLog.File, "etcd-log-file", log.DefaultLogFile, "file for etcd log output")

	fs.Int64Var(&cfg.GrpcHandleTimeoutMs, "grpc-handle-timeout-ms", defaultGrpcHandleTimeoutMs, "timeout for handling grpc requests")
	fs.Int64Var(&cfg.EtcdStartTimeoutMs, "etcd-start-timeout-ms", defaultEtcdStartTimeoutMs, "timeout for starting etcd server")
	fs.Int64Var(&cfg.EtcdCallTimeoutMs, "etcd-call-timeout-ms", defaultCallTimeoutMs, "timeout for calling etcd server")
	fs.Int64Var(&cfg.ForwardTimeoutMs, "forward-timeout-ms", defaultForwardTimeoutMs, "timeout for forwarding catalog initialization to the leader")
	fs.Int64Var(&cfg.LeaseTTLSec, "lease-ttl-sec", defaultEtcdLeaseTTLSec, "ttl of etcd key lease (suggest 10s)")

	fs.Int64Var(&cfg.WorkerExpireMs, "worker-expire-ms", defaultWorkerExpireMs, "a worker is considered dead after this long without heartbeat")
	fs.Int64Var(&cfg.WorkerEvictMs, "worker-evict-ms", defaultWorkerEvictMs, "a dead worker is removed from the registry after this long without heartbeat")
	fs.IntVar(&cfg.MaxScanParallelism, "max-scan-parallelism", defaultMaxScanParallelism, "max number of scan tasks of one plan request")
	fs.UintVar(&cfg.IDAllocatorStep, "id-allocator-step", defaultIDAllocatorStep, "number of database ids reserved per etcd round trip")
	fs.StringVar(&cfg.MetastoreAuthMechanism, "metastore-auth-mechanism", defaultMetastoreAuthMechanism, "default auth mechanism for hive metastore connections")

	defaultNodeName, err := makeDefaultNodeName()
	if err != nil {
		return nil, err
	}
	fs.StringVar(&cfg.NodeName, "node-name", defaultNodeName, "member name of this node in the cluster")

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the etcd server")
	fs.StringVar(&cfg.StorageRootPath, "storage-root-path", defaultStorageRootPath, "root path of all the keys in etcd")

	defaultInitialCluster := makeDefaultInitialCluster(defaultNodeName)
	fs.StringVar(&cfg.InitialCluster, "initial-cluster", defaultInitialCluster, "members in the initial etcd cluster")
	fs.StringVar(&cfg.InitialClusterState, "initial-cluster-state", defaultInitialClusterState, "state of the initial etcd cluster")
	fs.StringVar(&cfg.InitialClusterToken, "initial-cluster-token", defaultInitialClusterToken, "token of the initial etcd cluster")

	fs.StringVar(&cfg.ClientUrls, "client-urls", defaultClientUrls, "url for client traffic")
	fs.StringVar(&cfg.AdvertiseClientUrls, "advertise-client-urls", "", "advertise url for client traffic (default '${client-urls}')")
	fs.StringVar(&cfg.PeerUrls, "peer-urls", defaultPeerUrls, "url for peer traffic")
	fs.StringVar(&cfg.AdvertisePeerUrls, "advertise-peer-urls", "", "advertise url for peer traffic (default '${peer-urls}')")

	fs.Int64Var(&cfg.TickIntervalMs, "tick-interval-ms", defaultTickIntervalMs, "tick interval of the etcd server")
	fs.Int64Var(&cfg.ElectionTimeoutMs, "election-timeout-ms", defaultElectionTimeoutMs, "election timeout of the etcd server")

	fs.Int64Var(&cfg.QuotaBackendBytes, "quota-backend-bytes", defaultQuotaBackendBytes, "alarming threshold for too much memory consumption")
	fs.StringVar(&cfg.AutoCompactionMode, "auto-compaction-mode", defaultCompactionMode, "mode of auto compaction of etcd server")
	fs.StringVar(&cfg.AutoCompactionRetention, "auto-compaction-retention", defaultAutoCompactionRetention, "retention for auto compaction(works only if auto-compaction-mode is periodic)")
	fs.UintVar(&cfg.MaxRequestBytes, "max-request-bytes", defaultMaxRequestBytes, "max bytes of requests received by etcd server")

	fs.StringVar(&cfg.AdvertiseAddr, "advertise-addr", defaultAdvertiseAddr, "address published to the other nodes")
	fs.IntVar(&cfg.GrpcPort, "grpc-port", defaultGrpcPort, "port of the grpc service")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "port of the http service")
	fs.Int64Var(&cfg.HTTPReadTimeoutMs, "http-read-timeout-ms", defaultHTTPReadTimeoutMs, "read timeout of the http service")
	fs.Int64Var(&cfg.HTTPWriteTimeoutMs, "http-write-timeout-ms", defaultHTTPWriteTimeoutMs, "write timeout of the http service")

	fs.BoolVar(&cfg.FlowLimiter.Enable, "flow-limiter-enable", defaultFlowLimitEnable, "enable the limiter of metastore pass-through calls")
	fs.IntVar(&cfg.FlowLimiter.Limit, "flow-limiter-limit", defaultFlowLimitPerSec, "permitted metastore pass-through calls per second")
	fs.IntVar(&cfg.FlowLimiter.Burst, "flow-limiter-burst", defaultFlowLimitBurstPerSec, "burst of metastore pass-through calls")

	return builder, nil
}

// parseUrls parse a string into multiple urls.
func parseUrls(s string) ([]url.URL, error) {
	items := strings.Split(s, ",")
	urls := make([]url.URL, 0, len(items))
	for _, item := range items {
		u, err := url.Parse(item)
		if err != nil {
			return nil, ErrInvalidPeerURL.WithCausef(err, "url:%s", item)
		}

		urls = append(urls, *u)
	}

	return urls, nil
}
