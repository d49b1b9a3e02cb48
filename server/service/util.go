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

package service

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	ErrParseURL = coderr.NewCodeErrorDef(coderr.InvalidParams, "parse url")
	ErrGRPCDial = coderr.NewCodeErrorDef(coderr.Unavailable, "grpc dial")
)

// GetClientConn returns a gRPC client connection. The addr may be in the form of http://host:port.
func GetClientConn(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	opt := grpc.WithTransportCredentials(insecure.NewCredentials())

	host := addr
	if strings.HasPrefix(addr, "http") {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, ErrParseURL.WithCausef(err, "addr:%s", addr)
		}
		host = u.Host
	}

	cc, err := grpc.DialContext(ctx, host, opt)
	if err != nil {
		return nil, ErrGRPCDial.WithCausef(err, "addr:%s", host)
	}
	return cc, nil
}

// ConnPool caches one client connection per address. Concurrent dials to the same address share one connection.
type ConnPool struct {
	conns sync.Map
	group singleflight.Group
}

func NewConnPool() *ConnPool {
	return &ConnPool{
		conns: sync.Map{},
		group: singleflight.Group{},
	}
}

func (p *ConnPool) Get(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	if cc, ok := p.conns.Load(addr); ok {
		return cc.(*grpc.ClientConn), nil
	}

	cc, err, _ := p.group.Do(addr, func() (interface{}, error) {
		if cc, ok := p.conns.Load(addr); ok {
			return cc, nil
		}
		cc, err := GetClientConn(ctx, addr)
		if err != nil {
			return nil, err
		}
		p.conns.Store(addr, cc)
		return cc, nil
	})
	if err != nil {
		return nil, err
	}
	return cc.(*grpc.ClientConn), nil
}

func (p *ConnPool) Close() {
	p.conns.Range(func(key, value any) bool {
		if err := value.(*grpc.ClientConn).Close(); err != nil {
			log.Warn("close grpc connection failed", zap.Any("addr", key), zap.Error(err))
		}
		p.conns.Delete(key)
		return true
	})
}
