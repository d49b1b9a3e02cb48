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

package http

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/forward"
	"github.com/apache/incubator-horaedb-extcatalog/server/service"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ForwardClient sends the requests which must be served by the leader to the http service of the leader.
type ForwardClient struct {
	leaderGetter forward.LeaderGetter
	client       *http.Client
	port         int
}

func NewForwardClient(leaderGetter forward.LeaderGetter, port int) *ForwardClient {
	return &ForwardClient{
		leaderGetter: leaderGetter,
		client:       getForwardedHTTPClient(),
		port:         port,
	}
}

func (s *ForwardClient) GetLeaderAddr(ctx context.Context) (string, error) {
	resp, err := s.leaderGetter.GetLeaderAddr(ctx)
	if err != nil {
		return "", err
	}

	return resp.LeaderEndpoint, nil
}

func (s *ForwardClient) getForwardedAddr(ctx context.Context) (string, bool, error) {
	resp, err := s.leaderGetter.GetLeaderAddr(ctx)
	if err != nil {
		return "", false, errors.WithMessage(err, "get forwarded addr")
	}
	if resp.IsLocal {
		return "", true, nil
	}
	// The http port of the leader is assumed to be the same as the local one.
	httpAddr, err := formatHTTPAddr(resp.LeaderEndpoint, s.port)
	if err != nil {
		return "", false, errors.WithMessage(err, "format http addr")
	}
	log.Debug("forward http request", zap.String("leader-addr", httpAddr))
	return httpAddr, false, nil
}

func (s *ForwardClient) forwardToLeader(req *http.Request) (*http.Response, bool, error) {
	addr, isLeader, err := s.getForwardedAddr(req.Context())
	if err != nil {
		return nil, false, err
	}
	if isLeader {
		return nil, true, nil
	}

	// Update remote host
	req.RequestURI = ""
	if req.TLS == nil {
		req.URL.Scheme = "http"
	} else {
		req.URL.Scheme = "https"
	}
	req.URL.Host = addr

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "send request to leader:%s", addr)
	}

	return resp, false, nil
}

func getForwardedHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				Deadline:  time.Time{},
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// formatHTTPAddr converts grpcAddr(http://127.0.0.1:8831) and httpPort(8080) to httpAddr(127.0.0.1:8080).
func formatHTTPAddr(grpcAddr string, httpPort int) (string, error) {
	u, err := url.Parse(grpcAddr)
	if err != nil {
		return "", service.ErrParseURL.WithCause(err)
	}
	host := u.Hostname()
	if host == "" || u.Port() == "" {
		return "", ErrParseLeaderAddr.WithMessagef("grpcAddr:%s", grpcAddr)
	}
	return net.JoinHostPort(host, strconv.Itoa(httpPort)), nil
}
