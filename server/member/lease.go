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
	"sync"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// lease wraps the etcd lease backing the leader key: Grant, Close and renewing it until it can not be renewed.
type lease struct {
	rawLease clientv3.Lease
	// timeout is the rpc timeout and always equals to the ttl.
	timeout time.Duration
	ttlSec  int64
	logger  *zap.Logger

	// ID is set after Grant is called.
	ID clientv3.LeaseID

	mu       sync.RWMutex
	expireAt time.Time
}

func newLease(rawLease clientv3.Lease, ttlSec int64) *lease {
	return &lease{
		rawLease: rawLease,
		timeout:  time.Duration(ttlSec) * time.Second,
		ttlSec:   ttlSec,
		logger:   log.GetLogger(),
		ID:       0,
		mu:       sync.RWMutex{},
		expireAt: time.Time{},
	}
}

func (l *lease) Grant(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	resp, err := l.rawLease.Grant(ctx, l.ttlSec)
	if err != nil {
		return ErrGrantLease.WithCause(err)
	}

	l.ID = resp.ID
	l.logger = log.With(zap.Int64("lease-id", int64(resp.ID)))
	l.extendTo(time.Now().Add(time.Duration(resp.TTL) * time.Second))

	l.logger.Debug("lease is granted", zap.Time("expire-at", l.expireTime()))
	return nil
}

func (l *lease) Close(ctx context.Context) error {
	if l.ID == 0 {
		return nil
	}

	l.mu.Lock()
	l.expireAt = time.Time{}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if _, err := l.rawLease.Revoke(ctx, l.ID); err != nil {
		return ErrRevokeLease.WithCause(err)
	}
	if err := l.rawLease.Close(); err != nil {
		return ErrCloseLease.WithCause(err)
	}
	return nil
}

// KeepAlive renews the lease every third of its ttl, and returns when the ctx is done, the lease expires, or no
// renewal succeeds within a whole ttl.
func (l *lease) KeepAlive(ctx context.Context) {
	interval := l.timeout / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRenewed := time.Now()
	l.logger.Info("start keeping lease alive", zap.Duration("interval", interval))
	defer l.logger.Info("stop keeping lease alive")

	for {
		alive, err := l.renewOnce(ctx)
		switch {
		case err != nil:
			l.logger.Warn("renew lease failed", zap.Error(err))
			if time.Since(lastRenewed) > l.timeout {
				l.logger.Warn("lease is not renewed in time")
				return
			}
		case !alive:
			l.logger.Warn("lease is expired")
			return
		default:
			lastRenewed = time.Now()
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (l *lease) renewOnce(ctx context.Context) (bool, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	resp, err := l.rawLease.KeepAliveOnce(ctx, l.ID)
	if err != nil {
		return false, err
	}
	if resp.TTL <= 0 {
		return false, nil
	}

	l.extendTo(start.Add(time.Duration(resp.TTL) * time.Second))
	return true, nil
}

// IsExpired is goroutine safe.
func (l *lease) IsExpired() bool {
	return time.Now().After(l.expireTime())
}

// extendTo only moves the expire time forward.
func (l *lease) extendTo(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.After(l.expireAt) {
		l.expireAt = t
	}
}

func (l *lease) expireTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.expireAt
}
