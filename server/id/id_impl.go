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

package id

import (
	"context"
	"strconv"
	"sync"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/apache/incubator-horaedb-extcatalog/server/etcdutil"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/clientv3util"
	"go.uber.org/zap"
)

// AllocatorImpl reserves ids from etcd in batches of allocStep. The key stores the end of the reserved range, and
// ids in [base, end) are handed out from memory.
type AllocatorImpl struct {
	logger *zap.Logger

	lock sync.Mutex
	base uint64
	end  uint64
	// synced is false until the reserved range has been read from etcd once.
	synced bool

	kv        clientv3.KV
	key       string
	allocStep uint64
}

func NewAllocatorImpl(logger *zap.Logger, kv clientv3.KV, key string, allocStep uint) *AllocatorImpl {
	return &AllocatorImpl{
		logger:    logger.With(zap.String("id-key", key)),
		lock:      sync.Mutex{},
		base:      0,
		end:       0,
		synced:    false,
		kv:        kv,
		key:       key,
		allocStep: uint64(allocStep),
	}
}

func (a *AllocatorImpl) Alloc(ctx context.Context) (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.synced || a.base == a.end {
		if err := a.reserveLocked(ctx); err != nil {
			return 0, errors.WithMessage(err, "alloc id")
		}
		a.synced = true
	}

	ret := a.base
	a.base++
	return ret, nil
}

// reserveLocked moves the end stored in etcd forward by one step. The memory end is tried first and the value in
// etcd is reloaded if another allocator has moved it.
func (a *AllocatorImpl) reserveLocked(ctx context.Context) error {
	if a.synced {
		ok, err := a.casEndLocked(ctx, a.end)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		a.logger.Warn("end id has been moved by others, reload it")
	}

	val, err := etcdutil.Get(ctx, a.kv, a.key)
	if coderr.Is(err, coderr.NotFound) {
		return a.createEndLocked(ctx)
	}
	if err != nil {
		return err
	}

	currEnd, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return ErrAllocID.WithCausef(err, "invalid end id, key:%s, value:%s", a.key, val)
	}
	ok, err := a.casEndLocked(ctx, currEnd)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTxnPutEndID.WithMessagef("end id changed concurrently, key:%s, value:%d", a.key, currEnd)
	}
	return nil
}

func (a *AllocatorImpl) createEndLocked(ctx context.Context) error {
	// Id 0 is never handed out.
	newEnd := a.allocStep + 1
	resp, err := a.kv.Txn(ctx).
		If(clientv3util.KeyMissing(a.key)).
		Then(clientv3.OpPut(a.key, strconv.FormatUint(newEnd, 10))).
		Commit()
	if err != nil {
		return errors.WithMessagef(err, "put end id failed, key:%s", a.key)
	}
	if !resp.Succeeded {
		return ErrTxnPutEndID.WithMessagef("key exists, key:%s", a.key)
	}

	a.base, a.end = 1, newEnd
	a.logger.Info("allocator reserves the first ids", zap.Uint64("base", a.base), zap.Uint64("end", a.end))
	return nil
}

func (a *AllocatorImpl) casEndLocked(ctx context.Context, currEnd uint64) (bool, error) {
	if currEnd < a.base {
		return false, ErrAllocID.WithMessagef("end id in storage is less than memory, base:%d, end:%d", a.base, currEnd)
	}

	newEnd := currEnd + a.allocStep
	resp, err := a.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(a.key), "=", strconv.FormatUint(currEnd, 10))).
		Then(clientv3.OpPut(a.key, strconv.FormatUint(newEnd, 10))).
		Commit()
	if err != nil {
		return false, errors.WithMessagef(err, "put end id failed, key:%s, old value:%d, new value:%d", a.key, currEnd, newEnd)
	}
	if !resp.Succeeded {
		return false, nil
	}

	a.base, a.end = currEnd, newEnd
	a.logger.Info("allocator reserves ids", zap.Uint64("base", a.base), zap.Uint64("end", a.end))
	return true, nil
}
