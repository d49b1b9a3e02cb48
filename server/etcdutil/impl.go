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

package etcdutil

import (
	"context"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/etcdserver"
)

type LeaderGetterWrapper struct {
	Server *etcdserver.EtcdServer
}

func (w *LeaderGetterWrapper) EtcdLeaderID() uint64 {
	return w.Server.Lead()
}

func Get(ctx context.Context, kv clientv3.KV, key string) (string, error) {
	resp, err := kv.Get(ctx, key)
	if err != nil {
		return "", ErrEtcdKVGet.WithCausef(err, "key:%s", key)
	}
	if n := len(resp.Kvs); n == 0 {
		return "", ErrEtcdKVGetNotFound.WithMessagef("key:%s", key)
	} else if n > 1 {
		return "", ErrEtcdKVGetResponse.WithMessagef("key:%s, kvs:%v", key, resp.Kvs)
	}

	return string(resp.Kvs[0].Value), nil
}

// ScanPrefixByCreateRevision visits all the keys under the prefix in the order of their create revisions, and returns
// the store revision the scan was served at. Watching from the returned revision + 1 observes exactly the changes
// made after the scan.
func ScanPrefixByCreateRevision(ctx context.Context, kv clientv3.KV, prefix string, do func(kv *mvccpb.KeyValue) error) (int64, error) {
	resp, err := kv.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend))
	if err != nil {
		return 0, ErrEtcdKVGet.WithCausef(err, "prefix:%s", prefix)
	}

	for _, item := range resp.Kvs {
		if err := do(item); err != nil {
			return 0, err
		}
	}

	return resp.Header.Revision, nil
}

// LastCreateRevision returns the create revision of the newest key under the prefix, 0 if no key exists.
func LastCreateRevision(ctx context.Context, kv clientv3.KV, prefix string) (int64, error) {
	resp, err := kv.Get(ctx, prefix, append(clientv3.WithLastCreate(), clientv3.WithKeysOnly())...)
	if err != nil {
		return 0, ErrEtcdKVGet.WithCausef(err, "prefix:%s", prefix)
	}
	if len(resp.Kvs) == 0 {
		return 0, nil
	}

	return resp.Kvs[0].CreateRevision, nil
}
