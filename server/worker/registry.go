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

package worker

import (
	"sort"
	"sync"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

// Node is a worker that executes the scan tasks. It is identified by its endpoint.
type Node struct {
	ID            uint64
	Name          string
	Endpoint      string
	LastTouchTime time.Time
}

// NodeID derives the id of the worker from its endpoint, so every node assigns the same id to a worker.
func NodeID(endpoint string) uint64 {
	return murmur3.Sum64([]byte(endpoint))
}

// IsLive tells whether the node has sent a heartbeat within the expire threshold.
func (n Node) IsLive(now time.Time, expire time.Duration) bool {
	return !now.After(n.LastTouchTime.Add(expire))
}

type Registry interface {
	// LiveWorkers returns the live workers ordered by name.
	LiveWorkers() []Node
}

// RegistryImpl tracks the workers by their heartbeats. Workers heartbeat every node, so every node is able to plan
// scan tasks without asking the others.
type RegistryImpl struct {
	logger *zap.Logger
	expire time.Duration
	now    func() time.Time

	lock  sync.RWMutex
	nodes map[string]Node
}

func NewRegistryImpl(expire time.Duration) *RegistryImpl {
	return &RegistryImpl{
		logger: log.With(zap.String("component", "worker-registry")),
		expire: expire,
		now:    time.Now,
		lock:   sync.RWMutex{},
		nodes:  map[string]Node{},
	}
}

func (r *RegistryImpl) Heartbeat(endpoint string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	node, ok := r.nodes[endpoint]
	if !ok {
		r.logger.Info("register worker", zap.String("endpoint", endpoint))
		node = Node{ID: NodeID(endpoint), Name: endpoint, Endpoint: endpoint, LastTouchTime: time.Time{}}
	}
	node.LastTouchTime = r.now()
	r.nodes[endpoint] = node
}

func (r *RegistryImpl) LiveWorkers() []Node {
	now := r.now()
	return r.filter(func(n Node) bool { return n.IsLive(now, r.expire) })
}

// AllWorkers returns all the registered workers, live or not, ordered by name.
func (r *RegistryImpl) AllWorkers() []Node {
	return r.filter(func(Node) bool { return true })
}

func (r *RegistryImpl) IsLive(n Node) bool {
	return n.IsLive(r.now(), r.expire)
}

func (r *RegistryImpl) filter(keep func(Node) bool) []Node {
	r.lock.RLock()
	nodes := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		if keep(n) {
			nodes = append(nodes, n)
		}
	}
	r.lock.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes
}

// EvictUntouched drops the workers without any heartbeat for longer than the threshold, and returns the dropped ones.
func (r *RegistryImpl) EvictUntouched(threshold time.Duration) []Node {
	now := r.now()

	r.lock.Lock()
	defer r.lock.Unlock()

	var evicted []Node
	for endpoint, n := range r.nodes {
		if n.IsLive(now, threshold) {
			continue
		}
		delete(r.nodes, endpoint)
		evicted = append(evicted, n)
	}
	return evicted
}
