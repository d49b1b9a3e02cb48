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

package planner

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/worker"
	"go.uber.org/zap"
)

type Request struct {
	Kind string `json:"kind"`
	// Parallelism is the number of tasks to produce, zero means the default of the source.
	Parallelism int               `json:"parallelism"`
	Params      map[string]string `json:"params"`
}

type ScanTask struct {
	Worker worker.Node
	Range  ScanRange
}

// Planner splits a generator request into scan tasks and assigns them to the live workers.
type Planner struct {
	registry       worker.Registry
	sources        map[string]GeneratorSource
	maxParallelism int
	logger         *zap.Logger

	// rand.Rand is not safe for concurrent use.
	randLock sync.Mutex
	rand     *rand.Rand
}

// NewPlanner creates a planner over the sources. Requests asking for more than maxParallelism tasks are rejected.
func NewPlanner(registry worker.Registry, maxParallelism int, sources ...GeneratorSource) *Planner {
	return newPlannerWithRand(registry, maxParallelism, rand.New(rand.NewSource(time.Now().UnixNano())), sources...)
}

func newPlannerWithRand(registry worker.Registry, maxParallelism int, r *rand.Rand, sources ...GeneratorSource) *Planner {
	sourceByName := make(map[string]GeneratorSource, len(sources))
	for _, s := range sources {
		sourceByName[s.Name()] = s
	}
	return &Planner{
		registry:       registry,
		sources:        sourceByName,
		maxParallelism: maxParallelism,
		logger:         log.With(zap.String("component", "planner")),
		randLock:       sync.Mutex{},
		rand:           r,
	}
}

func (p *Planner) Source(kind string) (GeneratorSource, error) {
	source, ok := p.sources[kind]
	if !ok {
		return nil, ErrUnknownSource.WithMessagef("kind:%s", kind)
	}
	return source, nil
}

// Plan produces exactly the requested number of tasks, or none if no worker is live.
func (p *Planner) Plan(_ context.Context, req Request) ([]ScanTask, error) {
	source, err := p.Source(req.Kind)
	if err != nil {
		return nil, err
	}
	gen, err := source.Parse(req.Params)
	if err != nil {
		return nil, err
	}

	parallelism := req.Parallelism
	if parallelism == 0 {
		parallelism = gen.DefaultParallelism()
	}
	if parallelism < 1 {
		return nil, ErrInvalidRequest.WithMessagef("parallelism must be positive, got:%d", parallelism)
	}
	if parallelism > p.maxParallelism {
		return nil, ErrInvalidRequest.WithMessagef("parallelism exceeds the limit, got:%d, max:%d", parallelism, p.maxParallelism)
	}

	live := p.registry.LiveWorkers()
	if len(live) == 0 {
		return nil, ErrNoLiveWorkers.WithMessagef("plan %s with parallelism:%d", req.Kind, parallelism)
	}
	p.shuffle(live)

	ranges := gen.Ranges(parallelism)
	tasks := make([]ScanTask, 0, len(ranges))
	for i, r := range ranges {
		tasks = append(tasks, ScanTask{Worker: live[i%len(live)], Range: r})
	}

	p.logger.Debug("plan scan tasks", zap.String("kind", req.Kind), zap.Int("parallelism", parallelism), zap.Int("live-workers", len(live)))
	return tasks, nil
}

func (p *Planner) shuffle(nodes []worker.Node) {
	p.randLock.Lock()
	defer p.randLock.Unlock()

	p.rand.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
}
