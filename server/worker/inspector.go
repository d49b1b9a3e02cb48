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
	"context"
	"sync"
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"go.uber.org/zap"
)

var (
	ErrStartAgain   = coderr.NewCodeErrorDef(coderr.Internal, "try to start again")
	ErrStopNotStart = coderr.NewCodeErrorDef(coderr.Internal, "try to stop a not-started inspector")
)

const defaultInspectInterval = time.Second * 5

// Inspector drops the workers that have been dead for long from the registry.
type Inspector struct {
	logger    *zap.Logger
	registry  *RegistryImpl
	evictAge  time.Duration
	interval  time.Duration
	starter   sync.Once
	bgCancel  context.CancelFunc
	cancelMux sync.Mutex
}

func NewInspector(logger *zap.Logger, registry *RegistryImpl, evictAge time.Duration) *Inspector {
	return &Inspector{
		logger:    logger,
		registry:  registry,
		evictAge:  evictAge,
		interval:  defaultInspectInterval,
		starter:   sync.Once{},
		bgCancel:  nil,
		cancelMux: sync.Mutex{},
	}
}

func (i *Inspector) Start(ctx context.Context) error {
	started := false
	i.starter.Do(func() {
		started = true
		stopCtx, cancel := context.WithCancel(ctx)
		i.cancelMux.Lock()
		i.bgCancel = cancel
		i.cancelMux.Unlock()

		i.logger.Info("worker inspector start", zap.Duration("evict-age", i.evictAge))
		go func() {
			ticker := time.NewTicker(i.interval)
			defer ticker.Stop()
			for {
				select {
				case <-stopCtx.Done():
					i.logger.Info("worker inspector is stopped")
					return
				case <-ticker.C:
				}
				i.inspect()
			}
		}()
	})

	if !started {
		return ErrStartAgain.WithMessagef("worker inspector")
	}
	return nil
}

func (i *Inspector) Stop(_ context.Context) error {
	i.cancelMux.Lock()
	defer i.cancelMux.Unlock()

	if i.bgCancel == nil {
		return ErrStopNotStart.WithMessagef("worker inspector")
	}
	i.bgCancel()
	return nil
}

func (i *Inspector) inspect() {
	for _, n := range i.registry.EvictUntouched(i.evictAge) {
		i.logger.Info("evict dead worker", zap.String("endpoint", n.Endpoint), zap.Time("last-touch-time", n.LastTouchTime))
	}
}
