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

package catalog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	stateUninitialized = "uninitialized"
	stateInitialized   = "initialized"

	eventInitialize = "initialize"
	eventInvalidate = "invalidate"
)

var lifecycleEvents = fsm.Events{
	{Name: eventInitialize, Src: []string{stateUninitialized}, Dst: stateInitialized},
	{Name: eventInvalidate, Src: []string{stateInitialized}, Dst: stateUninitialized},
}

// Replica is the local copy of a catalog, built only by applying the events of the edit log in order.
type Replica struct {
	meta   Meta
	logger *zap.Logger

	state     atomic.Pointer[State]
	lifecycle *fsm.FSM

	// applyLock serializes Apply and protects the fields below.
	applyLock  sync.Mutex
	appliedRev int64
	maxTerm    int64
	// applied is closed and replaced every time appliedRev advances.
	applied chan struct{}
}

func NewReplica(meta Meta) *Replica {
	logger := log.With(zap.String("catalog", meta.Name), zap.Uint64("catalog-id", uint64(meta.ID)))
	r := &Replica{
		meta:       meta,
		logger:     logger,
		state:      atomic.Pointer[State]{},
		lifecycle:  nil,
		applyLock:  sync.Mutex{},
		appliedRev: 0,
		maxTerm:    0,
		applied:    make(chan struct{}),
	}
	r.state.Store(EmptyState())
	r.lifecycle = fsm.NewFSM(stateUninitialized, lifecycleEvents, fsm.Callbacks{
		"enter_state": func(e *fsm.Event) {
			logger.Info("catalog lifecycle changes", zap.String("event", e.Event), zap.String("from", e.Src), zap.String("to", e.Dst))
		},
	})
	return r
}

func (r *Replica) Meta() Meta {
	return r.meta
}

// State returns the current generation.
func (r *Replica) State() *State {
	return r.state.Load()
}

func (r *Replica) IsInitialized() bool {
	return r.lifecycle.Is(stateInitialized)
}

func (r *Replica) AppliedRevision() int64 {
	r.applyLock.Lock()
	defer r.applyLock.Unlock()

	return r.appliedRev
}

// Apply installs the event appended at the revision of the edit log. Events at or below the applied revision are
// ignored, so an event may be delivered more than once. An event whose term is older than an applied one is skipped
// with ErrStaleTerm; the revision is consumed either way.
func (r *Replica) Apply(rev int64, ev *Event) error {
	r.applyLock.Lock()
	defer r.applyLock.Unlock()

	if rev <= r.appliedRev {
		r.logger.Debug("skip applied event", zap.Int64("revision", rev), zap.Int64("applied-revision", r.appliedRev))
		return nil
	}
	defer r.advanceLocked(rev)

	if ev.Term < r.maxTerm {
		r.logger.Warn("skip event of stale term", zap.String("event-id", ev.ID), zap.Int64("term", ev.Term), zap.Int64("max-term", r.maxTerm))
		return ErrStaleTerm.WithMessagef("catalog:%s, event:%s, term:%d, max term:%d", r.meta.Name, ev.ID, ev.Term, r.maxTerm)
	}
	r.maxTerm = ev.Term

	switch ev.Type {
	case EventTypeInit:
		next, missing := r.State().next(ev.Init)
		if len(missing) > 0 {
			r.logger.Warn("refreshed databases are unknown, skip them", zap.Any("database-ids", missing), zap.String("event-id", ev.ID))
		}
		r.state.Store(next)
		r.fire(eventInitialize)
		r.logger.Info("apply init event", zap.String("event-id", ev.ID), zap.Int64("revision", rev),
			zap.Int("created", len(ev.Init.CreatedDBs)), zap.Int("refreshed", len(ev.Init.RefreshedDBs)))
	case EventTypeInvalidate:
		r.fire(eventInvalidate)
		r.logger.Info("apply invalidate event", zap.String("event-id", ev.ID), zap.Int64("revision", rev))
	}
	return nil
}

func (r *Replica) fire(event string) {
	if !r.lifecycle.Can(event) {
		return
	}
	if err := r.lifecycle.Event(event); err != nil {
		r.logger.Error("fire lifecycle event", zap.String("event", event), zap.Error(err))
	}
}

func (r *Replica) advanceLocked(rev int64) {
	r.appliedRev = rev
	close(r.applied)
	r.applied = make(chan struct{})
}

// WaitApplied blocks until the applied revision reaches rev or the ctx is done.
func (r *Replica) WaitApplied(ctx context.Context, rev int64) error {
	for {
		r.applyLock.Lock()
		appliedRev, applied := r.appliedRev, r.applied
		r.applyLock.Unlock()

		if appliedRev >= rev {
			return nil
		}

		select {
		case <-applied:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
