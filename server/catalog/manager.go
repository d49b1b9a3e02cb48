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
	"sort"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Manager holds all the registered catalogs. Catalogs are registered once when the Manager is created.
type Manager struct {
	logger *zap.Logger
	byID   map[ID]Catalog
	byName map[string]Catalog
}

func NewManager(metas []Meta, factories map[Kind]Factory, deps Deps) (*Manager, error) {
	m := &Manager{
		logger: log.GetLogger(),
		byID:   make(map[ID]Catalog, len(metas)),
		byName: make(map[string]Catalog, len(metas)),
	}

	for _, meta := range metas {
		if _, ok := m.byID[meta.ID]; ok {
			return nil, ErrDuplicateCatalog.WithMessagef("duplicate catalog id:%d", meta.ID)
		}
		if _, ok := m.byName[meta.Name]; ok {
			return nil, ErrDuplicateCatalog.WithMessagef("duplicate catalog name:%s", meta.Name)
		}

		factory, ok := factories[meta.Kind]
		if !ok {
			return nil, ErrUnknownKind.WithMessagef("catalog:%s, kind:%s", meta.Name, meta.Kind)
		}
		c, err := factory(NewReplica(meta), deps)
		if err != nil {
			return nil, errors.WithMessagef(err, "create catalog:%s", meta.Name)
		}
		m.byID[meta.ID] = c
		m.byName[meta.Name] = c
		m.logger.Info("register catalog", zap.String("catalog", meta.Name), zap.Uint64("catalog-id", uint64(meta.ID)), zap.String("kind", string(meta.Kind)))
	}

	return m, nil
}

func (m *Manager) GetByName(name string) (Catalog, error) {
	c, ok := m.byName[name]
	if !ok {
		return nil, ErrCatalogNotFound.WithMessagef("catalog:%s", name)
	}
	return c, nil
}

func (m *Manager) GetByID(id ID) (Catalog, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrCatalogNotFound.WithMessagef("catalog id:%d", id)
	}
	return c, nil
}

// List returns the registered catalogs ordered by id.
func (m *Manager) List() []Meta {
	metas := make([]Meta, 0, len(m.byID))
	for _, c := range m.byID {
		metas = append(metas, c.Meta())
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })
	return metas
}

// Apply routes the event of the edit log to the replica of its catalog. Events of unknown catalogs are skipped.
func (m *Manager) Apply(rev int64, ev *Event) {
	c, ok := m.byID[ev.CatalogID]
	if !ok {
		m.logger.Warn("skip event of unknown catalog", zap.Uint64("catalog-id", uint64(ev.CatalogID)), zap.String("event-id", ev.ID), zap.Int64("revision", rev))
		return
	}

	if err := c.Replica().Apply(rev, ev); err != nil {
		m.logger.Warn("apply event failed", zap.String("catalog", c.Meta().Name), zap.Int64("revision", rev), zap.Error(err))
	}
}

// InitCatalog initializes the catalog on this node and returns the revision the initialization is visible at, 0 if
// the catalog is still uninitialized after the attempt.
func (m *Manager) InitCatalog(ctx context.Context, id ID) (int64, error) {
	c, err := m.GetByID(id)
	if err != nil {
		return 0, err
	}
	if err := c.EnsureInitialized(ctx); err != nil {
		return 0, err
	}

	replica := c.Replica()
	if !replica.IsInitialized() {
		return 0, nil
	}
	return replica.AppliedRevision(), nil
}

func (m *Manager) Close() {
	for _, c := range m.byID {
		if err := c.Close(); err != nil {
			m.logger.Error("close catalog failed", zap.String("catalog", c.Meta().Name), zap.Error(err))
		}
	}
}
