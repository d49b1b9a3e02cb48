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
	"testing"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/stretchr/testify/require"
)

// staticCatalog is initialized by its first EnsureInitialized with a fixed set of databases.
type staticCatalog struct {
	replica *Replica
	names   []string
	alloc   *seqAllocator
	closed  bool
}

func newStaticFactory(names ...string) Factory {
	return func(replica *Replica, _ Deps) (Catalog, error) {
		return &staticCatalog{replica: replica, names: names, alloc: &seqAllocator{next: 1}, closed: false}, nil
	}
}

func (c *staticCatalog) Meta() Meta        { return c.replica.Meta() }
func (c *staticCatalog) Replica() *Replica { return c.replica }

func (c *staticCatalog) EnsureInitialized(ctx context.Context) error {
	if c.replica.IsInitialized() {
		return nil
	}
	init, err := BuildInitEvent(ctx, c.Meta(), c.replica.State(), c.names, c.alloc)
	if err != nil {
		return err
	}
	return c.replica.Apply(c.replica.AppliedRevision()+1, NewInitEvent(1, init))
}

func (c *staticCatalog) Invalidate(_ context.Context) error { return nil }

func (c *staticCatalog) ListDatabaseNames(ctx context.Context) ([]string, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	return c.replica.State().DatabaseNames(), nil
}

func (c *staticCatalog) ListTableNames(_ context.Context, _ string) ([]string, error) { return nil, nil }

func (c *staticCatalog) TableExists(_ context.Context, _, _ string) (bool, error) { return false, nil }

func (c *staticCatalog) GetDatabaseByName(_ context.Context, name string) (*Database, bool, error) {
	db, ok := c.replica.State().GetByName(name)
	return db, ok, nil
}

func (c *staticCatalog) GetDatabaseByID(_ context.Context, id DatabaseID) (*Database, bool, error) {
	db, ok := c.replica.State().GetByID(id)
	return db, ok, nil
}

func (c *staticCatalog) GetDatabaseIDs(_ context.Context) ([]DatabaseID, error) {
	return c.replica.State().DatabaseIDs(), nil
}

func (c *staticCatalog) LoadDatabase(_ context.Context, _ string) error { return nil }

func (c *staticCatalog) Close() error {
	c.closed = true
	return nil
}

func TestManager(t *testing.T) {
	re := require.New(t)
	metas := []Meta{
		NewMeta(2, "c2", KindHMS, nil),
		NewMeta(1, "c1", KindHMS, nil),
	}
	m, err := NewManager(metas, map[Kind]Factory{KindHMS: newStaticFactory("sales", "hr")}, Deps{})
	re.NoError(err)

	list := m.List()
	re.Len(list, 2)
	re.Equal(ID(1), list[0].ID)
	re.Equal(ID(2), list[1].ID)

	c1, err := m.GetByName("c1")
	re.NoError(err)
	re.Equal(ID(1), c1.Meta().ID)
	_, err = m.GetByName("c3")
	re.True(coderr.Is(err, coderr.NotFound))
	_, err = m.GetByID(3)
	re.True(coderr.Is(err, coderr.NotFound))

	rev, err := m.InitCatalog(context.Background(), 1)
	re.NoError(err)
	re.Equal(int64(1), rev)

	// Events are routed by catalog id, and events of unknown catalogs are ignored.
	m.Apply(10, NewInvalidateEvent(1, 1))
	re.False(c1.Replica().IsInitialized())
	m.Apply(11, NewInvalidateEvent(1, 42))

	m.Close()
	re.True(c1.(*staticCatalog).closed)
}

func TestManagerRejectsInvalidRegistration(t *testing.T) {
	re := require.New(t)
	factories := map[Kind]Factory{KindHMS: newStaticFactory()}

	_, err := NewManager([]Meta{NewMeta(1, "c1", "jdbc", nil)}, factories, Deps{})
	re.True(coderr.Is(err, coderr.InvalidParams))

	_, err = NewManager([]Meta{NewMeta(1, "c1", KindHMS, nil), NewMeta(1, "c2", KindHMS, nil)}, factories, Deps{})
	re.Error(err)

	_, err = NewManager([]Meta{NewMeta(1, "c1", KindHMS, nil), NewMeta(2, "c1", KindHMS, nil)}, factories, Deps{})
	re.Error(err)
}
