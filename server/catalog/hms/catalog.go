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

package hms

import (
	"context"
	"sync"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Catalog is a Hive Metastore catalog. The leader refreshes it from the metastore and the other nodes replay the
// outcome from the edit log.
type Catalog struct {
	replica   *catalog.Replica
	deps      catalog.Deps
	newClient ClientFactory
	logger    *zap.Logger

	// lock makes initialization and invalidation of this catalog exclusive on this node.
	lock sync.Mutex

	clientLock sync.Mutex
	client     MetastoreClient
}

func NewFactory(newClient ClientFactory) catalog.Factory {
	return func(replica *catalog.Replica, deps catalog.Deps) (catalog.Catalog, error) {
		return NewCatalog(replica, deps, newClient), nil
	}
}

func NewCatalog(replica *catalog.Replica, deps catalog.Deps, newClient ClientFactory) *Catalog {
	meta := replica.Meta()
	return &Catalog{
		replica:    replica,
		deps:       deps,
		newClient:  newClient,
		logger:     log.With(zap.String("catalog", meta.Name), zap.Uint64("catalog-id", uint64(meta.ID))),
		lock:       sync.Mutex{},
		clientLock: sync.Mutex{},
		client:     nil,
	}
}

func (c *Catalog) Meta() catalog.Meta {
	return c.replica.Meta()
}

func (c *Catalog) Replica() *catalog.Replica {
	return c.replica
}

// getClient connects to the metastore on the first call. A failed connection is not kept, so the next call retries.
func (c *Catalog) getClient() (MetastoreClient, error) {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := c.newClient(c.Meta())
	if err != nil {
		return nil, catalog.ErrConnectionSetup.WithCausef(err, "catalog:%s", c.Meta().Name)
	}
	c.client = client
	c.logger.Info("metastore client is created")
	return client, nil
}

func (c *Catalog) EnsureInitialized(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	client, err := c.getClient()
	if err != nil {
		return err
	}

	if c.replica.IsInitialized() {
		return nil
	}

	if !c.deps.Leadership.IsLeader() {
		if err := c.deps.Forwarder.Forward(ctx, c.Meta().ID, c.replica); err != nil {
			return errors.WithMessagef(err, "forward initialization, catalog:%s", c.Meta().Name)
		}
		return nil
	}

	return c.refreshLocked(ctx, client)
}

func (c *Catalog) refreshLocked(ctx context.Context, client MetastoreClient) error {
	meta := c.Meta()
	term := c.deps.Leadership.Term()
	if term == 0 {
		return catalog.ErrNotLeader.WithMessagef("catalog:%s", meta.Name)
	}

	// Events appended by the previous leaders must be applied before the next generation is built on top of them.
	lastRev, err := c.deps.EventLog.LastRevision(ctx, meta.ID)
	if err != nil {
		return catalog.ErrCatchUp.WithCausef(err, "catalog:%s", meta.Name)
	}
	if err := c.replica.WaitApplied(ctx, lastRev); err != nil {
		return catalog.ErrCatchUp.WithCausef(err, "catalog:%s, revision:%d", meta.Name, lastRev)
	}
	if c.replica.IsInitialized() {
		return nil
	}

	names, err := client.ListAllDatabases(ctx)
	if err != nil {
		err = catalog.ErrRefreshTransient.WithCausef(err, "catalog:%s", meta.Name)
		c.logger.Warn("list databases failed, catalog stays uninitialized", zap.String("err", coderr.FormatErrorWithStack(err)))
		return nil
	}

	init, err := catalog.BuildInitEvent(ctx, meta, c.replica.State(), names, c.deps.IDAllocator)
	if err != nil {
		return err
	}

	ev := catalog.NewInitEvent(term, init)
	rev, err := c.deps.EventLog.Append(ctx, ev, term)
	if err != nil {
		return catalog.ErrAppendEvent.WithCausef(err, "catalog:%s, event:%s", meta.Name, ev.ID)
	}
	c.logger.Info("catalog is refreshed", zap.String("event-id", ev.ID), zap.Int64("revision", rev), zap.Int64("term", term),
		zap.Int("created", len(init.CreatedDBs)), zap.Int("refreshed", len(init.RefreshedDBs)))

	return c.replica.Apply(rev, ev)
}

func (c *Catalog) Invalidate(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	meta := c.Meta()
	term := c.deps.Leadership.Term()
	if !c.deps.Leadership.IsLeader() || term == 0 {
		return catalog.ErrNotLeader.WithMessagef("invalidate catalog:%s", meta.Name)
	}

	ev := catalog.NewInvalidateEvent(term, meta.ID)
	rev, err := c.deps.EventLog.Append(ctx, ev, term)
	if err != nil {
		return catalog.ErrAppendEvent.WithCausef(err, "catalog:%s, event:%s", meta.Name, ev.ID)
	}
	return c.replica.Apply(rev, ev)
}

func (c *Catalog) ListDatabaseNames(ctx context.Context) ([]string, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	return c.replica.State().DatabaseNames(), nil
}

// ListTableNames serves a loaded database from its cache. A database that is not loaded, or not yet known to the
// current generation, is read through to the metastore.
func (c *Catalog) ListTableNames(ctx context.Context, dbName string) ([]string, error) {
	db, ok, err := c.GetDatabaseByName(ctx, dbName)
	if err != nil {
		return nil, err
	}
	if ok {
		if tables, loaded := db.TableNames(); loaded {
			return tables, nil
		}
	}
	return c.listRemoteTables(ctx, dbName)
}

func (c *Catalog) TableExists(ctx context.Context, dbName, tableName string) (bool, error) {
	client, err := c.passThroughClient()
	if err != nil {
		return false, err
	}

	exists, err := client.TableExists(ctx, dbName, tableName)
	if err != nil {
		return false, catalog.ErrRemoteQuery.WithCausef(err, "table exists, catalog:%s, database:%s, table:%s", c.Meta().Name, dbName, tableName)
	}
	return exists, nil
}

func (c *Catalog) GetDatabaseByName(ctx context.Context, name string) (*catalog.Database, bool, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, false, err
	}
	db, ok := c.replica.State().GetByName(name)
	return db, ok, nil
}

func (c *Catalog) GetDatabaseByID(ctx context.Context, id catalog.DatabaseID) (*catalog.Database, bool, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, false, err
	}
	db, ok := c.replica.State().GetByID(id)
	return db, ok, nil
}

func (c *Catalog) GetDatabaseIDs(ctx context.Context) ([]catalog.DatabaseID, error) {
	if err := c.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	return c.replica.State().DatabaseIDs(), nil
}

func (c *Catalog) LoadDatabase(ctx context.Context, dbName string) error {
	db, err := c.getDatabase(ctx, dbName)
	if err != nil {
		return err
	}

	tables, err := c.listRemoteTables(ctx, dbName)
	if err != nil {
		return err
	}
	db.InstallTables(tables)
	c.logger.Info("database is loaded", zap.String("database", dbName), zap.Int("tables", len(tables)))
	return nil
}

func (c *Catalog) Close() error {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}

func (c *Catalog) getDatabase(ctx context.Context, dbName string) (*catalog.Database, error) {
	db, ok, err := c.GetDatabaseByName(ctx, dbName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, catalog.ErrDatabaseNotFound.WithMessagef("catalog:%s, database:%s", c.Meta().Name, dbName)
	}
	return db, nil
}

func (c *Catalog) listRemoteTables(ctx context.Context, dbName string) ([]string, error) {
	client, err := c.passThroughClient()
	if err != nil {
		return nil, err
	}

	tables, err := client.ListAllTables(ctx, dbName)
	if err != nil {
		return nil, catalog.ErrRemoteQuery.WithCausef(err, "list tables, catalog:%s, database:%s", c.Meta().Name, dbName)
	}
	return tables, nil
}

func (c *Catalog) passThroughClient() (MetastoreClient, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}
	if c.deps.Limiter != nil && !c.deps.Limiter.Allow() {
		return nil, catalog.ErrTooManyRequests.WithMessagef("catalog:%s", c.Meta().Name)
	}
	return client, nil
}
