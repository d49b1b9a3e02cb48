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

	"github.com/apache/incubator-horaedb-extcatalog/server/id"
)

// Catalog is the read API of an external catalog. Every operation except TableExists initializes the catalog on its
// first use.
type Catalog interface {
	Meta() Meta
	Replica() *Replica

	// EnsureInitialized makes the local State reflect at least the latest initialization known to this node. It is
	// safe to be called concurrently and repeatedly.
	EnsureInitialized(ctx context.Context) error
	// Invalidate forces the next call to refresh the catalog from its external source.
	Invalidate(ctx context.Context) error

	ListDatabaseNames(ctx context.Context) ([]string, error)
	// ListTableNames serves the cached table names of an initialized database, and reads through to the external
	// source otherwise.
	ListTableNames(ctx context.Context, dbName string) ([]string, error)
	// TableExists always asks the external source.
	TableExists(ctx context.Context, dbName, tableName string) (bool, error)
	GetDatabaseByName(ctx context.Context, name string) (*Database, bool, error)
	GetDatabaseByID(ctx context.Context, id DatabaseID) (*Database, bool, error)
	GetDatabaseIDs(ctx context.Context) ([]DatabaseID, error)
	// LoadDatabase caches the table names of the database on this node.
	LoadDatabase(ctx context.Context, dbName string) error

	Close() error
}

// Leadership tells whether this node is the leader, and the term of its leadership.
type Leadership interface {
	IsLeader() bool
	Term() int64
}

type ApplyWaiter interface {
	WaitApplied(ctx context.Context, rev int64) error
}

// Forwarder asks the leader to initialize the catalog and waits until the local replica catches up with it.
type Forwarder interface {
	Forward(ctx context.Context, catalogID ID, waiter ApplyWaiter) error
}

// EventLog is the replicated edit log of the catalogs.
type EventLog interface {
	// Append appends the event if term is still the term of the leadership, and returns the revision of the event.
	Append(ctx context.Context, ev *Event, term int64) (int64, error)
	// LastRevision returns the revision of the latest event of the catalog, 0 if none.
	LastRevision(ctx context.Context, catalogID ID) (int64, error)
}

// CallLimiter bounds the calls passed through to the external source.
type CallLimiter interface {
	Allow() bool
}

type Deps struct {
	Leadership  Leadership
	Forwarder   Forwarder
	EventLog    EventLog
	IDAllocator id.Allocator
	Limiter     CallLimiter
}

// Factory creates the Catalog of one kind over the replica.
type Factory func(replica *Replica, deps Deps) (Catalog, error)
