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
	"sort"
	"sync"
	"sync/atomic"
)

type (
	ID         uint64
	DatabaseID uint64
	Kind       string
)

const (
	KindHMS Kind = "hms"
)

// Meta is the registration of a catalog. It never changes after the catalog is registered.
type Meta struct {
	ID         ID
	Name       string
	Kind       Kind
	Properties map[string]string
}

func NewMeta(id ID, name string, kind Kind, properties map[string]string) Meta {
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	return Meta{
		ID:         id,
		Name:       name,
		Kind:       kind,
		Properties: props,
	}
}

// Property returns the value of the property, or the defaultVal if it is not set.
func (m Meta) Property(key, defaultVal string) string {
	if v, ok := m.Properties[key]; ok && v != "" {
		return v
	}
	return defaultVal
}

type DatabaseEntry struct {
	ID   DatabaseID `json:"id"`
	Name string     `json:"name"`
}

// Database is a database of an external catalog. The id and name never change, while the table names are cached
// lazily and dropped on every catalog refresh.
type Database struct {
	ID   DatabaseID
	Name string

	initialized atomic.Bool
	lock        sync.RWMutex
	tables      []string
}

func NewDatabase(id DatabaseID, name string) *Database {
	return &Database{
		ID:          id,
		Name:        name,
		initialized: atomic.Bool{},
		lock:        sync.RWMutex{},
		tables:      nil,
	}
}

func (d *Database) IsInitialized() bool {
	return d.initialized.Load()
}

// SetUninitialized drops the cached table names so that they are fetched again.
func (d *Database) SetUninitialized() {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.initialized.Store(false)
	d.tables = nil
}

// InstallTables caches the table names and marks the database initialized.
func (d *Database) InstallTables(tables []string) {
	sorted := make([]string, len(tables))
	copy(sorted, tables)
	sort.Strings(sorted)

	d.lock.Lock()
	defer d.lock.Unlock()

	d.tables = sorted
	d.initialized.Store(true)
}

// TableNames returns the cached table names, and false if the database is not initialized.
func (d *Database) TableNames() ([]string, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if !d.initialized.Load() {
		return nil, false
	}
	tables := make([]string, len(d.tables))
	copy(tables, d.tables)
	return tables, true
}

func (d *Database) Entry() DatabaseEntry {
	return DatabaseEntry{ID: d.ID, Name: d.Name}
}
