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
)

// State is one generation of the databases of a catalog. Both mappings are built together and never modified after
// the State is published, so a reader holding a State always sees every name mapped to exactly one id and back.
type State struct {
	nameToID map[string]DatabaseID
	idToDB   map[DatabaseID]*Database
}

func EmptyState() *State {
	return &State{
		nameToID: map[string]DatabaseID{},
		idToDB:   map[DatabaseID]*Database{},
	}
}

func newStateWithCapacity(n int) *State {
	return &State{
		nameToID: make(map[string]DatabaseID, n),
		idToDB:   make(map[DatabaseID]*Database, n),
	}
}

func (s *State) add(db *Database) {
	s.nameToID[db.Name] = db.ID
	s.idToDB[db.ID] = db
}

func (s *State) Len() int {
	return len(s.idToDB)
}

func (s *State) GetByName(name string) (*Database, bool) {
	id, ok := s.nameToID[name]
	if !ok {
		return nil, false
	}
	return s.idToDB[id], true
}

func (s *State) GetByID(id DatabaseID) (*Database, bool) {
	db, ok := s.idToDB[id]
	return db, ok
}

// DatabaseNames returns the names in ascending order.
func (s *State) DatabaseNames() []string {
	names := make([]string, 0, len(s.nameToID))
	for name := range s.nameToID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatabaseIDs returns the ids in ascending order.
func (s *State) DatabaseIDs() []DatabaseID {
	ids := make([]DatabaseID, 0, len(s.idToDB))
	for id := range s.idToDB {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Databases returns the databases ordered by id.
func (s *State) Databases() []*Database {
	ids := s.DatabaseIDs()
	dbs := make([]*Database, 0, len(ids))
	for _, id := range ids {
		dbs = append(dbs, s.idToDB[id])
	}
	return dbs
}

// next builds the generation described by the InitEvent on top of s. Refreshed databases are the same objects as in
// s with their table cache dropped, and databases not mentioned by the event are left out. The ids refreshed by the
// event but unknown to s are returned.
func (s *State) next(ev *InitEvent) (*State, []DatabaseID) {
	next := newStateWithCapacity(len(ev.CreatedDBs) + len(ev.RefreshedDBs))
	var missing []DatabaseID
	for _, id := range ev.RefreshedDBs {
		db, ok := s.idToDB[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		db.SetUninitialized()
		next.add(db)
	}
	for _, entry := range ev.CreatedDBs {
		next.add(NewDatabase(entry.ID, entry.Name))
	}
	return next, missing
}
