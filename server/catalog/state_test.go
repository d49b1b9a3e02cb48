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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type seqAllocator struct {
	lock sync.Mutex
	next uint64
}

func (a *seqAllocator) Alloc(_ context.Context) (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	ret := a.next
	a.next++
	return ret, nil
}

func applyNames(t *testing.T, r *Replica, rev int64, alloc *seqAllocator, names ...string) {
	re := require.New(t)
	init, err := BuildInitEvent(context.Background(), r.Meta(), r.State(), names, alloc)
	re.NoError(err)
	re.NoError(r.Apply(rev, NewInitEvent(1, init)))
}

func requireConsistent(t *testing.T, s *State) {
	re := require.New(t)
	re.Len(s.nameToID, len(s.idToDB))
	for name, id := range s.nameToID {
		db, ok := s.idToDB[id]
		re.True(ok)
		re.Equal(name, db.Name)
		re.Equal(id, db.ID)
	}
}

func TestRefreshKeepsIDs(t *testing.T) {
	re := require.New(t)
	r := NewReplica(NewMeta(1, "c1", KindHMS, nil))
	alloc := &seqAllocator{next: 100}

	applyNames(t, r, 1, alloc, "sales", "hr")
	re.True(r.IsInitialized())
	state := r.State()
	requireConsistent(t, state)
	re.Equal([]string{"hr", "sales"}, state.DatabaseNames())
	sales, ok := state.GetByName("sales")
	re.True(ok)
	re.Equal(DatabaseID(100), sales.ID)
	hr, ok := state.GetByName("hr")
	re.True(ok)
	re.Equal(DatabaseID(101), hr.ID)

	sales.InstallTables([]string{"orders"})
	re.True(sales.IsInitialized())

	applyNames(t, r, 2, alloc, "sales", "finance")
	next := r.State()
	requireConsistent(t, next)
	re.Equal([]string{"finance", "sales"}, next.DatabaseNames())
	re.Equal([]DatabaseID{100, 102}, next.DatabaseIDs())

	sales2, ok := next.GetByName("sales")
	re.True(ok)
	re.Same(sales, sales2)
	re.False(sales2.IsInitialized())
	_, cached := sales2.TableNames()
	re.False(cached)

	_, ok = next.GetByName("hr")
	re.False(ok)
	_, ok = next.GetByID(101)
	re.False(ok)

	// The previous generation is untouched.
	re.Equal([]string{"hr", "sales"}, state.DatabaseNames())
}

func TestConcurrentReadersSeeOneGeneration(t *testing.T) {
	re := require.New(t)
	r := NewReplica(NewMeta(1, "c1", KindHMS, nil))
	alloc := &seqAllocator{next: 100}
	stable := []string{"sales", "hr", "finance"}
	applyNames(t, r, 1, alloc, stable...)

	var (
		stop       atomic.Bool
		wg         sync.WaitGroup
		violations = make(chan string, 16)
	)
	report := func(format string, args ...any) {
		select {
		case violations <- fmt.Sprintf(format, args...):
		default:
		}
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen := make(map[string]DatabaseID, len(stable))
			for !stop.Load() {
				s := r.State()
				names := s.DatabaseNames()
				ids := s.DatabaseIDs()
				if len(names) != len(ids) {
					report("generation has %d names and %d ids", len(names), len(ids))
				}
				for _, name := range names {
					db, ok := s.GetByName(name)
					if !ok {
						report("listed name %s is absent", name)
						continue
					}
					byID, ok := s.GetByID(db.ID)
					if !ok || byID.Name != name {
						report("name %s maps to id %d which does not map back", name, db.ID)
					}
					if prev, ok := seen[name]; ok && prev != db.ID {
						report("name %s changes id from %d to %d", name, prev, db.ID)
					}
					seen[name] = db.ID
				}
			}
		}()
	}

	for rev := int64(2); rev < 200; rev++ {
		names := append([]string{fmt.Sprintf("tmp_%d", rev)}, stable...)
		applyNames(t, r, rev, alloc, names...)
	}
	stop.Store(true)
	wg.Wait()
	close(violations)

	for v := range violations {
		re.Fail(v)
	}
	requireConsistent(t, r.State())
	re.Len(r.State().DatabaseNames(), len(stable)+1)
}

func TestBuildInitEventDeduplicates(t *testing.T) {
	re := require.New(t)
	alloc := &seqAllocator{next: 1}
	ev, err := BuildInitEvent(context.Background(), NewMeta(1, "c1", KindHMS, nil), EmptyState(), []string{"a", "b", "a"}, alloc)
	re.NoError(err)
	re.Len(ev.CreatedDBs, 2)
	re.Empty(ev.RefreshedDBs)
	re.Equal(KindHMS, ev.Kind)
}

func TestMetaCopiesProperties(t *testing.T) {
	re := require.New(t)
	props := map[string]string{"hive.metastore.uris": "thrift://127.0.0.1:9083"}
	meta := NewMeta(1, "c1", KindHMS, props)
	props["hive.metastore.uris"] = "changed"
	re.Equal("thrift://127.0.0.1:9083", meta.Property("hive.metastore.uris", ""))
	re.Equal("NOSASL", meta.Property("hive.metastore.auth", "NOSASL"))
}
