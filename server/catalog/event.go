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
	"encoding/json"

	"github.com/apache/incubator-horaedb-extcatalog/server/id"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type EventType string

const (
	EventTypeInit       EventType = "init"
	EventTypeInvalidate EventType = "invalidate"
)

// Event is the record appended to the edit log. Every node applying the same sequence of events of a catalog reaches
// the same State.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	CatalogID ID        `json:"catalogId"`
	// Term is the leadership term of the leader that appended the event.
	Term int64      `json:"term"`
	Init *InitEvent `json:"init,omitempty"`
}

// InitEvent is the outcome of one refresh of a catalog from its external source.
type InitEvent struct {
	CatalogID    ID              `json:"catalogId"`
	Kind         Kind            `json:"kind"`
	CreatedDBs   []DatabaseEntry `json:"createdDbs"`
	RefreshedDBs []DatabaseID    `json:"refreshedDbs"`
}

func NewInitEvent(term int64, init *InitEvent) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTypeInit,
		CatalogID: init.CatalogID,
		Term:      term,
		Init:      init,
	}
}

func NewInvalidateEvent(term int64, catalogID ID) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventTypeInvalidate,
		CatalogID: catalogID,
		Term:      term,
		Init:      nil,
	}
}

func EncodeEvent(ev *Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, ErrEncodeEvent.WithCausef(err, "event:%s", ev.ID)
	}
	return data, nil
}

func DecodeEvent(data []byte) (*Event, error) {
	ev := &Event{}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, ErrDecodeEvent.WithCause(err)
	}
	switch ev.Type {
	case EventTypeInit:
		if ev.Init == nil || ev.Init.CatalogID != ev.CatalogID {
			return nil, ErrDecodeEvent.WithMessagef("invalid init event, id:%s", ev.ID)
		}
	case EventTypeInvalidate:
	default:
		return nil, ErrDecodeEvent.WithMessagef("unknown event type:%s, id:%s", ev.Type, ev.ID)
	}
	return ev, nil
}

// BuildInitEvent describes the generation following prior given the database names reported by the external source:
// known names keep their ids, new names get ids from the allocator and names no longer reported are dropped.
func BuildInitEvent(ctx context.Context, meta Meta, prior *State, names []string, alloc id.Allocator) (*InitEvent, error) {
	ev := &InitEvent{
		CatalogID:    meta.ID,
		Kind:         meta.Kind,
		CreatedDBs:   []DatabaseEntry{},
		RefreshedDBs: []DatabaseID{},
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		if db, ok := prior.GetByName(name); ok {
			ev.RefreshedDBs = append(ev.RefreshedDBs, db.ID)
			continue
		}

		newID, err := alloc.Alloc(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "alloc database id, catalog:%s, database:%s", meta.Name, name)
		}
		ev.CreatedDBs = append(ev.CreatedDBs, DatabaseEntry{ID: DatabaseID(newID), Name: name})
	}

	return ev, nil
}
