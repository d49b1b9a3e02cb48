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

package operation

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Catalog struct {
	ID              uint64            `json:"id"`
	Name            string            `json:"name"`
	Kind            string            `json:"kind"`
	Properties      map[string]string `json:"properties"`
	Initialized     bool              `json:"initialized"`
	AppliedRevision int64             `json:"appliedRevision"`
}

type Database struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Initialized bool   `json:"initialized"`
}

type TableExists struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Exists   bool   `json:"exists"`
}

func CatalogsList() error {
	var catalogs []Catalog
	if err := HTTPUtil(http.MethodGet, baseURL()+APICatalogs, nil, &catalogs); err != nil {
		return err
	}

	t := tableWriter(catalogsListHeader)
	for _, c := range catalogs {
		t.AppendRow(catalogRow(c))
	}
	render(t)
	return nil
}

// CatalogInit initializes the current catalog, and refreshes it from the metastore first if refresh is set.
func CatalogInit(refresh bool) error {
	url := catalogURL() + "/init"
	if refresh {
		url = catalogURL() + "/refresh"
	}
	var c Catalog
	if err := HTTPUtil(http.MethodPost, url, nil, &c); err != nil {
		return err
	}

	t := tableWriter(catalogsListHeader)
	t.AppendRow(catalogRow(c))
	render(t)
	return nil
}

func DatabasesList() error {
	var ids []uint64
	if err := HTTPUtil(http.MethodGet, catalogURL()+"/database-ids", nil, &ids); err != nil {
		return err
	}

	t := tableWriter(databasesListHeader)
	for _, id := range ids {
		var db Database
		if err := HTTPUtil(http.MethodGet, fmt.Sprintf("%s/database-ids/%d", catalogURL(), id), nil, &db); err != nil {
			return err
		}
		t.AppendRow(table.Row{db.ID, db.Name, db.Initialized})
	}
	render(t)
	return nil
}

func DatabaseLoad(dbName string) error {
	return HTTPUtil(http.MethodPost, fmt.Sprintf("%s/databases/%s/load", catalogURL(), dbName), nil, nil)
}

func TablesList(dbName string) error {
	var tables []string
	if err := HTTPUtil(http.MethodGet, fmt.Sprintf("%s/databases/%s/tables", catalogURL(), dbName), nil, &tables); err != nil {
		return err
	}

	t := tableWriter(tablesListHeader)
	for _, tbl := range tables {
		t.AppendRow(table.Row{dbName, tbl})
	}
	render(t)
	return nil
}

func TableExist(dbName, tableName string) (bool, error) {
	var res TableExists
	if err := HTTPUtil(http.MethodGet, fmt.Sprintf("%s/databases/%s/tables/%s", catalogURL(), dbName, tableName), nil, &res); err != nil {
		return false, err
	}
	return res.Exists, nil
}

func catalogRow(c Catalog) table.Row {
	props := make([]string, 0, len(c.Properties))
	for k, v := range c.Properties {
		props = append(props, k+"="+v)
	}
	sort.Strings(props)
	return table.Row{c.ID, c.Name, c.Kind, c.Initialized, c.AppliedRevision, strings.Join(props, ",")}
}
