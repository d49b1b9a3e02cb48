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
	"net/url"
	"strconv"
	"strings"

	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"github.com/beltran/gohive"
	"github.com/beltran/gohive/hive_metastore"
	"github.com/pkg/errors"
)

const (
	PropMetastoreURIs = "hive.metastore.uris"
	PropMetastoreAuth = "hive.metastore.auth"

	defaultMetastorePort = 9083
)

// MetastoreClient is the remote calls made to a Hive Metastore.
type MetastoreClient interface {
	ListAllDatabases(ctx context.Context) ([]string, error)
	ListAllTables(ctx context.Context, dbName string) ([]string, error)
	TableExists(ctx context.Context, dbName, tableName string) (bool, error)
	Close()
}

// ClientFactory connects to the metastore described by the properties of the catalog.
type ClientFactory func(meta catalog.Meta) (MetastoreClient, error)

// GoHiveClient talks to the metastore over thrift.
type GoHiveClient struct {
	conn *gohive.HiveMetastoreClient
}

// NewGoHiveClientFactory returns a ClientFactory using defaultAuth for the catalogs without hive.metastore.auth.
func NewGoHiveClientFactory(defaultAuth string) ClientFactory {
	return func(meta catalog.Meta) (MetastoreClient, error) {
		host, port, err := parseMetastoreURIs(meta.Property(PropMetastoreURIs, ""))
		if err != nil {
			return nil, err
		}

		auth := meta.Property(PropMetastoreAuth, defaultAuth)
		conn, err := gohive.ConnectToMetastore(host, port, auth, gohive.NewMetastoreConnectConfiguration())
		if err != nil {
			return nil, errors.WithMessagef(err, "connect to metastore, host:%s, port:%d", host, port)
		}
		return &GoHiveClient{conn: conn}, nil
	}
}

func (c *GoHiveClient) ListAllDatabases(ctx context.Context) ([]string, error) {
	return c.conn.Client.GetAllDatabases(ctx)
}

func (c *GoHiveClient) ListAllTables(ctx context.Context, dbName string) ([]string, error) {
	return c.conn.Client.GetAllTables(ctx, dbName)
}

func (c *GoHiveClient) TableExists(ctx context.Context, dbName, tableName string) (bool, error) {
	_, err := c.conn.Client.GetTable(ctx, dbName, tableName)
	if err == nil {
		return true, nil
	}

	var noSuchObject *hive_metastore.NoSuchObjectException
	if errors.As(err, &noSuchObject) {
		return false, nil
	}
	return false, err
}

func (c *GoHiveClient) Close() {
	c.conn.Close()
}

// parseMetastoreURIs picks the first uri of the comma separated list, e.g. thrift://host1:9083,thrift://host2:9083.
func parseMetastoreURIs(uris string) (string, int, error) {
	first := strings.TrimSpace(strings.Split(uris, ",")[0])
	if first == "" {
		return "", 0, ErrInvalidMetastoreURI.WithMessagef("%s is not set", PropMetastoreURIs)
	}

	u, err := url.Parse(first)
	if err != nil {
		return "", 0, ErrInvalidMetastoreURI.WithCausef(err, "uri:%s", first)
	}
	if u.Scheme != "thrift" || u.Hostname() == "" {
		return "", 0, ErrInvalidMetastoreURI.WithMessagef("uri:%s", first)
	}

	if u.Port() == "" {
		return u.Hostname(), defaultMetastorePort, nil
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, ErrInvalidMetastoreURI.WithCausef(err, "uri:%s", first)
	}
	return u.Hostname(), port, nil
}
