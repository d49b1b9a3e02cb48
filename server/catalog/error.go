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

import "github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"

var (
	ErrCatalogNotFound  = coderr.NewCodeErrorDef(coderr.NotFound, "catalog not found")
	ErrDatabaseNotFound = coderr.NewCodeErrorDef(coderr.NotFound, "database not found")
	ErrUnknownKind      = coderr.NewCodeErrorDef(coderr.InvalidParams, "unknown catalog kind")
	ErrDuplicateCatalog = coderr.NewCodeErrorDef(coderr.InvalidParams, "duplicate catalog")
	ErrNotLeader        = coderr.NewCodeErrorDef(coderr.NotLeader, "not leader")
	ErrStaleTerm        = coderr.NewCodeErrorDef(coderr.StaleTerm, "event of a stale term")
	ErrEncodeEvent      = coderr.NewCodeErrorDef(coderr.Internal, "encode event")
	ErrDecodeEvent      = coderr.NewCodeErrorDef(coderr.Internal, "decode event")
	ErrAppendEvent      = coderr.NewCodeErrorDef(coderr.Internal, "append event")
	ErrCatchUp          = coderr.NewCodeErrorDef(coderr.Internal, "catch up edit log")
	ErrConnectionSetup  = coderr.NewCodeErrorDef(coderr.ConnectionSetup, "set up connection to external catalog")
	ErrRefreshTransient = coderr.NewCodeErrorDef(coderr.RefreshTransient, "refresh external catalog")
	ErrRemoteQuery      = coderr.NewCodeErrorDef(coderr.RemoteQuery, "query external catalog")
	ErrTooManyRequests  = coderr.NewCodeErrorDef(coderr.TooManyRequests, "too many requests to external catalog")
)
