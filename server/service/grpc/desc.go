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

package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	CatalogServiceName = "extcatalog.CatalogService"

	initCatalogMethod     = "/" + CatalogServiceName + "/InitCatalog"
	workerHeartbeatMethod = "/" + CatalogServiceName + "/WorkerHeartbeat"
)

// CatalogServiceServer is served by every node. InitCatalog is only accepted by the leader.
type CatalogServiceServer interface {
	// InitCatalog initializes the catalog of the id and returns the revision of the edit log the initialization is
	// visible at, 0 if the catalog is still uninitialized.
	InitCatalog(ctx context.Context, req *wrapperspb.UInt64Value) (*wrapperspb.Int64Value, error)
	// WorkerHeartbeat reports that the worker of the endpoint is alive.
	WorkerHeartbeat(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
}

type CatalogServiceClient interface {
	InitCatalog(ctx context.Context, req *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	WorkerHeartbeat(ctx context.Context, req *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type catalogServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogServiceClient(cc grpc.ClientConnInterface) CatalogServiceClient {
	return &catalogServiceClient{cc: cc}
}

func (c *catalogServiceClient) InitCatalog(ctx context.Context, req *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, initCatalogMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *catalogServiceClient) WorkerHeartbeat(ctx context.Context, req *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, workerHeartbeatMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterCatalogServiceServer(s grpc.ServiceRegistrar, srv CatalogServiceServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

func initCatalogHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServiceServer).InitCatalog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: initCatalogMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServiceServer).InitCatalog(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func workerHeartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServiceServer).WorkerHeartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: workerHeartbeatMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CatalogServiceServer).WorkerHeartbeat(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "InitCatalog",
			Handler:    initCatalogHandler,
		},
		{
			MethodName: "WorkerHeartbeat",
			Handler:    workerHeartbeatHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "extcatalog/catalog_service",
}
