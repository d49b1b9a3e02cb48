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
	"time"

	"github.com/apache/incubator-horaedb-extcatalog/pkg/coderr"
	"github.com/apache/incubator-horaedb-extcatalog/pkg/log"
	"github.com/apache/incubator-horaedb-extcatalog/server/catalog"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Handler interface {
	IsLeader() bool
	InitCatalog(ctx context.Context, id catalog.ID) (int64, error)
	WorkerHeartbeat(endpoint string)
}

type Service struct {
	opTimeout time.Duration
	h         Handler
}

func NewService(opTimeout time.Duration, h Handler) *Service {
	return &Service{
		opTimeout: opTimeout,
		h:         h,
	}
}

// InitCatalog implements gRPC CatalogServiceServer.
func (s *Service) InitCatalog(ctx context.Context, req *wrapperspb.UInt64Value) (*wrapperspb.Int64Value, error) {
	if !s.h.IsLeader() {
		return nil, status.Errorf(codes.FailedPrecondition, "not leader, catalog id:%d", req.GetValue())
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	rev, err := s.h.InitCatalog(ctx, catalog.ID(req.GetValue()))
	if err != nil {
		log.Error("fail to init catalog", zap.Uint64("catalog-id", req.GetValue()), zap.String("err", coderr.FormatErrorWithStack(err)))
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(rev), nil
}

// WorkerHeartbeat implements gRPC CatalogServiceServer.
func (s *Service) WorkerHeartbeat(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "worker endpoint is empty")
	}
	s.h.WorkerHeartbeat(req.GetValue())
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	code, ok := coderr.GetCauseCode(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}

	switch code {
	case coderr.NotFound:
		return status.Error(codes.NotFound, err.Error())
	case coderr.InvalidParams:
		return status.Error(codes.InvalidArgument, err.Error())
	case coderr.NotLeader, coderr.StaleTerm:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
