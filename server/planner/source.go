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

package planner

import "strconv"

const (
	NumbersKind = "numbers"

	ParamTotal       = "total"
	ParamParallelism = "parallelism"
)

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ScanRange describes the slice of the generated rows one task produces.
type ScanRange interface {
	Kind() string
}

// GeneratorSource is a kind of virtual table whose rows are synthesized by the workers.
type GeneratorSource interface {
	Name() string
	Columns() []Column
	// Parse validates the parameters and returns the generator for one request.
	Parse(params map[string]string) (Generator, error)
}

type Generator interface {
	// DefaultParallelism is used when the request does not declare one.
	DefaultParallelism() int
	// Ranges splits the work into exactly parallelism ranges which jointly reconstruct the whole request.
	Ranges(parallelism int) []ScanRange
}

// NumbersRange asks a worker to emit the numbers in [Start, End) out of Total.
type NumbersRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Total uint64 `json:"total"`
}

func (NumbersRange) Kind() string { return NumbersKind }

// NumbersSource generates a single BIGINT column holding 0..total-1.
type NumbersSource struct{}

func (NumbersSource) Name() string { return NumbersKind }

func (NumbersSource) Columns() []Column {
	return []Column{{Name: "number", Type: "BIGINT", Nullable: false}}
}

func (NumbersSource) Parse(params map[string]string) (Generator, error) {
	rawTotal, ok := params[ParamTotal]
	if !ok {
		return nil, ErrInvalidRequest.WithMessagef("numbers requires param %s", ParamTotal)
	}
	total, err := strconv.ParseUint(rawTotal, 10, 64)
	if err != nil {
		return nil, ErrInvalidRequest.WithCausef(err, "parse %s:%s", ParamTotal, rawTotal)
	}

	parallelism := 1
	if raw, ok := params[ParamParallelism]; ok {
		parallelism, err = strconv.Atoi(raw)
		if err != nil {
			return nil, ErrInvalidRequest.WithCausef(err, "parse %s:%s", ParamParallelism, raw)
		}
		if parallelism < 1 {
			return nil, ErrInvalidRequest.WithMessagef("%s must be positive, got:%d", ParamParallelism, parallelism)
		}
	}

	return numbersGenerator{total: total, parallelism: parallelism}, nil
}

type numbersGenerator struct {
	total       uint64
	parallelism int
}

func (g numbersGenerator) DefaultParallelism() int {
	return g.parallelism
}

// Ranges partitions [0, total) into contiguous ranges whose sizes differ by at most one.
func (g numbersGenerator) Ranges(parallelism int) []ScanRange {
	p := uint64(parallelism)
	base, rem := g.total/p, g.total%p

	ranges := make([]ScanRange, 0, parallelism)
	var start uint64
	for i := uint64(0); i < p; i++ {
		size := base
		if i < rem {
			size++
		}
		ranges = append(ranges, NumbersRange{Start: start, End: start + size, Total: g.total})
		start += size
	}
	return ranges
}
