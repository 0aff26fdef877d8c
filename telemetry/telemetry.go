// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry records classified points for offline inspection.
//
// Sinks are best effort. Record never blocks on I/O and never reports an
// error, so an unavailable backend cannot fail classification or feedback.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/leveler/core"
)

// Point types.
const (
	TypePost     = "post"
	TypeCentroid = "centroid"
)

// Point is one labeled vector.
type Point struct {
	ID     core.ID     `json:"id"`
	Name   string      `json:"name"`
	Type   string      `json:"type"`
	Level  core.Level  `json:"level"`
	Vector core.Vector `json:"vector,omitempty"`
	Time   time.Time   `json:"time"`
}

// CentroidPoint returns the point logged for the centroid of level.
func CentroidPoint(level core.Level, vector core.Vector, name string) Point {
	if name == "" {
		name = fmt.Sprintf("centroid_lv%d", level)
	}
	return Point{
		ID:     CentroidID(level),
		Name:   name,
		Type:   TypeCentroid,
		Level:  level,
		Vector: vector,
		Time:   time.Now().UTC(),
	}
}

// CentroidIDBase offsets centroid point IDs away from record IDs.
const CentroidIDBase = 100_000_000

// CentroidID returns the point ID used for the centroid of level.
func CentroidID(level core.Level) core.ID {
	return core.ID(CentroidIDBase + int64(level))
}

// Sink accepts points.
type Sink interface {
	Record(ctx context.Context, p Point)
	Close(ctx context.Context) error
}

// Noop discards every point.
type Noop struct{}

func (Noop) Record(context.Context, Point) {}

func (Noop) Close(context.Context) error { return nil }

// LogSink writes points to a logger at debug level, without their vectors.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger, or slog.Default() if nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "telemetry")}
}

func (s *LogSink) Record(ctx context.Context, p Point) {
	s.logger.DebugContext(ctx, "point",
		"id", p.ID,
		"name", p.Name,
		"type", p.Type,
		"level", p.Level,
		"dimension", len(p.Vector))
}

func (s *LogSink) Close(context.Context) error { return nil }
