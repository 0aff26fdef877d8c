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

package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/poiesic/leveler/core"
)

const idSize = 8

// MarshalID serializes an ID to 8 big-endian bytes for use in ordered keys.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, idSize)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) < idSize {
		return 0, fmt.Errorf("%w: id needs %d bytes, got %d", ErrTruncatedData, idSize, len(data))
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

// MarshalLevel encodes a stored level value.
func MarshalLevel(level core.Level) []byte {
	buf := make([]byte, core.LevelMUS.Size(level))
	core.LevelMUS.Marshal(level, buf)
	return buf
}

// UnmarshalLevel decodes a level produced by MarshalLevel.
func UnmarshalLevel(data []byte) (core.Level, error) {
	level, _, err := core.LevelMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: level: %w", ErrTruncatedData, err)
	}
	return level, nil
}

// MarshalCentroidSet encodes a centroid set as a JSON object keyed by the
// decimal level, the format shared with the centroid key in redis.
func MarshalCentroidSet(cs core.CentroidSet) ([]byte, error) {
	data, err := json.Marshal(map[core.Level]core.Vector(cs))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalCentroidSet decodes a centroid set produced by MarshalCentroidSet.
func UnmarshalCentroidSet(data []byte) (core.CentroidSet, error) {
	var raw map[string]core.Vector
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	cs := make(core.CentroidSet, len(raw))
	for key, vec := range raw {
		level, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%w: level key %q: %w", ErrSerializationFailed, key, err)
		}
		cs[core.Level(level)] = vec
	}
	return cs, nil
}

// NewPoint builds the stored form of an index entry.
func NewPoint(vector core.Vector, payload map[string]any) *core.Point {
	point := &core.Point{Vector: vector}
	ApplyPayload(point, payload)
	return point
}

// ApplyPayload merges index payload fields into point.
// Only the level, type and job_id fields are kept.
func ApplyPayload(point *core.Point, fields map[string]any) {
	if _, ok := fields[PayloadLevel]; ok {
		point.Level, point.Labeled = LevelFromPayload(fields)
	}
	if _, ok := fields[PayloadType]; ok {
		point.Type = TypeFromPayload(fields)
	}
	if jobID, ok := fields[PayloadJobID].(string); ok {
		point.JobID = jobID
	}
}

// MarshalPoint serializes an index point.
func MarshalPoint(point *core.Point) []byte {
	buf := make([]byte, core.PointMUS.Size(*point))
	core.PointMUS.Marshal(*point, buf)
	return buf
}

// UnmarshalPoint deserializes an index point.
func UnmarshalPoint(data []byte) (*core.Point, error) {
	point, _, err := core.PointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: point: %w", ErrTruncatedData, err)
	}
	return &point, nil
}

// TypeFromPayload returns the point type stored in payload, or "".
func TypeFromPayload(payload map[string]any) string {
	s, _ := payload[PayloadType].(string)
	return s
}

// LevelFromPayload extracts the level field of an index payload.
// The boolean is false if the field is absent or not an integer.
func LevelFromPayload(payload map[string]any) (core.Level, bool) {
	raw, ok := payload[PayloadLevel]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return core.Level(v), true
	case int64:
		return core.Level(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return core.Level(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return core.Level(n), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return core.Level(n), true
	default:
		return 0, false
	}
}

// DecodeInferenceJob parses an inference completion message.
// Only the JSON shape is checked here; callers validate the contents.
func DecodeInferenceJob(data []byte) (*core.InferenceJob, error) {
	var job core.InferenceJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: inference job: %w", ErrSerializationFailed, err)
	}
	return &job, nil
}

// EncodeInferenceJob renders an inference completion message.
func EncodeInferenceJob(job *core.InferenceJob) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

type feedbackMessage struct {
	PostID       json.RawMessage `json:"post_id,omitempty"`
	JobID        json.RawMessage `json:"job_id,omitempty"`
	Level        *int            `json:"level,omitempty"`
	CorrectLevel *int            `json:"correct_level,omitempty"`
}

// DecodeFeedbackJob parses a feedback message. The record is named by
// post_id or job_id, the corrected level by correct_level or level.
func DecodeFeedbackJob(data []byte) (*core.FeedbackJob, error) {
	var msg feedbackMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: feedback job: %w", ErrSerializationFailed, err)
	}

	rawID := msg.PostID
	if isAbsent(rawID) {
		rawID = msg.JobID
	}
	if isAbsent(rawID) {
		return nil, fmt.Errorf("%w: feedback job: missing post_id", ErrSerializationFailed)
	}
	id, err := decodeRecordID(rawID)
	if err != nil {
		return nil, err
	}

	level := msg.CorrectLevel
	if level == nil {
		level = msg.Level
	}
	if level == nil {
		return nil, fmt.Errorf("%w: feedback job: missing level", ErrSerializationFailed)
	}

	return &core.FeedbackJob{RecordID: id, CorrectLevel: core.Level(*level)}, nil
}

// EncodeFeedbackJob renders a feedback message.
func EncodeFeedbackJob(job *core.FeedbackJob) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"post_id":       uint64(job.RecordID),
		"correct_level": int(job.CorrectLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// isAbsent reports whether a raw field was omitted or explicitly null.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// decodeRecordID accepts a JSON integer or a string identifier.
func decodeRecordID(raw json.RawMessage) (core.ID, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return core.ID(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return core.RecordIDFromJobID(s), nil
	}
	return 0, fmt.Errorf("%w: feedback job: invalid record id %s", ErrSerializationFailed, raw)
}
