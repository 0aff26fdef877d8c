package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DefaultDimension is the embedding width produced by the inference provider.
const DefaultDimension = 1152

type ID uint64

func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// RecordIDFromJobID maps an inference job identifier onto a record ID.
// Numeric identifiers (post IDs) map to themselves so inference results and
// feedback for the same post land on the same record. Anything else is hashed.
func RecordIDFromJobID(jobID string) ID {
	trimmed := strings.TrimSpace(jobID)
	if n, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		return ID(n)
	}
	return IDFromContent(trimmed)
}

// Level is a discrete quality tier assigned to an embedding.
type Level int

func (l Level) String() string {
	return strconv.Itoa(int(l))
}

// Vector is a single embedding.
type Vector []float32

// Clone returns a copy that shares no memory with v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	return slices.Clone(v)
}

// CentroidSet maps each level to its reference unit vector.
// The key set is the full set of valid levels.
type CentroidSet map[Level]Vector

// Levels returns the levels in ascending order.
func (cs CentroidSet) Levels() []Level {
	levels := make([]Level, 0, len(cs))
	for level := range cs {
		levels = append(levels, level)
	}
	slices.Sort(levels)
	return levels
}

// Clone returns a deep copy. Mutating the result never affects cs.
func (cs CentroidSet) Clone() CentroidSet {
	if cs == nil {
		return nil
	}
	out := make(CentroidSet, len(cs))
	for level, vec := range cs {
		out[level] = vec.Clone()
	}
	return out
}

// Dimension returns the width of the centroids, or 0 for an empty set.
func (cs CentroidSet) Dimension() int {
	for _, vec := range cs {
		return len(vec)
	}
	return 0
}

// Has reports whether level is part of the set.
func (cs CentroidSet) Has(level Level) bool {
	_, ok := cs[level]
	return ok
}

// Record is a classified embedding as held by the vector index.
type Record struct {
	Id      ID
	Vector  Vector
	Level   Level
	Labeled bool   // Level was present in the index payload
	Type    string // point type from the index payload, empty if unset
}

// Point is the stored value of an embedded vector index entry.
// The record ID is carried by the key.
type Point struct {
	Vector  Vector
	Level   Level
	Labeled bool
	Type    string
	JobID   string
}

// JobStatus is the completion status reported by the inference provider.
type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// InferenceJob is a completed (or failed) embedding extraction.
type InferenceJob struct {
	JobID  string    `json:"job_id"`
	Vector Vector    `json:"unified_vector"`
	Status JobStatus `json:"status"`
}

// RecordID returns the record the job's result belongs to.
func (j *InferenceJob) RecordID() ID {
	return RecordIDFromJobID(j.JobID)
}

// FeedbackJob is a reviewer's correction of a record's level.
type FeedbackJob struct {
	RecordID     ID
	CorrectLevel Level
}

// Classification is the outcome of labeling one vector.
type Classification struct {
	RecordID  ID
	Level     Level
	Degraded  bool // no centroid matched; Level is the configured default
	DecidedAt time.Time
}
