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

package core

import (
	"fmt"
	"math"
)

// ValidateVector checks that v has exactly dim finite components.
// A dim of 0 skips the width check.
func ValidateVector(v Vector, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: vector is empty", ErrInvalidVector)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: %w: got %d, want %d", ErrInvalidVector, ErrDimensionMismatch, len(v), dim)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %w at index %d", ErrInvalidVector, ErrNonFiniteValue, i)
		}
	}
	return nil
}

func ValidateLevel(level Level) error {
	if level < 0 {
		return fmt.Errorf("%w: value %d", ErrInvalidLevel, level)
	}
	return nil
}

// ValidateCentroidSet checks every level and centroid of cs.
func ValidateCentroidSet(cs CentroidSet, dim int) error {
	if len(cs) == 0 {
		return ErrEmptyCentroidSet
	}
	if dim == 0 {
		dim = cs.Dimension()
	}
	for _, level := range cs.Levels() {
		if err := ValidateLevel(level); err != nil {
			return err
		}
		if err := ValidateVector(cs[level], dim); err != nil {
			return fmt.Errorf("centroid %d: %w", level, err)
		}
	}
	return nil
}

func ValidateInferenceJob(job *InferenceJob, dim int) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if job.JobID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyJobID)
	}
	switch job.Status {
	case JobStatusCompleted:
		if err := ValidateVector(job.Vector, dim); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJob, err)
		}
	case JobStatusFailed:
		// failed jobs carry no usable vector
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidJob, ErrInvalidJobStatus, job.Status)
	}
	return nil
}

func ValidateFeedbackJob(job *FeedbackJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if err := ValidateLevel(job.CorrectLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	return nil
}
