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

import "errors"

var (
	// ErrInvalidVector indicates a vector failed validation.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrDimensionMismatch indicates a vector does not have the expected width.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNonFiniteValue indicates a vector component is NaN or infinite.
	ErrNonFiniteValue = errors.New("vector contains non-finite value")

	// ErrInvalidLevel indicates a negative level.
	ErrInvalidLevel = errors.New("invalid level")

	// ErrInvalidJob indicates a queue job failed validation.
	ErrInvalidJob = errors.New("invalid job")

	// ErrEmptyJobID indicates an inference job without an identifier.
	ErrEmptyJobID = errors.New("job id cannot be empty")

	// ErrInvalidJobStatus indicates an unknown inference job status.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrEmptyCentroidSet indicates a centroid set without any levels.
	ErrEmptyCentroidSet = errors.New("centroid set is empty")
)
