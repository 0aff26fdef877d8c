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

package sweep

import "errors"

var (
	// ErrSweepInProgress is returned when a sweep is requested while another is running.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrIndexRequired is returned when a sweeper is created without a vector index.
	ErrIndexRequired = errors.New("vector index is required")

	// ErrLevelRepositoryRequired is returned when a sweeper is created without a level repository.
	ErrLevelRepositoryRequired = errors.New("level repository is required")

	// ErrClassifierRequired is returned when a sweeper is created without a classifier.
	ErrClassifierRequired = errors.New("classifier is required")

	// ErrPageFailed indicates at least one page was rolled back.
	ErrPageFailed = errors.New("sweep page failed")

	// ErrCursorStalled indicates the index returned the cursor it was given.
	ErrCursorStalled = errors.New("scroll cursor did not advance")
)
