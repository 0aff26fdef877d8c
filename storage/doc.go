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

// Package storage defines the collaborator interfaces the leveling engine
// depends on, together with the byte and wire encodings they share.
//
// # Collaborators
//
//   - CentroidStore: the single key holding the complete centroid set
//   - JobQueue: named FIFO queues carrying inference and feedback jobs
//   - VectorIndex: classified embeddings with a cursor-paginated scan
//   - LevelRepository: the relational record store with transactions
//
// # Backends
//
// The badger subpackage implements all four interfaces in one embedded
// database and is used for single-node operation and tests. The redis,
// qdrant and sqlstore subpackages implement the networked deployment.
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All implementations must be safe for concurrent use from multiple
// goroutines.
//
// # Context Support
//
// All blocking methods accept context.Context for cancellation.
package storage
