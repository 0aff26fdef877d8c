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

// Package sweep reconciles stored record levels with the current centroids.
//
// A Sweeper scrolls the whole vector index page by page, reclassifies every
// record and writes changed levels back, one transaction per page. A
// Scheduler runs sweeps in the background, one at a time, coalescing
// triggers that arrive while a sweep is running.
package sweep
