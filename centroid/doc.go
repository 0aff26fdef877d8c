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

// Package centroid implements nearest-centroid level classification and the
// online adjustment of centroids from reviewer feedback.
//
// A Classifier is a pure function of a vector and a centroid set. An Adjuster
// computes a replacement centroid set from one feedback event. The Manager is
// the single writer of the persisted set: every read-adjust-persist cycle runs
// under one lock, and readers receive their own copy of the set.
package centroid
