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

import (
	"context"
	"fmt"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

const (
	// DefaultPageSize is the default number of records fetched per page.
	DefaultPageSize = 100
)

// PageIterator walks a vector index with its scroll cursor.
type PageIterator struct {
	index    storage.VectorIndex
	pageSize int
}

// NewPageIterator creates a new page iterator.
// pageSize: number of records per page (defaults to DefaultPageSize if <= 0)
func NewPageIterator(index storage.VectorIndex, pageSize int) *PageIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PageIterator{
		index:    index,
		pageSize: pageSize,
	}
}

// PageSize returns the number of records requested per page.
func (it *PageIterator) PageSize() int {
	return it.pageSize
}

// ForEach calls fn for each non-empty page until the index reports no
// further cursor. Iteration stops on the first error from fn or the index.
// Context cancellation is checked between pages.
func (it *PageIterator) ForEach(ctx context.Context, fn func(page []*core.Record) error) error {
	var cursor storage.Cursor
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, next, err := it.index.Scroll(ctx, it.pageSize, cursor)
		if err != nil {
			return fmt.Errorf("failed to scroll index: %w", err)
		}

		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}

		if next == "" {
			return nil
		}
		if next == cursor {
			return fmt.Errorf("%w: %q", ErrCursorStalled, next)
		}
		cursor = next
	}
}
