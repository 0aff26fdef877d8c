package badger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/leveler/storage"
)

// queuePollInterval bounds how long Pop sleeps between scans when no push
// notification arrives, covering pushes from other processes.
const queuePollInterval = 100 * time.Millisecond

// JobQueue implements storage.JobQueue on BadgerDB.
// Messages are ordered by a per-queue sequence.
type JobQueue struct {
	backend *Backend

	mu   sync.Mutex
	seqs map[string]*badger.Sequence
}

var _ storage.JobQueue = (*JobQueue)(nil)

// NewJobQueue creates a new JobQueue.
func NewJobQueue(backend *Backend) *JobQueue {
	return &JobQueue{
		backend: backend,
		seqs:    make(map[string]*badger.Sequence),
	}
}

// Close releases the queue sequences.
func (q *JobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for name, seq := range q.seqs {
		if err := seq.Release(); err != nil {
			errs = append(errs, err)
		}
		delete(q.seqs, name)
	}
	return errors.Join(errs...)
}

// Push appends msg to the tail of queue.
func (q *JobQueue) Push(ctx context.Context, queue string, msg []byte) error {
	seq, err := q.sequence(queue)
	if err != nil {
		return err
	}
	n, err := seq.Next()
	if err != nil {
		return err
	}

	err = q.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeQueueKey(queue, n), msg); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	q.backend.notify(queue)
	return nil
}

// Pop removes and returns the head of queue, waiting up to timeout for one to arrive.
// Returns nil, nil on timeout.
func (q *JobQueue) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	wake := q.backend.signal(queue)

	for {
		msg, err := q.tryPop(queue)
		if err != nil || msg != nil {
			return msg, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(min(remaining, queuePollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Len returns the number of messages waiting in queue.
func (q *JobQueue) Len(ctx context.Context, queue string) (int, error) {
	count := 0
	err := q.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeQueuePrefix(queue)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// tryPop removes the head of queue if there is one.
// Concurrent poppers conflict on the same key; the loser retries.
func (q *JobQueue) tryPop(queue string) ([]byte, error) {
	for {
		var msg []byte
		err := q.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeQueuePrefix(queue)
			opts.PrefetchSize = 1
			iter := tx.NewIterator(opts)

			iter.Rewind()
			if !iter.Valid() {
				iter.Close()
				return nil
			}
			item := iter.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			iter.Close()
			if err != nil {
				return err
			}

			if err := tx.Delete(key); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			msg = val
			return nil
		}, true)

		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return msg, err
	}
}

func (q *JobQueue) sequence(queue string) (*badger.Sequence, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seq, ok := q.seqs[queue]; ok {
		return seq, nil
	}
	seq, err := q.backend.GetSequence(makeQueueSeqName(queue))
	if err != nil {
		return nil, err
	}
	q.seqs[queue] = seq
	return seq, nil
}
