package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	defaultSequenceBandwidth = 100
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger

	mu      sync.Mutex
	signals map[string]chan struct{} // per-queue push notifications
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:      db,
		logger:  logger,
		signals: make(map[string]chan struct{}),
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// GetSequence returns a BadgerDB sequence for generating sequential IDs.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(name), defaultSequenceBandwidth)
}

type txKey struct{}

// txFromContext returns the write transaction opened by WithTransaction, if any.
func txFromContext(ctx context.Context) *badger.Txn {
	tx, _ := ctx.Value(txKey{}).(*badger.Txn)
	return tx
}

// WithTransaction executes fn within a read-write transaction carried in the
// context passed to fn. Repository calls made with that context join the
// transaction. Nested calls reuse the outer transaction.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// read runs fn in the context's transaction, or in a fresh read-only one.
func (b *Backend) read(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(tx)
	}
	return b.WithTx(fn, false)
}

// write runs fn in the context's transaction, or in a fresh one committed on success.
func (b *Backend) write(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(tx)
	}
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// signal returns the notification channel for queue.
func (b *Backend) signal(queue string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.signals[queue]
	if !ok {
		ch = make(chan struct{}, 1)
		b.signals[queue] = ch
	}
	return ch
}

// notify wakes one waiter on queue without blocking.
func (b *Backend) notify(queue string) {
	select {
	case b.signal(queue) <- struct{}{}:
	default:
	}
}
