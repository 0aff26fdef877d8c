package badger

import (
	"fmt"

	"github.com/poiesic/leveler/core"
	"github.com/poiesic/leveler/storage"
)

const (
	centroidSetKey    = "centroids:set"
	indexPointPrefix  = "idxpt:"
	levelRecordPrefix = "lvlrec:"
	queuePrefix       = "queue"
	queueSeqPrefix    = "queueseq"
)

// makeCentroidKey returns the key holding the centroid set.
func makeCentroidKey() []byte {
	return []byte(centroidSetKey)
}

// makeIndexPointKey generates a key for an index point.
// Format: prefix + big-endian ID, so iteration order is ID order.
func makeIndexPointKey(id core.ID) []byte {
	return append([]byte(indexPointPrefix), storage.MarshalID(id)...)
}

// makeLevelKey generates a key for a record's level.
func makeLevelKey(id core.ID) []byte {
	return append([]byte(levelRecordPrefix), storage.MarshalID(id)...)
}

// makeQueuePrefix returns the common prefix of all messages in queue.
// Format: queue:<len(name)>:<name>:
// The length keeps a queue from matching the keys of another whose name it prefixes.
func makeQueuePrefix(queue string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", queuePrefix, len(queue), queue))
}

// makeQueueKey generates a key for a queued message.
// Format: queue prefix + big-endian sequence
func makeQueueKey(queue string, seq uint64) []byte {
	return append(makeQueuePrefix(queue), storage.MarshalID(core.ID(seq))...)
}

// makeQueueSeqName returns the sequence name used to order messages in queue.
func makeQueueSeqName(queue string) string {
	return fmt.Sprintf("%s:%s", queueSeqPrefix, queue)
}

// idFromKey extracts the trailing big-endian ID of a prefixed key.
func idFromKey(key []byte, prefixLen int) (core.ID, error) {
	if len(key) < prefixLen {
		return 0, storage.ErrTruncatedData
	}
	return storage.UnmarshalID(key[prefixLen:])
}
