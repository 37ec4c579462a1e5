// Package shuffle routes messages to reduce workers by key hash, so every
// event of one key lands on the same worker.
package shuffle

import (
	"github.com/spaolacci/murmur3"

	"github.com/numaproj/flowagg/pkg/stream"
)

// Shuffle maps message keys onto a fixed set of workers.
type Shuffle struct {
	workerCount uint64
}

// NewShuffle accepts the number of reduce workers and returns a new shuffle
// instance.
func NewShuffle(workerCount int) *Shuffle {
	return &Shuffle{
		workerCount: uint64(workerCount),
	}
}

// WorkerIndex returns the index of the worker owning the key. The mapping is
// stable for the lifetime of the shuffle.
func (s *Shuffle) WorkerIndex(key string) int {
	// mod of the key hash decides which worker the key belongs to
	return int(murmur3.Sum64([]byte(key)) % s.workerCount)
}

// ShuffleMessages accepts a batch of messages and returns the mapping of
// worker index to messages, preserving the read order within each group.
func (s *Shuffle) ShuffleMessages(messages []*stream.ReadMessage) map[int][]*stream.ReadMessage {
	hashMap := make(map[int][]*stream.ReadMessage)
	for _, message := range messages {
		index := s.WorkerIndex(message.Key)
		hashMap[index] = append(hashMap[index], message)
	}
	return hashMap
}
