/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/* Package memory is an in memory ring buffer that implements the stream buffer
interfaces. This should be used only for local development, testing and for
embedding the pipeline without a broker. The locking implementation is very
coarse. */

package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/numaproj/flowagg/pkg/stream"
)

// InMemoryBuffer implements the stream.BufferReader and stream.BufferWriter interfaces.
type InMemoryBuffer struct {
	name     string
	size     int64
	buffer   []elem
	writeIdx int64
	readIdx  int64
	closed   bool
	options  *options
	rwlock   *sync.RWMutex
}

var _ stream.BufferReader = (*InMemoryBuffer)(nil)
var _ stream.BufferWriter = (*InMemoryBuffer)(nil)

// elem is the element stored in the buffer
type elem struct {
	message stream.Message
	dirty   bool
	ack     bool
	pending bool
}

// NewInMemoryBuffer returns a new buffer.
func NewInMemoryBuffer(name string, size int64, opts ...Option) *InMemoryBuffer {
	bufferOptions := &options{
		readTimeOut: time.Second, // default read time out
	}

	for _, o := range opts {
		_ = o(bufferOptions)
	}

	sb := &InMemoryBuffer{
		name:     name,
		size:     size,
		buffer:   make([]elem, size),
		writeIdx: int64(0),
		readIdx:  int64(0),
		rwlock:   new(sync.RWMutex),
		options:  bufferOptions,
	}
	return sb
}

// Stringer
func (b *InMemoryBuffer) String() string {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return fmt.Sprintf("(%s) size:%d readIdx:%d writeIdx:%d", b.name, b.size, b.readIdx, b.writeIdx)
}

// GetName returns the buffer name.
func (b *InMemoryBuffer) GetName() string {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return b.name
}

// Pending returns the number of unacknowledged messages in the buffer.
func (b *InMemoryBuffer) Pending(_ context.Context) (int64, error) {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	var pending int64
	for i := int64(0); i < b.size; i++ {
		if b.buffer[i].dirty {
			pending++
		}
	}
	return pending, nil
}

// Close marks the end of the stream. Messages already in the buffer can still
// be read; once drained, Read returns an EOSError.
func (b *InMemoryBuffer) Close() error {
	b.rwlock.Lock()
	defer b.rwlock.Unlock()
	b.closed = true
	return nil
}

// IsFull returns whether the queue is full.
func (b *InMemoryBuffer) IsFull() bool {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return b.buffer[b.writeIdx].dirty
}

// IsEmpty returns whether the queue is empty.
func (b *InMemoryBuffer) IsEmpty() bool {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return b.buffer[b.readIdx].pending || !b.buffer[b.readIdx].dirty
}

func (b *InMemoryBuffer) isClosed() bool {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return b.closed
}

func (b *InMemoryBuffer) Write(_ context.Context, messages []stream.Message) ([]stream.Offset, []error) {
	var errs = make([]error, len(messages))
	writeOffsets := make([]stream.Offset, len(messages))
	for idx, message := range messages {
		if b.isClosed() {
			errs[idx] = stream.BufferWriteErr{Name: b.name, InternalErr: true, Message: "buffer closed"}
			continue
		}
		if !b.IsFull() {
			b.rwlock.Lock()
			currentIdx := b.writeIdx
			b.buffer[currentIdx].message = message
			b.buffer[currentIdx].dirty = true
			b.buffer[currentIdx].ack = false
			b.writeIdx = (currentIdx + 1) % b.size
			writeOffsets[idx] = stream.SimpleIntOffset(func() int64 { return currentIdx })
			b.rwlock.Unlock()
			errs[idx] = nil
		} else {
			errs[idx] = stream.BufferWriteErr{Name: b.name, Full: true, Message: stream.BufferFullMessage}
		}
	}
	return writeOffsets, errs
}

func (b *InMemoryBuffer) blockIfEmpty(ctx context.Context) error {
	// block if isEmpty
	for {
		if !b.IsEmpty() {
			break
		}
		if b.isClosed() {
			return stream.EOSError{Name: b.name}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			time.Sleep(time.Millisecond)
		}
	}

	return nil
}

func (b *InMemoryBuffer) Read(ctx context.Context, count int64) ([]*stream.ReadMessage, error) {
	var readMessages = make([]*stream.ReadMessage, 0, count)
	cctx, cancel := context.WithTimeout(ctx, b.options.readTimeOut)
	defer cancel()
	for i := int64(0); i < count; i++ {
		// wait till we have data
		if err := b.blockIfEmpty(cctx); err != nil {
			var eos stream.EOSError
			if errors.As(err, &eos) {
				if len(readMessages) > 0 {
					return readMessages, nil
				}
				return readMessages, err
			}
			if errors.Is(err, context.Canceled) {
				return readMessages, nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return readMessages, nil
			}
			return readMessages, stream.BufferReadErr{Name: b.name, Empty: true, Message: err.Error()}
		}
		b.rwlock.Lock()
		currentIdx := b.readIdx
		// mark it as pending
		b.buffer[currentIdx].pending = true
		b.readIdx = (currentIdx + 1) % b.size
		message := b.buffer[currentIdx].message
		b.rwlock.Unlock()

		// the watermark is stamped by the pipeline at ingestion
		readMessage := message.ToReadMessage(stream.SimpleIntOffset(func() int64 { return currentIdx }), time.Time{})
		readMessages = append(readMessages, readMessage)
	}

	return readMessages, nil
}

// Ack acknowledges the given offsets
func (b *InMemoryBuffer) Ack(_ context.Context, offsets []stream.Offset) []error {
	errs := make([]error, len(offsets))
	for index, offset := range offsets {
		seq, err := offset.Sequence()
		if err != nil {
			errs[index] = stream.MessageAckErr{Name: b.name, Message: err.Error(), Offset: offset}
			continue
		}
		if seq < 0 || seq >= b.size {
			errs[index] = stream.MessageAckErr{
				Name:    b.name,
				Message: fmt.Sprintf("given index (%d) >= size of the buffer (%d)", seq, b.size),
				Offset:  offset,
			}
			continue
		}

		b.rwlock.Lock()
		b.buffer[seq].ack = true
		b.buffer[seq].pending = false
		b.buffer[seq].dirty = false
		b.rwlock.Unlock()
	}

	return errs
}

func (b *InMemoryBuffer) NoAck(_ context.Context, offsets []stream.Offset) {
	for _, offset := range offsets {
		seq, err := offset.Sequence()
		if err != nil || seq < 0 || seq >= b.size {
			continue
		}
		b.rwlock.Lock()
		b.buffer[seq].pending = false
		b.rwlock.Unlock()
	}
}

// GetMessages gets the first num messages in the in mem buffer.
// This function is for testing purpose.
func (b *InMemoryBuffer) GetMessages(num int) []*stream.Message {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	var msgs = make([]*stream.Message, 0, num)
	for i := 0; i < num && i < len(b.buffer); i++ {
		msg := b.buffer[i].message
		msgs = append(msgs, &msg)
	}
	return msgs
}
