// Copyright 2016 Aleksandr Demakin. All rights reserved.

package bus

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Publisher writes messages into a topic. Any number of publishers may
// write into the same topic from any process, each message gets a unique
// sequence number and lands in the slot the sequence maps to.
type Publisher struct {
	topic *Topic
}

// NewPublisher returns a publisher for the given topic.
func NewPublisher(topic *Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish copies data into the next ring slot. It blocks while the slot is
// read by live subscribers, readers which died inside the slot are evicted.
// Messages larger, than the slot payload, are rejected.
func (p *Publisher) Publish(data []byte) error {
	_, err := p.publish(data, 0)
	return err
}

// PublishTimeout is like Publish, but gives up if the slot cannot be taken
// within timeout. It returns the message's sequence number on success.
func (p *Publisher) PublishTimeout(data []byte, timeout time.Duration) (uint64, error) {
	return p.publish(data, timeout)
}

func (p *Publisher) publish(data []byte, timeout time.Duration) (uint64, error) {
	t := p.topic
	if len(data) > t.SlotSize() {
		return 0, errors.Errorf("message of %d bytes exceeds the slot payload of %d bytes", len(data), t.SlotSize())
	}
	// the sequence is reserved before the slot is filled. subscribers treat
	// a slot whose stored sequence lags the reserved one as not yet ready.
	seq := atomic.AddUint64(t.hdr.counter, 1) - 1
	s := t.slot(seq)
	if timeout == 0 {
		s.lock.Lock()
	} else if !s.lock.LockTimeout(timeout) {
		return 0, errors.Errorf("slot %d is still locked after %v", seq%uint64(len(t.slots)), timeout)
	}
	copy(s.payload, data)
	atomic.StoreUint32(s.length, uint32(len(data)))
	atomic.StoreUint64(s.seq, seq+1)
	s.lock.Unlock()
	return seq, nil
}
