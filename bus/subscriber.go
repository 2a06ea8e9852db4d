// Copyright 2016 Aleksandr Demakin. All rights reserved.

package bus

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const pollInterval = 2 * time.Millisecond

// ErrTimeout is returned when no message arrives within the given timeout.
var ErrTimeout = errors.New("receive timed out")

// Subscriber reads messages from a topic in publish order. Each subscriber
// keeps its own cursor, so independent subscribers all see the full stream.
// A subscriber which falls more, than one ring behind the publishers is
// lapped: it skips to the oldest retained message and counts the loss.
type Subscriber struct {
	topic  *Topic
	cursor uint64
	lost   uint64
}

// NewSubscriber returns a subscriber positioned at the current head of the
// topic, so only messages published after this call are received.
func NewSubscriber(topic *Topic) *Subscriber {
	return &Subscriber{topic: topic, cursor: topic.Published()}
}

// Receive returns the next message, waiting for one to be published if
// needed. The wait is unbounded.
func (s *Subscriber) Receive() ([]byte, error) {
	return s.receive(backoff.NewConstantBackOff(pollInterval))
}

// ReceiveTimeout returns the next message, waiting for not more, than
// timeout. ErrTimeout is returned if nothing arrives in time.
func (s *Subscriber) ReceiveTimeout(timeout time.Duration) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pollInterval
	b.MaxInterval = 8 * pollInterval
	b.MaxElapsedTime = timeout
	b.Reset()
	return s.receive(b)
}

// TryReceive returns the next message, or false if none is ready.
func (s *Subscriber) TryReceive() ([]byte, bool, error) {
	data, err := s.receive(&backoff.StopBackOff{})
	if err == ErrTimeout {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *Subscriber) receive(b backoff.BackOff) ([]byte, error) {
	t := s.topic
	ring := uint64(len(t.slots))
	for {
		head := t.Published()
		if s.cursor >= head {
			d := b.NextBackOff()
			if d == backoff.Stop {
				return nil, ErrTimeout
			}
			time.Sleep(d)
			continue
		}
		if head-s.cursor > ring {
			s.lap(head - ring)
		}
		slot := t.slot(s.cursor)
		slot.lock.RLock()
		stored := atomic.LoadUint64(slot.seq)
		if stored != s.cursor+1 {
			slot.lock.RUnlock()
			if stored > s.cursor+1 {
				// the writer overran us while we were between the head
				// check and the lock. jump to the oldest retained message.
				s.lap(t.Published() - ring)
				continue
			}
			// the sequence is reserved, but the slot is not filled yet.
			d := b.NextBackOff()
			if d == backoff.Stop {
				return nil, ErrTimeout
			}
			time.Sleep(d)
			continue
		}
		data := make([]byte, atomic.LoadUint32(slot.length))
		copy(data, slot.payload)
		slot.lock.RUnlock()
		s.cursor++
		return data, nil
	}
}

// lap moves the cursor forward to oldest and accounts the skipped messages
// as lost.
func (s *Subscriber) lap(oldest uint64) {
	if oldest <= s.cursor {
		return
	}
	s.lost += oldest - s.cursor
	klog.V(4).Infof("subscriber lapped on topic %q: skipped %d messages", s.topic.Name(), oldest-s.cursor)
	s.cursor = oldest
}

// Lost returns the number of messages skipped because the subscriber was
// lapped by the publishers.
func (s *Subscriber) Lost() uint64 {
	return s.lost
}

// Pending returns the number of published messages the subscriber has not
// read yet.
func (s *Subscriber) Pending() uint64 {
	head := s.topic.Published()
	if head <= s.cursor {
		return 0
	}
	return head - s.cursor
}
