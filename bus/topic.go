// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package bus implements a topic-based pub/sub message bus over shared
// memory. A topic is a ring of fixed-size slots living in a single shared
// memory object. Each slot is guarded by its own crash-resilient
// reader/writer lock, so the death of a publisher or a subscriber inside a
// slot never wedges the topic.
package bus

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/nxgtw/go-shmbus/internal/allocator"
	"github.com/nxgtw/go-shmbus/internal/common"
	"github.com/nxgtw/go-shmbus/mmf"
	"github.com/nxgtw/go-shmbus/shm"
	"github.com/nxgtw/go-shmbus/sync"
)

const (
	topicMagic = uint32(0x73686d62)

	// header layout:
	//	offset 0:  magic (uint32)
	//	offset 4:  slot count (uint32)
	//	offset 8:  slot payload size (uint32)
	//	offset 12: reserved
	//	offset 16: publish counter (uint64), the sequence number of the
	//	           next message.
	headerSize = 24

	// per-slot metadata in front of the payload:
	//	offset 0:   slot lock
	//	offset 264: stored sequence + 1 (uint64), 0 means never written
	//	offset 272: payload length (uint32)
	//	offset 276: reserved
	slotMetaSize = sync.RobustRWLockSize + 16
)

// topicHeader gives typed access to the header words of a mapped topic.
type topicHeader struct {
	magic     *uint32
	slotCount *uint32
	slotSize  *uint32
	counter   *uint64
}

func openTopicHeader(raw unsafe.Pointer) topicHeader {
	return topicHeader{
		magic:     (*uint32)(raw),
		slotCount: (*uint32)(allocator.AdvancePointer(raw, 4)),
		slotSize:  (*uint32)(allocator.AdvancePointer(raw, 8)),
		counter:   (*uint64)(allocator.AdvancePointer(raw, 16)),
	}
}

// slot is a per-process view of one ring slot.
type slot struct {
	lock    *sync.RobustRWLock
	seq     *uint64
	length  *uint32
	payload []byte
}

func openSlot(raw unsafe.Pointer, slotSize int, create bool) slot {
	s := slot{
		seq:     (*uint64)(allocator.AdvancePointer(raw, sync.RobustRWLockSize)),
		length:  (*uint32)(allocator.AdvancePointer(raw, sync.RobustRWLockSize+8)),
		payload: allocator.ByteSliceFromUnsafePointer(allocator.AdvancePointer(raw, slotMetaSize), slotSize, slotSize),
	}
	if create {
		s.lock = sync.NewRobustRWLockAt(raw)
		atomic.StoreUint64(s.seq, 0)
		atomic.StoreUint32(s.length, 0)
	} else {
		s.lock = sync.OpenRobustRWLockAt(raw)
	}
	return s
}

// Topic is a named shared memory segment with a ring of message slots.
// A Topic value is a per-process handle, any number of processes can open
// the same topic and publish or subscribe concurrently.
type Topic struct {
	region *mmf.MemoryRegion
	name   string
	hdr    topicHeader
	slots  []slot
}

// NewTopic opens or creates a topic.
//	name - topic name.
//	flag - flag is a combination of open flags from 'os' package.
//	perm - object's permission bits.
//	slotCount, slotSize - ring geometry. Required when the topic is created,
//	when opening an existing topic pass 0 to accept the stored geometry.
func NewTopic(name string, flag int, perm os.FileMode, slotCount, slotSize int) (*Topic, error) {
	if err := common.FlagsForAccess(flag); err != nil {
		return nil, err
	}
	if slotCount < 0 || slotSize < 0 {
		return nil, errors.New("topic geometry must not be negative")
	}
	minSize := int64(headerSize)
	if slotCount > 0 && slotSize > 0 {
		minSize = int64(topicSize(slotCount, slotSize))
	}
	obj, created, err := shm.NewMemoryObjectSize(topicName(name), flag, perm, minSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open topic object")
	}
	defer obj.Close()
	if created && (slotCount == 0 || slotSize == 0) {
		obj.Destroy()
		return nil, errors.New("geometry is required to create a topic")
	}
	region, err := mmf.NewMemoryRegion(obj, mmf.MEM_READWRITE, 0)
	if err != nil {
		if created {
			obj.Destroy()
		}
		return nil, errors.Wrap(err, "failed to map topic object")
	}
	t := &Topic{region: region, name: topicName(name)}
	raw := allocator.ByteSliceData(region.Data())
	t.hdr = openTopicHeader(raw)
	if created {
		atomic.StoreUint32(t.hdr.slotCount, uint32(slotCount))
		atomic.StoreUint32(t.hdr.slotSize, uint32(slotSize))
		atomic.StoreUint64(t.hdr.counter, 0)
	} else {
		if err = t.checkHeader(slotCount, slotSize); err != nil {
			region.Close()
			return nil, err
		}
		slotCount = int(atomic.LoadUint32(t.hdr.slotCount))
		slotSize = int(atomic.LoadUint32(t.hdr.slotSize))
	}
	stride := uintptr(slotStride(slotSize))
	t.slots = make([]slot, slotCount)
	for i := range t.slots {
		t.slots[i] = openSlot(allocator.AdvancePointer(raw, headerSize+uintptr(i)*stride), slotSize, created)
	}
	if created {
		// the magic goes last, so that a concurrent opener never sees a
		// half-initialized ring behind a valid magic.
		atomic.StoreUint32(t.hdr.magic, topicMagic)
	}
	return t, nil
}

func (t *Topic) checkHeader(slotCount, slotSize int) error {
	if atomic.LoadUint32(t.hdr.magic) != topicMagic {
		return errors.Errorf("object %q is not a topic", t.name)
	}
	storedCount := int(atomic.LoadUint32(t.hdr.slotCount))
	storedSize := int(atomic.LoadUint32(t.hdr.slotSize))
	if slotCount != 0 && slotCount != storedCount {
		return errors.Errorf("slot count mismatch (%d != %d)", slotCount, storedCount)
	}
	if slotSize != 0 && slotSize != storedSize {
		return errors.Errorf("slot size mismatch (%d != %d)", slotSize, storedSize)
	}
	if t.region.Size() < topicSize(storedCount, storedSize) {
		return errors.Errorf("topic object is too small for its geometry")
	}
	return nil
}

// Name returns the name the topic was created with.
func (t *Topic) Name() string {
	return t.name[len(topicName("")):]
}

// SlotCount returns the number of ring slots.
func (t *Topic) SlotCount() int {
	return len(t.slots)
}

// SlotSize returns the payload capacity of one slot in bytes.
func (t *Topic) SlotSize() int {
	return int(atomic.LoadUint32(t.hdr.slotSize))
}

// Published returns the sequence number of the next message, which equals
// the total number of messages published so far.
func (t *Topic) Published() uint64 {
	return atomic.LoadUint64(t.hdr.counter)
}

// Close indicates, that the object is no longer in use,
// and that the underlying resources can be freed.
func (t *Topic) Close() error {
	return t.region.Close()
}

// Destroy removes the topic object.
func (t *Topic) Destroy() error {
	if err := t.Close(); err != nil {
		return errors.Wrap(err, "failed to close topic")
	}
	t.region = nil
	err := shm.DestroyMemoryObject(t.name)
	t.name = ""
	if err != nil {
		return errors.Wrap(err, "failed to destroy shm object")
	}
	return nil
}

// DestroyTopic removes a topic object with the given name.
func DestroyTopic(name string) error {
	return shm.DestroyMemoryObject(topicName(name))
}

func (t *Topic) slot(seq uint64) *slot {
	return &t.slots[seq%uint64(len(t.slots))]
}

// topicSize returns the size of the shared object for the given geometry.
func topicSize(slotCount, slotSize int) int {
	return headerSize + slotCount*slotStride(slotSize)
}

// slotStride returns the distance between two consecutive slots, keeping
// every slot 8-byte aligned.
func slotStride(slotSize int) int {
	return slotMetaSize + (slotSize+7) & ^7
}

func topicName(name string) string {
	return "shmbus.topic." + name
}
