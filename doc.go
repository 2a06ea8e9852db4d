// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package shmbus is a shared-memory publish/subscribe message bus.
//
// A topic is a ring of fixed-size slots living in a POSIX shared memory
// segment. Publishers copy serialized messages into ring slots, subscribers
// poll the ring for new entries. Any number of processes can participate,
// and any of them may die at any moment, including while holding a lock on
// a ring slot. Slot access is coordinated by sync.RobustRWLock, a
// reader/writer lock which detects dead holders via the OS process table
// and evicts them, so a crashed participant never wedges the bus.
//
// Subpackages:
//	shm  - POSIX shared memory objects
//	mmf  - memory mapped regions over shm objects
//	sync - crash-resilient interprocess synchronization
//	bus  - topics, publishers and subscribers
package shmbus
