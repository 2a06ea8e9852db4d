// Copyright 2015 Aleksandr Demakin. All rights reserved.

package mmf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nxgtw/go-shmbus/shm"
)

const testRegionObjName = "shmbus.test.region"

func createTestObject(t *testing.T, size int64) *shm.MemoryObject {
	shm.DestroyMemoryObject(testRegionObjName)
	obj, _, err := shm.NewMemoryObjectSize(testRegionObjName, os.O_CREATE|os.O_EXCL, 0666, size)
	if err != nil {
		t.Fatalf("failed to create shm object: %v", err)
	}
	return obj
}

func TestMemoryRegionReadWrite(t *testing.T) {
	a := assert.New(t)
	obj := createTestObject(t, 1024)
	defer func() {
		obj.Close()
		shm.DestroyMemoryObject(testRegionObjName)
	}()
	region, err := NewMemoryRegion(obj, MEM_READWRITE, 1024)
	if !a.NoError(err) {
		return
	}
	defer region.Close()
	a.Equal(1024, region.Size())
	for i := range region.Data() {
		region.Data()[i] = byte(i)
	}
	a.NoError(region.Flush(false))
	other, err := NewMemoryRegion(obj, MEM_READ_ONLY, 1024)
	if !a.NoError(err) {
		return
	}
	defer other.Close()
	for i, value := range other.Data() {
		if value != byte(i) {
			t.Fatalf("unexpected value at %d: %d", i, value)
		}
	}
}

func TestMemoryRegionWholeObject(t *testing.T) {
	a := assert.New(t)
	obj := createTestObject(t, 512)
	defer func() {
		obj.Close()
		shm.DestroyMemoryObject(testRegionObjName)
	}()
	region, err := NewMemoryRegion(obj, MEM_READWRITE, 0)
	if !a.NoError(err) {
		return
	}
	defer region.Close()
	a.Equal(512, region.Size())
}

func TestMemoryRegionTooLong(t *testing.T) {
	a := assert.New(t)
	obj := createTestObject(t, 128)
	defer func() {
		obj.Close()
		shm.DestroyMemoryObject(testRegionObjName)
	}()
	_, err := NewMemoryRegion(obj, MEM_READWRITE, 256)
	a.Error(err)
}

func TestMemoryRegionInvalidMode(t *testing.T) {
	a := assert.New(t)
	obj := createTestObject(t, 128)
	defer func() {
		obj.Close()
		shm.DestroyMemoryObject(testRegionObjName)
	}()
	_, err := NewMemoryRegion(obj, 42, 128)
	a.Error(err)
}

func TestMemoryRegionClose(t *testing.T) {
	a := assert.New(t)
	obj := createTestObject(t, 64)
	defer func() {
		obj.Close()
		shm.DestroyMemoryObject(testRegionObjName)
	}()
	region, err := NewMemoryRegion(obj, MEM_READWRITE, 64)
	if !a.NoError(err) {
		return
	}
	a.NoError(region.Close())
	// closing twice is harmless.
	a.NoError(region.Close())
}
