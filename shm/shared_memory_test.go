// Copyright 2015 Aleksandr Demakin. All rights reserved.

package shm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testMemObjName = "shmbus.test.shm"

func TestCreateMemoryObject(t *testing.T) {
	a := assert.New(t)
	DestroyMemoryObject(testMemObjName)
	obj, err := NewMemoryObject(testMemObjName, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	if !a.NoError(err) {
		return
	}
	a.Equal(testMemObjName, obj.Name())
	a.NoError(obj.Truncate(1024))
	a.EqualValues(1024, obj.Size())
	a.NoError(obj.Destroy())
}

func TestCreateMemoryObjectExcl(t *testing.T) {
	a := assert.New(t)
	DestroyMemoryObject(testMemObjName)
	obj, err := NewMemoryObject(testMemObjName, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	if !a.NoError(err) {
		return
	}
	defer obj.Destroy()
	_, err = NewMemoryObject(testMemObjName, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	a.Error(err)
}

func TestOpenMemoryObjectReadonly(t *testing.T) {
	a := assert.New(t)
	DestroyMemoryObject(testMemObjName)
	obj, err := NewMemoryObject(testMemObjName, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	if !a.NoError(err) {
		return
	}
	defer obj.Destroy()
	a.NoError(obj.Truncate(128))
	ro, err := NewMemoryObject(testMemObjName, os.O_RDONLY, 0666)
	if !a.NoError(err) {
		return
	}
	a.EqualValues(128, ro.Size())
	a.NoError(ro.Close())
}

func TestMemoryObjectSize(t *testing.T) {
	a := assert.New(t)
	DestroyMemoryObject(testMemObjName)
	obj, created, err := NewMemoryObjectSize(testMemObjName, os.O_CREATE|os.O_EXCL, 0666, 2048)
	if !a.NoError(err) {
		return
	}
	defer DestroyMemoryObject(testMemObjName)
	a.True(created)
	a.EqualValues(2048, obj.Size())
	a.NoError(obj.Close())
	// an existing object must be large enough.
	obj, created, err = NewMemoryObjectSize(testMemObjName, 0, 0666, 1024)
	if !a.NoError(err) {
		return
	}
	a.False(created)
	a.NoError(obj.Close())
	_, _, err = NewMemoryObjectSize(testMemObjName, 0, 0666, 4096)
	a.Error(err)
}

func TestMemoryObjectName(t *testing.T) {
	a := assert.New(t)
	_, err := NewMemoryObject("", os.O_CREATE|os.O_RDWR, 0666)
	a.Error(err)
	_, err = NewMemoryObject("a/b", os.O_CREATE|os.O_RDWR, 0666)
	a.Error(err)
}

func TestDestroyAbsentObject(t *testing.T) {
	a := assert.New(t)
	DestroyMemoryObject(testMemObjName)
	a.NoError(DestroyMemoryObject(testMemObjName))
}
