// Copyright 2015 Aleksandr Demakin. All rights reserved.

package allocator

import (
	"reflect"
	"runtime"
	"unsafe"
)

// ByteSliceData returns a pointer to the data of the given byte slice.
func ByteSliceData(slice []byte) unsafe.Pointer {
	header := (*reflect.SliceHeader)(unsafe.Pointer(&slice))
	return unsafe.Pointer(header.Data)
}

// ByteSliceFromUnsafePointer returns a slice of bytes with the given length
// and capacity. Memory pointed to by the unsafe.Pointer is used for the slice.
func ByteSliceFromUnsafePointer(memory unsafe.Pointer, length, capacity int) []byte {
	return *(*[]byte)(RawSliceFromUnsafePointer(memory, length, capacity))
}

// Uint32SliceFromUnsafePointer returns a slice of uint32 with the given length
// and capacity. Memory pointed to by the unsafe.Pointer is used for the slice.
func Uint32SliceFromUnsafePointer(memory unsafe.Pointer, length, capacity int) []uint32 {
	return *(*[]uint32)(RawSliceFromUnsafePointer(memory, length, capacity))
}

// RawSliceFromUnsafePointer returns a pointer to a slice with the given length
// and capacity. Memory pointed to by the unsafe.Pointer is used for the slice.
func RawSliceFromUnsafePointer(memory unsafe.Pointer, length, capacity int) unsafe.Pointer {
	sl := reflect.SliceHeader{
		Len:  length,
		Cap:  capacity,
		Data: uintptr(memory),
	}
	return unsafe.Pointer(&sl)
}

// AdvancePointer adds shift value to the 'p' pointer.
func AdvancePointer(p unsafe.Pointer, shift uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) + shift)
}

// Use ensures that the object pointed to by p is alive at this point.
func Use(p unsafe.Pointer) {
	runtime.KeepAlive(p)
}
