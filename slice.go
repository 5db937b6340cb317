package arenago

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"unsafe"
)

// New allocates a zeroed T in arena memory and returns a pointer to it.
//
// Arena memory is untyped bytes: the garbage collector does not see
// pointers stored inside it, so a pointer held only by an arena-resident
// value keeps nothing alive. New therefore panics if T contains pointers
// of any kind (pointers, slices, maps, strings, channels, funcs,
// interfaces). The returned value lives until the arena is closed.
func New[T any](a Allocator) *T {
	size := int(unsafe.Sizeof(*new(T)))
	if size == 0 {
		return new(T)
	}

	checkPointerFree[T]()

	buf := a.AllocateAligned(size, 0)

	return (*T)(unsafe.Pointer(unsafe.SliceData(buf)))
}

// MakeSlice allocates a []T of the given length and capacity in arena
// memory. The same pointer-free rule as New applies to T. The slice's
// backing array lives until the arena is closed; appending within capacity
// stays in the arena, growing beyond it moves the slice to the heap.
func MakeSlice[T any](a Allocator, length, capacity int) []T {
	if length < 0 || capacity < length {
		panic("arenago: invalid slice bounds")
	}

	size := int(unsafe.Sizeof(*new(T)))
	if size == 0 || capacity == 0 {
		return make([]T, length, capacity)
	}

	checkPointerFree[T]()

	if capacity > math.MaxInt/size {
		panic("arenago: slice size overflows")
	}

	buf := a.AllocateAligned(size*capacity, 0)
	head := (*T)(unsafe.Pointer(unsafe.SliceData(buf)))

	return unsafe.Slice(head, capacity)[:length:capacity]
}

var pointerFreeCache sync.Map // reflect.Type -> bool

func checkPointerFree[T any]() {
	t := reflect.TypeFor[T]()
	if !isPointerFree(t) {
		panic(fmt.Sprintf("arenago: %s contains pointers and cannot live in arena memory", t))
	}
}

func isPointerFree(t reflect.Type) bool {
	if v, ok := pointerFreeCache.Load(t); ok {
		return v.(bool)
	}

	ok := computePointerFree(t)
	pointerFreeCache.Store(t, ok)

	return ok
}

func computePointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return computePointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !computePointerFree(t.Field(i).Type) {
				return false
			}
		}

		return true
	default:
		return false
	}
}
