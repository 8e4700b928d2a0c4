package object

import (
	"bytes"
	"math"
)

// Set stores child under key, transferring the caller's reference to the
// dictionary. An existing entry for key is released and replaced in place so
// iteration order keeps the original insertion position.
func (v *Value) Set(key string, child *Value) {
	v.mustBe(TypeDictionary)
	if child == nil {
		child = NewNull()
	}
	d := v.dict
	if i, ok := d.index[key]; ok {
		old := d.entries[i].value
		d.entries[i].value = child
		Release(old)
		return
	}
	d.index[key] = len(d.entries)
	d.entries = append(d.entries, entry{key: key, value: child})
}

// Get returns the child stored under key without retaining it.
func (v *Value) Get(key string) (*Value, bool) {
	if v.Type() != TypeDictionary {
		return nil, false
	}
	i, ok := v.dict.index[key]
	if !ok {
		return nil, false
	}
	return v.dict.entries[i].value, true
}

// Remove deletes key and releases its child. It reports whether key existed.
func (v *Value) Remove(key string) bool {
	v.mustBe(TypeDictionary)
	d := v.dict
	i, ok := d.index[key]
	if !ok {
		return false
	}
	child := d.entries[i].value
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	delete(d.index, key)
	for j := i; j < len(d.entries); j++ {
		d.index[d.entries[j].key] = j
	}
	Release(child)
	return true
}

// Keys returns dictionary keys in insertion order.
func (v *Value) Keys() []string {
	if v.Type() != TypeDictionary {
		return nil
	}
	keys := make([]string, 0, len(v.dict.entries))
	for _, e := range v.dict.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// ApplyDictionary calls fn for each entry in insertion order until fn
// returns false.
func (v *Value) ApplyDictionary(fn func(key string, child *Value) bool) {
	if v.Type() != TypeDictionary {
		return
	}
	for _, e := range v.dict.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Append adds child to the end of the array, transferring the caller's
// reference to the array.
func (v *Value) Append(child *Value) {
	v.mustBe(TypeArray)
	if child == nil {
		child = NewNull()
	}
	v.arr = append(v.arr, child)
}

// Index returns the element at i without retaining it.
func (v *Value) Index(i int) (*Value, bool) {
	if v.Type() != TypeArray || i < 0 || i >= len(v.arr) {
		return nil, false
	}
	return v.arr[i], true
}

// ApplyArray calls fn for each element in order until fn returns false.
func (v *Value) ApplyArray(fn func(i int, child *Value) bool) {
	if v.Type() != TypeArray {
		return
	}
	for i, child := range v.arr {
		if !fn(i, child) {
			return
		}
	}
}

// Len returns the number of dictionary entries or array elements.
func (v *Value) Len() int {
	switch v.Type() {
	case TypeDictionary:
		return len(v.dict.entries)
	case TypeArray:
		return len(v.arr)
	case TypeData:
		return len(v.data)
	case TypeString:
		return len(v.s)
	default:
		return 0
	}
}

func (v *Value) mustBe(t Type) {
	if v.Type() != t {
		panic("object: " + t.String() + " operation on " + v.Type().String() + " value")
	}
}

// Equal reports whether a and b have the same structure: equal tags, the same
// dictionary entries, the same array elements in order and equal scalar
// payloads. Dictionary key order does not affect equality.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeInvalid, TypeNull:
		return true
	case TypeBool:
		return a.b == b.b
	case TypeInt64, TypeFD:
		return a.i == b.i
	case TypeUint64, TypeEndpoint:
		return a.u == b.u
	case TypeDouble:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case TypeDate:
		return a.t.Equal(b.t)
	case TypeString, TypeError:
		return a.s == b.s
	case TypeUUID:
		return a.id == b.id
	case TypeData:
		return bytes.Equal(a.data, b.data)
	case TypeArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case TypeDictionary:
		if len(a.dict.entries) != len(b.dict.entries) {
			return false
		}
		for _, e := range a.dict.entries {
			i, ok := b.dict.index[e.key]
			if !ok || !Equal(e.value, b.dict.entries[i].value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
