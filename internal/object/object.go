// Package object owns the tagged, reference-counted value model.
//
// Ownership boundary:
// - value construction and the retain/release lifecycle
// - dictionary and array containers (which own their children)
// - structural equality and the description printer
//
// Only the reference count is safe for concurrent use. Structural mutation
// of a container (Set, Remove, Append) must be serialized by the caller.
package object

import (
	"bytes"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of value tags.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeNull
	TypeBool
	TypeInt64
	TypeUint64
	TypeDouble
	TypeDate
	TypeString
	TypeUUID
	TypeData
	TypeArray
	TypeDictionary
	TypeEndpoint
	TypeFD
	TypeError
)

var typeNames = [...]string{
	TypeInvalid:    "invalid",
	TypeNull:       "null",
	TypeBool:       "bool",
	TypeInt64:      "int64",
	TypeUint64:     "uint64",
	TypeDouble:     "double",
	TypeDate:       "date",
	TypeString:     "string",
	TypeUUID:       "uuid",
	TypeData:       "data",
	TypeArray:      "array",
	TypeDictionary: "dictionary",
	TypeEndpoint:   "endpoint",
	TypeFD:         "fd",
	TypeError:      "error",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// live counts values constructed and not yet destroyed.
var live atomic.Int64

// Live reports the number of values that have been constructed and not yet
// destroyed.
func Live() int64 {
	return live.Load()
}

// Value is one node of an object graph. Scalars are stored inline; containers
// own their children and release them when destroyed.
type Value struct {
	typ  Type
	refs atomic.Int32

	b    bool
	i    int64
	u    uint64
	f    float64
	t    time.Time
	s    string
	id   uuid.UUID
	data []byte

	dict *dictionary
	arr  []*Value
}

type entry struct {
	key   string
	value *Value
}

type dictionary struct {
	entries []entry
	index   map[string]int
}

func newValue(t Type) *Value {
	v := &Value{typ: t}
	v.refs.Store(1)
	live.Add(1)
	return v
}

func NewNull() *Value {
	return newValue(TypeNull)
}

func NewBool(b bool) *Value {
	v := newValue(TypeBool)
	v.b = b
	return v
}

func NewInt64(i int64) *Value {
	v := newValue(TypeInt64)
	v.i = i
	return v
}

func NewUint64(u uint64) *Value {
	v := newValue(TypeUint64)
	v.u = u
	return v
}

func NewDouble(f float64) *Value {
	v := newValue(TypeDouble)
	v.f = f
	return v
}

// NewDate stores t in UTC.
func NewDate(t time.Time) *Value {
	v := newValue(TypeDate)
	v.t = t.UTC()
	return v
}

func NewString(s string) *Value {
	v := newValue(TypeString)
	v.s = s
	return v
}

func NewUUID(id uuid.UUID) *Value {
	v := newValue(TypeUUID)
	v.id = id
	return v
}

// NewData copies b into a new data value.
func NewData(b []byte) *Value {
	v := newValue(TypeData)
	v.data = bytes.Clone(b)
	if v.data == nil {
		v.data = []byte{}
	}
	return v
}

// NewEndpoint wraps an opaque transport endpoint handle.
func NewEndpoint(handle uint64) *Value {
	v := newValue(TypeEndpoint)
	v.u = handle
	return v
}

func NewFD(fd int) *Value {
	v := newValue(TypeFD)
	v.i = int64(fd)
	return v
}

func NewError(msg string) *Value {
	v := newValue(TypeError)
	v.s = msg
	return v
}

func NewDictionary() *Value {
	v := newValue(TypeDictionary)
	v.dict = &dictionary{index: make(map[string]int)}
	return v
}

func NewArray() *Value {
	return newValue(TypeArray)
}

// Type returns the value tag. A nil value reports TypeInvalid.
func (v *Value) Type() Type {
	if v == nil {
		return TypeInvalid
	}
	return v.typ
}

// Refs returns the current reference count.
func (v *Value) Refs() int32 {
	return v.refs.Load()
}

// Retain increments the reference count and returns v.
func Retain(v *Value) *Value {
	v.refs.Add(1)
	return v
}

// Release decrements the reference count and destroys v when it reaches zero.
// Releasing a value that has already been destroyed panics.
func Release(v *Value) {
	n := v.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("object: release of destroyed " + v.typ.String() + " value")
	}
	destroy(v)
}

// destroy frees v and releases every child it owns. The reference count of v
// is already zero and is not touched.
func destroy(v *Value) {
	switch v.typ {
	case TypeDictionary:
		for _, e := range v.dict.entries {
			Release(e.value)
		}
		v.dict = nil
	case TypeArray:
		for _, child := range v.arr {
			Release(child)
		}
		v.arr = nil
	case TypeData:
		v.data = nil
	case TypeString, TypeError:
		v.s = ""
	}
	v.typ = TypeInvalid
	live.Add(-1)
}

func (v *Value) Bool() bool {
	if v.Type() != TypeBool {
		return false
	}
	return v.b
}

func (v *Value) Int64() int64 {
	if v.Type() != TypeInt64 {
		return 0
	}
	return v.i
}

func (v *Value) Uint64() uint64 {
	if v.Type() != TypeUint64 {
		return 0
	}
	return v.u
}

func (v *Value) Double() float64 {
	if v.Type() != TypeDouble {
		return 0
	}
	return v.f
}

func (v *Value) Date() time.Time {
	if v.Type() != TypeDate {
		return time.Time{}
	}
	return v.t
}

// StringValue returns the payload of a string value.
func (v *Value) StringValue() string {
	if v.Type() != TypeString {
		return ""
	}
	return v.s
}

func (v *Value) UUID() uuid.UUID {
	if v.Type() != TypeUUID {
		return uuid.Nil
	}
	return v.id
}

// Data returns the owned byte buffer. Callers must not modify it.
func (v *Value) Data() []byte {
	if v.Type() != TypeData {
		return nil
	}
	return v.data
}

func (v *Value) Endpoint() uint64 {
	if v.Type() != TypeEndpoint {
		return 0
	}
	return v.u
}

func (v *Value) FD() int {
	if v.Type() != TypeFD {
		return -1
	}
	return int(v.i)
}

// ErrorMessage returns the message carried by an error value.
func (v *Value) ErrorMessage() string {
	if v.Type() != TypeError {
		return ""
	}
	return v.s
}
