package object

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/ipcwire/internal/testutil/testlog"
	"github.com/google/uuid"
)

func sampleDictionary() *Value {
	dict := NewDictionary()
	dict.Set("count", NewInt64(5))
	flags := NewArray()
	flags.Append(NewBool(true))
	flags.Append(NewBool(false))
	dict.Set("flags", flags)
	return dict
}

func TestRetainReleaseKeepsValueAlive(t *testing.T) {
	testlog.Start(t)
	base := Live()
	v := NewString("alive")
	const n = 5
	for i := 0; i < n; i++ {
		if got := Retain(v); got != v {
			t.Fatalf("retain returned a different value")
		}
	}
	for i := 0; i < n; i++ {
		Release(v)
	}
	if v.Type() != TypeString || v.Refs() != 1 {
		t.Fatalf("value destroyed early: type=%s refs=%d", v.Type(), v.Refs())
	}
	Release(v)
	if v.Type() != TypeInvalid {
		t.Fatalf("expected destroyed value, got type=%s", v.Type())
	}
	if got := Live(); got != base {
		t.Fatalf("live count=%d want %d", got, base)
	}
}

func TestSingleReleaseDestroys(t *testing.T) {
	testlog.Start(t)
	base := Live()
	v := NewInt64(7)
	if v.Refs() != 1 {
		t.Fatalf("fresh value refs=%d", v.Refs())
	}
	Release(v)
	if v.Type() != TypeInvalid || Live() != base {
		t.Fatalf("value not destroyed: type=%s live=%d base=%d", v.Type(), Live(), base)
	}
}

func TestReleaseOfDestroyedValuePanics(t *testing.T) {
	testlog.Start(t)
	v := NewBool(true)
	Release(v)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double release")
		}
	}()
	Release(v)
}

func TestRecursiveTeardownReleasesEveryDescendant(t *testing.T) {
	testlog.Start(t)
	base := Live()

	root := NewDictionary()
	inner := NewDictionary()
	inner.Set("name", NewString("leaf"))
	inner.Set("id", NewUUID(uuid.New()))
	list := NewArray()
	for i := 0; i < 4; i++ {
		nested := NewArray()
		nested.Append(NewUint64(uint64(i)))
		nested.Append(NewData([]byte{byte(i)}))
		list.Append(nested)
	}
	inner.Set("list", list)
	root.Set("inner", inner)
	root.Set("when", NewDate(time.Unix(1700000000, 0)))

	// root, inner, name, id, list, 4*(nested + 2 leaves), when
	if got := Live() - base; got != 18 {
		t.Fatalf("live delta=%d want 18", got)
	}
	Release(root)
	if got := Live(); got != base {
		t.Fatalf("leak after teardown: live=%d base=%d", got, base)
	}
}

func TestRetainedChildSurvivesParent(t *testing.T) {
	testlog.Start(t)
	base := Live()
	dict := NewDictionary()
	child := NewString("kept")
	dict.Set("k", Retain(child))
	Release(dict)
	if child.StringValue() != "kept" {
		t.Fatalf("retained child destroyed with parent")
	}
	Release(child)
	if Live() != base {
		t.Fatalf("leak: live=%d base=%d", Live(), base)
	}
}

func TestConcurrentRetainRelease(t *testing.T) {
	testlog.Start(t)
	base := Live()
	v := sampleDictionary()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				Retain(v)
				Release(v)
			}
		}()
	}
	wg.Wait()
	if v.Refs() != 1 {
		t.Fatalf("refs=%d after balanced concurrent use", v.Refs())
	}
	Release(v)
	if Live() != base {
		t.Fatalf("leak: live=%d base=%d", Live(), base)
	}
}

func TestDictionarySetReplacesInPlace(t *testing.T) {
	testlog.Start(t)
	base := Live()
	dict := NewDictionary()
	dict.Set("a", NewInt64(1))
	dict.Set("b", NewInt64(2))
	dict.Set("a", NewInt64(3))

	keys := dict.Keys()
	if strings.Join(keys, ",") != "a,b" {
		t.Fatalf("unexpected keys %v", keys)
	}
	got, ok := dict.Get("a")
	if !ok || got.Int64() != 3 {
		t.Fatalf("expected replaced value 3, got %v ok=%v", got.Int64(), ok)
	}
	if !dict.Remove("a") || dict.Len() != 1 {
		t.Fatalf("remove failed, len=%d", dict.Len())
	}
	if b, ok := dict.Get("b"); !ok || b.Int64() != 2 {
		t.Fatalf("index not rebuilt after remove")
	}
	Release(dict)
	if Live() != base {
		t.Fatalf("leak: live=%d base=%d", Live(), base)
	}
}

func TestContainerOperationOnWrongTypePanics(t *testing.T) {
	testlog.Start(t)
	v := NewInt64(1)
	defer Release(v)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic appending to int64")
		}
	}()
	v.Append(NewNull())
}

func TestScalarGettersOnMismatchReturnZero(t *testing.T) {
	testlog.Start(t)
	v := NewString("x")
	defer Release(v)
	if v.Int64() != 0 || v.Bool() || v.FD() != -1 || v.UUID() != uuid.Nil || v.Data() != nil {
		t.Fatalf("mismatched getters should return zero values")
	}
}

func TestEqual(t *testing.T) {
	testlog.Start(t)
	a := sampleDictionary()
	b := sampleDictionary()
	defer Release(a)
	defer Release(b)
	if !Equal(a, b) {
		t.Fatalf("identical graphs not equal")
	}

	c := NewDictionary()
	defer Release(c)
	flags := NewArray()
	flags.Append(NewBool(true))
	flags.Append(NewBool(false))
	c.Set("flags", flags)
	c.Set("count", NewInt64(5))
	if !Equal(a, c) {
		t.Fatalf("key order must not affect equality")
	}
	c.Set("count", NewInt64(6))
	if Equal(a, c) {
		t.Fatalf("differing values compared equal")
	}
	c.Remove("count")
	c.Set("other", NewInt64(5))
	if Equal(a, c) {
		t.Fatalf("differing keys compared equal")
	}

	i := NewInt64(5)
	u := NewUint64(5)
	defer Release(i)
	defer Release(u)
	if Equal(i, u) {
		t.Fatalf("int64 and uint64 must not compare equal")
	}
}
