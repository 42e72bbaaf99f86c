// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"errors"
	"sync"
	"testing"

	"go.astrophena.name/feedsync/internal/testutil"
)

func TestProtected(t *testing.T) {
	t.Parallel()

	t.Run("read access", func(t *testing.T) {
		p := Protect(42)
		var result int
		p.RAccess(func(val int) { result = val })
		testutil.AssertEqual(t, result, 42)
	})

	t.Run("concurrent access", func(t *testing.T) {
		var i int
		p := Protect(&i)
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Access(func(val *int) { *val += 1 })
			}()
		}
		wg.Wait()

		var result int
		p.RAccess(func(val *int) { result = *val })
		testutil.AssertEqual(t, result, 100)
	})
}

func TestLazy(t *testing.T) {
	t.Parallel()

	var (
		l     Lazy[int]
		count int
	)
	f := func() int {
		count++
		return count
	}
	testutil.AssertEqual(t, l.Get(f), 1)
	testutil.AssertEqual(t, l.Get(f), 1)
	testutil.AssertEqual(t, count, 1)

	var l2 Lazy[string]
	_, err := l2.GetErr(func() (string, error) { return "", errors.New("boom") })
	if err == nil {
		t.Fatal("err must not be nil")
	}
	_, err = l2.GetErr(func() (string, error) { return "ok", nil })
	if err == nil {
		t.Fatal("error must be remembered")
	}
}

func TestMap(t *testing.T) {
	t.Parallel()

	var m Map[string, int]
	if _, ok := m.Load("missing"); ok {
		t.Fatal("zero Map must be empty")
	}
	m.Store("a", 1)
	m.Store("b", 2)
	m.Delete("b")

	got := map[string]int{}
	m.Range(func(k string, v int) bool {
		got[k] = v
		return true
	})
	testutil.AssertEqual(t, got, map[string]int{"a": 1})
}
