package journal

import (
	"sync"
	"testing"
)

func TestPushAndGet(t *testing.T) {
	j := New(3)
	for _, p := range []string{"a", "b", "c", "d"} {
		j.Push(&Entry{Path: p})
	}
	if j.Len() != 3 || j.MaxSize() != 3 {
		t.Fatalf("Len = %d, MaxSize = %d", j.Len(), j.MaxSize())
	}
	e, err := j.Get(0)
	if err != nil || e.Path != "d" {
		t.Errorf("Get(0) = %v, %v", e, err)
	}
	e, err = j.Get(2)
	if err != nil || e.Path != "b" {
		t.Errorf("Get(2) = %v, %v", e, err)
	}
	if _, err := j.Get(3); err == nil {
		t.Error("Get past the end must fail")
	}
	if _, err := j.Get(-1); err == nil {
		t.Error("Get(-1) must fail")
	}
}

func TestList(t *testing.T) {
	j := New(10)
	if got := j.List(); len(got) != 0 {
		t.Errorf("empty List = %v", got)
	}
	j.Push(&Entry{Path: "a"})
	j.Push(&Entry{Path: "b"})
	got := j.List()
	if len(got) != 2 || got[0].Path != "b" || got[1].Path != "a" {
		t.Errorf("List = %v", got)
	}
}

func TestMinimumSize(t *testing.T) {
	j := New(0)
	j.Push(&Entry{Path: "a"})
	j.Push(&Entry{Path: "b"})
	if j.Len() != 1 {
		t.Errorf("Len = %d, want 1", j.Len())
	}
}

func TestConcurrentPush(t *testing.T) {
	j := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				j.Push(&Entry{Path: "p"})
				j.List()
			}
		}()
	}
	wg.Wait()
	if j.Len() != 50 {
		t.Errorf("Len = %d, want 50", j.Len())
	}
}
