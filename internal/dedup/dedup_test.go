package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestAcceptOncePerID(t *testing.T) {
	d := New(10)
	if !d.Accept("wamid.1") {
		t.Fatal("first Accept should return true")
	}
	if d.Accept("wamid.1") {
		t.Error("second Accept of same id should return false")
	}
	if !d.Accept("wamid.2") {
		t.Error("distinct id should be accepted")
	}
}

func TestAcceptEmptyID(t *testing.T) {
	d := New(10)
	if d.Accept("") {
		t.Error("empty id must never be accepted")
	}
}

func TestBoundedFIFOEviction(t *testing.T) {
	d := New(3)
	for i := 0; i < 3; i++ {
		d.Accept(fmt.Sprintf("id-%d", i))
	}
	// Exceed capacity; id-0 is the FIFO victim.
	d.Accept("id-3")
	if d.Len() != 3 {
		t.Errorf("expected capacity-bounded size 3, got %d", d.Len())
	}
	if !d.Accept("id-0") {
		t.Error("evicted id should be accepted again")
	}
	if d.Accept("id-3") {
		t.Error("retained id should still be rejected")
	}
}

func TestDefaultCapacity(t *testing.T) {
	d := New(0)
	if d.capacity != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, d.capacity)
	}
}

func TestConcurrentAcceptAdmitsOnce(t *testing.T) {
	d := New(100)
	const goroutines = 32
	var wg sync.WaitGroup
	admitted := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- d.Accept("contended-id")
		}()
	}
	wg.Wait()
	close(admitted)
	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one goroutine to be admitted, got %d", count)
	}
}
