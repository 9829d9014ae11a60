package chunkpool

import (
	"sync"
	"testing"
)

func TestAcquireReturnsSizedBuffer(t *testing.T) {
	t.Parallel()
	p := New()

	tests := []struct {
		name      string
		request   int
		expectCap int
	}{
		{name: "small", request: 100, expectCap: 512},
		{name: "exact", request: 4096, expectCap: 4096},
		{name: "oversized", request: 1 << 20, expectCap: 1 << 20},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf, err := p.Acquire(tc.request)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			if buf.Cap() != tc.expectCap {
				t.Fatalf("expected cap=%d, got %d", tc.expectCap, buf.Cap())
			}
		})
	}
}

func TestReleaseReusesBuffer(t *testing.T) {
	t.Parallel()
	p := New()

	buf, err := p.Acquire(1000)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	buf.Bytes()[0] = 42
	ptr := &buf.Bytes()[0]
	buf.Release()

	if got := p.Stats().LiveBytes; got != 0 {
		t.Fatalf("expected live bytes 0 after release, got %d", got)
	}
	if got := p.Stats().PooledBytes; got == 0 {
		t.Fatalf("expected pooled bytes > 0 after release")
	}

	reused, err := p.Acquire(1000)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if &reused.Bytes()[0] != ptr {
		t.Fatalf("expected reused buffer to come from the free list")
	}
	for i, v := range reused.Bytes() {
		if v != 0 {
			t.Fatalf("expected zeroed buffer, found %d at %d", v, i)
		}
	}
}

func TestRetainDefersReleaseToLastReference(t *testing.T) {
	t.Parallel()
	p := New()

	buf, err := p.Acquire(512)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	buf.Retain() // decoder takes an aliasing view

	buf.Release() // chunk's own release
	if got := p.Stats().LiveBytes; got == 0 {
		t.Fatalf("expected buffer to still be live while decoder holds its view")
	}

	buf.Release() // decoder's release
	if got := p.Stats().LiveBytes; got != 0 {
		t.Fatalf("expected live bytes 0 once all references dropped, got %d", got)
	}
}

func TestCapBreachFailsAllocation(t *testing.T) {
	t.Parallel()
	p := New(WithCapBytes(1024), WithSizeClasses([]int{1024}))

	first, err := p.Acquire(1024)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := p.Acquire(1024); err == nil {
		t.Fatalf("expected cap breach to fail second acquire")
	}
	first.Release()
	if _, err := p.Acquire(1024); err != nil {
		t.Fatalf("expected acquire to succeed after release, got %v", err)
	}
}

func TestConcurrentAcquireRelease(t *testing.T) {
	t.Parallel()
	p := New()
	var wg sync.WaitGroup

	worker := func(size int) {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			buf, err := p.Acquire(size)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			for j := range buf.Bytes() {
				buf.Bytes()[j] = byte(i)
			}
			buf.Release()
		}
	}

	for _, size := range []int{64, 2048, 8192, 40000} {
		wg.Add(1)
		go worker(size)
	}
	wg.Wait()

	if got := p.Stats().LiveBytes; got != 0 {
		t.Fatalf("expected live bytes 0 after all workers finish, got %d", got)
	}
}
