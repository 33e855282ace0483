package physics

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedWork(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var counter int64
	futures := make([]<-chan error, 0, 20)
	for i := 0; i < 20; i++ {
		futures = append(futures, p.Submit(func() error {
			atomic.AddInt64(&counter, 1)
			return nil
		}))
	}
	for _, f := range futures {
		if err := <-f; err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}
	if counter != 20 {
		t.Errorf("ran %d tasks, want 20", counter)
	}
}

func TestPoolSurfacesTaskError(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	boom := errors.New("boom")
	if err := <-p.Submit(func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	err := <-p.Submit(func() error { panic("bad constraint") })
	if err == nil {
		t.Fatal("panic was swallowed")
	}

	// The worker must survive and keep serving.
	if err := <-p.Submit(func() error { return nil }); err != nil {
		t.Errorf("pool unusable after panic: %v", err)
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()

	if err := <-p.Submit(func() error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("got %v, want ErrPoolClosed", err)
	}
}

func TestPoolCloseIsIdempotent(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close()
}

func TestPoolCloseWaitsForInFlight(t *testing.T) {
	p := NewPool(1)

	release := make(chan struct{})
	started := make(chan struct{})
	done := p.Submit(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a task was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-closed
	if err := <-done; err != nil {
		t.Errorf("in-flight task failed: %v", err)
	}
}

func TestPoolStats(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	for i := 0; i < 5; i++ {
		<-p.Submit(func() error { return nil })
	}

	st := p.Stats()
	if st.Workers != 3 {
		t.Errorf("workers = %d, want 3", st.Workers)
	}
	if st.Completed != 5 {
		t.Errorf("completed = %d, want 5", st.Completed)
	}
}
