package observe

import (
	"sync"
	"testing"
	"time"
)

func TestStats_Empty(t *testing.T) {
	t.Parallel()
	s := NewStats(0)
	if got := s.Snapshot(); len(got) != 0 {
		t.Errorf("Snapshot = %+v, want empty", got)
	}
	if _, ok := s.Tool("echo"); ok {
		t.Error("Tool(echo) found on empty stats")
	}
}

func TestStats_Percentiles(t *testing.T) {
	t.Parallel()
	s := NewStats(100)
	for i := 1; i <= 100; i++ {
		s.Record("echo", time.Duration(i)*time.Millisecond, "")
	}

	st, ok := s.Tool("echo")
	if !ok {
		t.Fatal("echo not found")
	}
	if st.Calls != 100 || st.Window != 100 {
		t.Errorf("Calls/Window = %d/%d, want 100/100", st.Calls, st.Window)
	}
	if st.P50Millis != 51 {
		t.Errorf("P50 = %v, want 51", st.P50Millis)
	}
	if st.P99Millis != 99 {
		t.Errorf("P99 = %v, want 99", st.P99Millis)
	}
	if st.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want 0", st.ErrorRate)
	}
}

func TestStats_ErrorsLeaveWindow(t *testing.T) {
	t.Parallel()
	s := NewStats(4)

	s.Record("run_python", time.Millisecond, "HandlerTimeout")
	s.Record("run_python", time.Millisecond, "HandlerFailure")
	s.Record("run_python", time.Millisecond, "")
	s.Record("run_python", time.Millisecond, "")

	st, _ := s.Tool("run_python")
	if st.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5", st.ErrorRate)
	}
	if st.LastError != "HandlerFailure" {
		t.Errorf("LastError = %q", st.LastError)
	}

	// Two successes push both failures out of the window.
	s.Record("run_python", time.Millisecond, "")
	s.Record("run_python", time.Millisecond, "")

	st, _ = s.Tool("run_python")
	if st.ErrorRate != 0 {
		t.Errorf("ErrorRate after wrap = %v, want 0", st.ErrorRate)
	}
	if st.Calls != 6 || st.Window != 4 {
		t.Errorf("Calls/Window = %d/%d, want 6/4", st.Calls, st.Window)
	}
}

func TestStats_SnapshotSorted(t *testing.T) {
	t.Parallel()
	s := NewStats(10)
	for _, name := range []string{"write_file", "echo", "read_file"} {
		s.Record(name, time.Millisecond, "")
	}

	snap := s.Snapshot()
	want := []string{"echo", "read_file", "write_file"}
	if len(snap) != len(want) {
		t.Fatalf("len = %d, want %d", len(snap), len(want))
	}
	for i, st := range snap {
		if st.Tool != want[i] {
			t.Errorf("snap[%d] = %q, want %q", i, st.Tool, want[i])
		}
	}
}

func TestStats_Concurrent(t *testing.T) {
	t.Parallel()
	s := NewStats(50)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				failure := ""
				if (g+i)%5 == 0 {
					failure = "HandlerFailure"
				}
				s.Record("echo", time.Duration(i)*time.Microsecond, failure)
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	st, _ := s.Tool("echo")
	if st.Calls != 800 {
		t.Errorf("Calls = %d, want 800", st.Calls)
	}
	if st.ErrorRate < 0 || st.ErrorRate > 1 {
		t.Errorf("ErrorRate = %v out of range", st.ErrorRate)
	}
}
