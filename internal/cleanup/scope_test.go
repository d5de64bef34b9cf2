package cleanup

import (
	"errors"
	"testing"
)

func TestCloseRunsReleasesLIFO(t *testing.T) {
	s := NewScope(nil)

	var order []string
	s.Register("first", func() error { order = append(order, "first"); return nil })
	s.Register("second", func() error { order = append(order, "second"); return nil })
	s.Register("third", func() error { order = append(order, "third"); return nil })

	s.Close()

	if len(order) != 3 || order[0] != "third" || order[1] != "second" || order[2] != "first" {
		t.Fatalf("Close() release order = %v, want LIFO", order)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := NewScope(nil)

	count := 0
	s.Register("resource", func() error { count++; return nil })

	s.Close()
	s.Close()

	if count != 1 {
		t.Fatalf("release ran %d times, want exactly once", count)
	}
}

func TestFailedReleaseDoesNotStopOthers(t *testing.T) {
	s := NewScope(nil)

	released := false
	s.Register("innocent", func() error { released = true; return nil })
	s.Register("failing", func() error { return errors.New("boom") })

	s.Close()

	if !released {
		t.Fatalf("a failing release blocked the remaining releases")
	}
}

func TestRegisterAfterCloseReleasesImmediately(t *testing.T) {
	s := NewScope(nil)
	s.Close()

	ran := false
	s.Register("late", func() error { ran = true; return nil })

	if !ran {
		t.Fatalf("late registration leaked its resource")
	}
	if s.Len() != 0 {
		t.Fatalf("late registration stayed queued")
	}
}
