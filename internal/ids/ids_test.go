package ids

import (
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected lengths: %d/%d", len(a), len(b))
	}
	if !(a < b) {
		t.Fatalf("ids not monotonic: %s >= %s", a, b)
	}
}

func TestNewAtOrdersByTimestamp(t *testing.T) {
	base := time.Now()
	early := NewAt(base)
	late := NewAt(base.Add(time.Minute))
	if !(early < late) {
		t.Fatalf("timestamp ordering violated: %s >= %s", early, late)
	}
}
