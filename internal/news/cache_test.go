package news

import (
	"testing"
	"time"
)

func itemAt(guid string, t time.Time) Item {
	return Item{GUID: guid, Title: guid, PublishedAt: t}
}

func TestWindowAdmitMonotonic(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(10)

	if !w.Admit(itemAt("a", base)) {
		t.Fatal("first item rejected")
	}
	if got := w.LatestSeen(); !got.Equal(base) {
		t.Fatalf("watermark = %v, want %v", got, base)
	}

	// Same timestamp and older timestamps are both rejected.
	if w.Admit(itemAt("b", base)) {
		t.Error("item at watermark admitted")
	}
	if w.Admit(itemAt("c", base.Add(-time.Minute))) {
		t.Error("item before watermark admitted")
	}
	if got := w.LatestSeen(); !got.Equal(base) {
		t.Fatalf("watermark moved to %v after rejections", got)
	}

	if !w.Admit(itemAt("d", base.Add(time.Second))) {
		t.Error("newer item rejected")
	}
	if got := w.LatestSeen(); !got.Equal(base.Add(time.Second)) {
		t.Fatalf("watermark = %v, want %v", got, base.Add(time.Second))
	}
}

func TestWindowAdmitIdempotent(t *testing.T) {
	t.Parallel()

	w := NewWindow(10)
	it := itemAt("a", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	if !w.Admit(it) {
		t.Fatal("first admit rejected")
	}
	if w.Admit(it) {
		t.Error("second admit of the same item accepted")
	}
	if w.Len() != 1 {
		t.Fatalf("len = %d, want 1", w.Len())
	}
}

func TestWindowEviction(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	w := NewWindow(3)
	for i := 0; i < 5; i++ {
		w.Admit(itemAt(string(rune('a'+i)), base.Add(time.Duration(i)*time.Second)))
	}

	got := w.Recent()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"c", "d", "e"}
	for i, g := range got {
		if g.GUID != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, g.GUID, want[i])
		}
	}
}

func TestWindowDefaultCapacity(t *testing.T) {
	t.Parallel()

	w := NewWindow(0)
	if w.capacity != DefaultWindowSize {
		t.Fatalf("capacity = %d, want %d", w.capacity, DefaultWindowSize)
	}
}
