package chat

import (
	"fmt"
	"testing"
)

func TestBoundedMemoryDropsOldest(t *testing.T) {
	m := NewBoundedMemory(3)
	var ids []EntryID
	for i := 1; i <= 5; i++ {
		ids = append(ids, m.Append(Entry{Author: User, Text: fmt.Sprintf("msg %d", i)}))
	}

	got := m.Entries()
	if len(got) != 3 {
		t.Fatalf("len(Entries()) = %d, want 3", len(got))
	}
	for i, want := range []string{"msg 3", "msg 4", "msg 5"} {
		if got[i].Text != want {
			t.Errorf("Entries()[%d].Text = %q, want %q", i, got[i].Text, want)
		}
	}

	// A dropped entry can no longer be replaced or removed.
	m.Replace(ids[0], Entry{Author: Bot, Text: "late"})
	m.Remove(ids[1])
	if n := len(m.Entries()); n != 3 {
		t.Errorf("len(Entries()) after touching dropped ids = %d, want 3", n)
	}

	m.Replace(ids[4], Entry{Author: Bot, Text: "updated"})
	if got := m.Entries()[2].Text; got != "updated" {
		t.Errorf("Entries()[2].Text = %q, want %q", got, "updated")
	}
}

func TestMemoryUnboundedByDefault(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 250; i++ {
		m.Append(Entry{Author: User, Text: "x"})
	}
	if n := len(m.Entries()); n != 250 {
		t.Errorf("len(Entries()) = %d, want 250", n)
	}
}
