package session

import (
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager(time.Minute, time.Minute)
	s := m.Create("nvda", "hi_IN-pratham-medium", 50, 100, 50)
	if s.ID == "" || s.Status != StatusActive {
		t.Fatalf("created session = %+v", s)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ClientName != "nvda" || got.VoiceID != "hi_IN-pratham-medium" || got.Rate != 50 {
		t.Fatalf("got %+v", got)
	}

	if _, err := m.Get("missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager(time.Minute, time.Minute)
	s := m.Create("nvda", "v", 50, 100, 50)
	got, _ := m.Get(s.ID)
	got.Rate = 99
	again, _ := m.Get(s.ID)
	if again.Rate != 50 {
		t.Fatal("Get leaked a mutable reference")
	}
}

func TestUpdateAndCounters(t *testing.T) {
	m := NewManager(time.Minute, time.Minute)
	s := m.Create("nvda", "v", 50, 100, 50)

	if err := m.Update(s.ID, func(s *Session) { s.VoiceID = "ta_IN-vani-medium" }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	m.CountUtterance(s.ID)
	m.CountUtterance(s.ID)
	m.CountCancel(s.ID)

	got, _ := m.Get(s.ID)
	if got.VoiceID != "ta_IN-vani-medium" || got.Utterances != 2 || got.Cancellations != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestEndAndActiveCount(t *testing.T) {
	m := NewManager(time.Minute, time.Minute)
	a := m.Create("a", "v", 50, 100, 50)
	m.Create("b", "v", 50, 100, 50)
	if m.ActiveCount() != 2 {
		t.Fatalf("active = %d", m.ActiveCount())
	}

	ended, err := m.End(a.ID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != StatusEnded || ended.EndedAt.IsZero() {
		t.Fatalf("ended = %+v", ended)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("active = %d after end", m.ActiveCount())
	}
	// Ended sessions stay listed inside the retention window.
	if len(m.List()) != 2 {
		t.Fatalf("list = %d", len(m.List()))
	}
}

func TestSweepExpiresAndRetains(t *testing.T) {
	m := NewManager(time.Millisecond, time.Millisecond)
	var expired []*Session
	m.SetExpireHook(func(s *Session) { expired = append(expired, s) })

	s := m.Create("a", "v", 50, 100, 50)
	time.Sleep(5 * time.Millisecond)
	m.sweep()

	if len(expired) != 1 || expired[0].ID != s.ID {
		t.Fatalf("expired = %+v", expired)
	}
	got, _ := m.Get(s.ID)
	if got.Status != StatusEnded {
		t.Fatalf("status = %v", got.Status)
	}

	// Second sweep past retention drops it entirely.
	time.Sleep(5 * time.Millisecond)
	m.sweep()
	if _, err := m.Get(s.ID); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound after retention", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	m := NewManager(time.Minute, time.Minute)
	m.Create("a", "v", 50, 100, 50)
	time.Sleep(2 * time.Millisecond)
	b := m.Create("b", "v", 50, 100, 50)

	list := m.List()
	if len(list) != 2 || list[0].ID != b.ID {
		t.Fatalf("list order wrong: %+v", list)
	}
}
