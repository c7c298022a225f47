package speech

import "testing"

func TestMarkerAllocatorStrictlyDecreasing(t *testing.T) {
	a := NewMarkerAllocator()
	prev := a.Next()
	if prev != -2 {
		t.Fatalf("first id = %d, want -2", prev)
	}
	for i := 0; i < 5; i++ {
		id := a.Next()
		if id >= prev {
			t.Fatalf("id %d should be below %d", id, prev)
		}
		prev = id
	}
}

func TestIsSynthetic(t *testing.T) {
	for id, want := range map[int]bool{-2: true, -40: true, 0: false, 7: false} {
		if got := IsSynthetic(id); got != want {
			t.Fatalf("IsSynthetic(%d) = %v, want %v", id, got, want)
		}
	}
}
