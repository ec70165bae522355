package attendance

import (
	"errors"
	"testing"
)

func TestPagedWalksEveryPage(t *testing.T) {
	var calls int
	data := make([]int, 2*pageSize+7)
	for i := range data {
		data[i] = i + 1
	}
	fetch := func(after, limit int) ([]int, error) {
		calls++
		var out []int
		for _, v := range data {
			if v > after && len(out) < limit {
				out = append(out, v)
			}
		}
		return out, nil
	}
	seq := paged(fetch, func(v int) int { return v })

	for round := 0; round < 2; round++ {
		calls = 0
		n := 0
		for v, err := range seq {
			if err != nil {
				t.Fatal(err)
			}
			n++
			if v != n {
				t.Fatalf("round %d: got %d at position %d", round, v, n)
			}
		}
		if n != len(data) || calls != 3 {
			t.Fatalf("round %d: n=%d calls=%d", round, n, calls)
		}
	}
}

func TestPagedStopsEarlyAndReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	fetch := func(after, limit int) ([]int, error) {
		calls++
		if after > 0 {
			return nil, boom
		}
		out := make([]int, limit)
		for i := range out {
			out[i] = i + 1
		}
		return out, nil
	}
	seq := paged(fetch, func(v int) int { return v })

	for v := range seq {
		if v == 3 {
			break
		}
	}
	if calls != 1 {
		t.Fatalf("early break fetched %d pages", calls)
	}

	var last error
	for _, err := range seq {
		last = err
	}
	if !errors.Is(last, boom) {
		t.Fatalf("last err = %v, want boom", last)
	}
}

func TestCollectIDsDedupes(t *testing.T) {
	seq := func(yield func(uint, error) bool) {
		for _, id := range []uint{3, 1, 3, 2} {
			if !yield(id, nil) {
				return
			}
		}
	}
	set, ordered, err := collectIDs(seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 3 || len(ordered) != 3 || ordered[0] != 3 || ordered[2] != 2 {
		t.Fatalf("set=%v ordered=%v", set, ordered)
	}
}
