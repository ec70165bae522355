package attendance

import (
	"cmp"
	"iter"
)

const pageSize = 100

// paged turns a keyset query into a lazy sequence. Each call to the returned
// sequence starts again from the zero key, so sequences are restartable.
// No cursor is held open while the consumer runs.
func paged[T any, K cmp.Ordered](fetch func(after K, limit int) ([]T, error), key func(T) K) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var after K
		for {
			batch, err := fetch(after, pageSize)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range batch {
				if !yield(item, nil) {
					return
				}
			}
			if len(batch) < pageSize {
				return
			}
			after = key(batch[len(batch)-1])
		}
	}
}

func collectIDs(seq iter.Seq2[uint, error]) (map[uint]struct{}, []uint, error) {
	set := map[uint]struct{}{}
	var ordered []uint
	for id, err := range seq {
		if err != nil {
			return nil, nil, err
		}
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		ordered = append(ordered, id)
	}
	return set, ordered, nil
}
