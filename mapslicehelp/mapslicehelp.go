package mapslicehelp

import (
	"github.com/umpc/go-sortedmap"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/constraints"
)

// Fold threads acc through f for every element in order, stopping at the first error.
func Fold[T, A any](elements []T, acc A, f func(A, T) (A, error)) (A, error) {
	var err error
	for _, element := range elements {
		acc, err = f(acc, element)
		if err != nil {
			return acc, err
		}
	}
	return acc, nil
}

func OrderedMapKeys[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []K {
	l := make([]K, m.Len())
	i := 0
	for p := m.Oldest(); p != nil; p = p.Next() {
		l[i] = p.Key
		i++
	}
	return l
}

// MergeOrdered appends the pairs of src to dst, skipping keys dst already holds.
// Returns the skipped keys.
func MergeOrdered[K comparable, V any](dst, src *orderedmap.OrderedMap[K, V]) (collisions []K) {
	for p := src.Oldest(); p != nil; p = p.Next() {
		if _, present := dst.Get(p.Key); present {
			collisions = append(collisions, p.Key)
			continue
		}
		dst.Set(p.Key, p.Value)
	}
	return collisions
}

type rankEntry[K, V constraints.Ordered] struct {
	key K
	val V
}

// RankByValue returns the keys of m ordered by value, ties broken by key.
func RankByValue[K, V constraints.Ordered](m map[K]V, descending bool) []K {
	sm := sortedmap.New(len(m), func(x, y interface{}) bool {
		a, b := x.(rankEntry[K, V]), y.(rankEntry[K, V])
		if a.val != b.val {
			if descending {
				return a.val > b.val
			}
			return a.val < b.val
		}
		return a.key < b.key
	})
	for k, v := range m {
		sm.Insert(k, rankEntry[K, V]{key: k, val: v})
	}
	ranked := make([]K, 0, len(m))
	for _, k := range sm.Keys() {
		ranked = append(ranked, k.(K))
	}
	return ranked
}
