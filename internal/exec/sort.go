package exec

import (
	"sort"

	"coredb/internal/plan"
)

// Sort materializes its child fully, orders it by a stable multi-key
// comparator, and emits in order (spec §4.11).
type Sort struct {
	child Iterator
	keys  []plan.OrderKey
	rows  []Tuple
	pos   int
}

func NewSort(child Iterator, keys []plan.OrderKey) *Sort {
	return &Sort{child: child, keys: keys}
}

func (s *Sort) Open() error {
	if err := s.child.Open(); err != nil {
		return err
	}
	for {
		t, ok, err := s.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.rows = append(s.rows, t)
	}

	var sortErr error
	sort.SliceStable(s.rows, func(i, j int) bool {
		less, err := s.less(s.rows[i], s.rows[j])
		if err != nil {
			sortErr = err
		}
		return less
	})
	return sortErr
}

func (s *Sort) less(a, b Tuple) (bool, error) {
	for _, k := range s.keys {
		av, _ := a.Row.Get(k.Col)
		bv, _ := b.Row.Get(k.Col)
		cmp, err := compareValues(av, bv)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			continue
		}
		if k.Descending {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
	return false, nil
}

func (s *Sort) Next() (Tuple, bool, error) {
	if s.pos >= len(s.rows) {
		return Tuple{}, false, nil
	}
	t := s.rows[s.pos]
	s.pos++
	return t, true, nil
}

func (s *Sort) Close() error { return s.child.Close() }

func (s *Sort) Cols() []string { return s.child.Cols() }
