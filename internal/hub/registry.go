package hub

// table is a fixed-capacity slot array with generation-tagged references.
// A slot is either empty or holds a value; removing a value bumps the slot's
// generation so old references stop resolving.
type table[T any] struct {
	slots []tableSlot[T]
}

type tableSlot[T any] struct {
	gen  uint32
	used bool
	val  T
}

func newTable[T any](capacity int) table[T] {
	return table[T]{slots: make([]tableSlot[T], capacity)}
}

// insert stores v in the first empty slot.
func (t *table[T]) insert(v T) (slotRef, bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.used {
			continue
		}
		if s.gen == 0 {
			s.gen = 1
		}
		s.used = true
		s.val = v
		return slotRef{index: uint16(i), gen: s.gen}, true
	}
	return slotRef{}, false
}

// get returns the value r refers to, or nil if r is stale.
func (t *table[T]) get(r slotRef) *T {
	if !r.valid() || int(r.index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[r.index]
	if !s.used || s.gen != r.gen {
		return nil
	}
	return &s.val
}

func (t *table[T]) remove(r slotRef) bool {
	if t.get(r) == nil {
		return false
	}
	s := &t.slots[r.index]
	var zero T
	s.val = zero
	s.used = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	return true
}

// find returns the first live slot for which match is true.
func (t *table[T]) find(match func(*T) bool) (slotRef, *T) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.used && match(&s.val) {
			return slotRef{index: uint16(i), gen: s.gen}, &s.val
		}
	}
	return slotRef{}, nil
}

// each visits live slots in index order.
func (t *table[T]) each(fn func(slotRef, *T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.used {
			fn(slotRef{index: uint16(i), gen: s.gen}, &s.val)
		}
	}
}

func (t *table[T]) len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].used {
			n++
		}
	}
	return n
}

// reset empties the table and resizes it to capacity. Every slot starts
// past the highest generation seen, so references handed out before the
// reset stay stale.
func (t *table[T]) reset(capacity int) {
	var next uint32
	for i := range t.slots {
		s := &t.slots[i]
		if g := s.gen + 1; g > next {
			next = g
		}
	}
	if next == 0 {
		next = 1
	}
	t.slots = make([]tableSlot[T], capacity)
	for i := range t.slots {
		t.slots[i].gen = next
	}
}
