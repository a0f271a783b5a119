package tracking

type slot struct {
	obj     TrackedObject
	present bool
}

// Pool is a fixed-capacity arena of object slots for one direction. An
// object keeps its slot index for its whole life.
type Pool struct {
	dir   Direction
	slots []slot
}

// NewPool returns an empty pool with the given capacity.
func NewPool(dir Direction, capacity int) *Pool {
	return &Pool{dir: dir, slots: make([]slot, capacity)}
}

// Direction returns the direction the pool tracks.
func (p *Pool) Direction() Direction { return p.dir }

// Cap returns the number of slots.
func (p *Pool) Cap() int { return len(p.slots) }

// Len returns the number of occupied slots.
func (p *Pool) Len() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].present {
			n++
		}
	}
	return n
}

// Get returns the object at slot i, or nil when the slot is empty.
func (p *Pool) Get(i int) *TrackedObject {
	if i < 0 || i >= len(p.slots) || !p.slots[i].present {
		return nil
	}
	return &p.slots[i].obj
}

// Put stores obj in slot i, replacing whatever was there.
func (p *Pool) Put(i int, obj TrackedObject) {
	p.slots[i] = slot{obj: obj, present: true}
}

// Delete empties slot i.
func (p *Pool) Delete(i int) {
	if i < 0 || i >= len(p.slots) {
		return
	}
	p.slots[i] = slot{}
}

// Clear empties every slot.
func (p *Pool) Clear() {
	for i := range p.slots {
		p.slots[i] = slot{}
	}
}

// Resize reallocates the pool with a new capacity, dropping every object.
func (p *Pool) Resize(capacity int) {
	p.slots = make([]slot, capacity)
}

// FreeSlot returns the first empty slot at or after start, else the first
// empty slot from index 0, else -1.
func (p *Pool) FreeSlot(start int) int {
	if start < 0 {
		start = 0
	}
	for i := start; i < len(p.slots); i++ {
		if !p.slots[i].present {
			return i
		}
	}
	for i := 0; i < start && i < len(p.slots); i++ {
		if !p.slots[i].present {
			return i
		}
	}
	return -1
}

// Objects returns pointers to every present object, in slot order, along
// with their slot indices. The pointers stay valid until the slot changes.
func (p *Pool) Objects() ([]int, []*TrackedObject) {
	var idx []int
	var objs []*TrackedObject
	for i := range p.slots {
		if p.slots[i].present {
			idx = append(idx, i)
			objs = append(objs, &p.slots[i].obj)
		}
	}
	return idx, objs
}

// Snapshot returns copies of the present objects.
func (p *Pool) Snapshot() []TrackedObject {
	var out []TrackedObject
	for i := range p.slots {
		if p.slots[i].present {
			out = append(out, p.slots[i].obj)
		}
	}
	return out
}
