package ids

func MaxU64(a, b uint64) uint64 {
	if a >= b {
		return a
	}
	return b
}

// Seq hands out monotonically increasing identifiers starting at 0.
type Seq struct {
	next uint64
}

func (s *Seq) Next() uint64 {
	id := s.next
	s.next++
	return id
}

// Peek returns the identifier the next call to Next will produce.
func (s *Seq) Peek() uint64 { return s.next }

// Observe records that id is already taken, so Next never reissues it.
func (s *Seq) Observe(id uint64) {
	s.next = MaxU64(s.next, id+1)
}

// Reset sets the next identifier; used when restoring a snapshot.
func (s *Seq) Reset(next uint64) { s.next = next }
