package quickchat

// DefaultSeenCap is the size past which the seen set is emptied.
const DefaultSeenCap = 1000

// SeenSet remembers applied event ids. It is not an LRU: once it grows past
// its cap it is cleared wholesale, which is safe while the server hands out
// increasing ids and never replays old ones.
type SeenSet struct {
	cap int
	ids map[int64]struct{}
}

func NewSeenSet(cap int) *SeenSet {
	if cap <= 0 {
		cap = DefaultSeenCap
	}
	return &SeenSet{cap: cap, ids: make(map[int64]struct{})}
}

func (s *SeenSet) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Add records id. It reports true when the insert pushed the set past its cap
// and the set was cleared.
func (s *SeenSet) Add(id int64) bool {
	s.ids[id] = struct{}{}
	if len(s.ids) > s.cap {
		s.ids = make(map[int64]struct{})
		return true
	}
	return false
}

func (s *SeenSet) Len() int { return len(s.ids) }

func (s *SeenSet) Reset() { s.ids = make(map[int64]struct{}) }
