package bribes

import "github.com/ethereum/go-ethereum/common"

// ActiveSet is the ordered set of active reward tokens of one pool wrapper. Removal moves
// the last token into the vacated slot, so positions of other tokens can change.
type ActiveSet struct {
	tokens []common.Address
	index  map[common.Address]int
}

func newActiveSet() *ActiveSet {
	return &ActiveSet{index: make(map[common.Address]int)}
}

func (s *ActiveSet) Len() int { return len(s.tokens) }

func (s *ActiveSet) At(i int) common.Address { return s.tokens[i] }

func (s *ActiveSet) Contains(token common.Address) bool {
	_, ok := s.index[token]
	return ok
}

// Tokens returns a copy of the set in slot order.
func (s *ActiveSet) Tokens() []common.Address {
	return append([]common.Address(nil), s.tokens...)
}

// add appends token and reports whether it was new.
func (s *ActiveSet) add(token common.Address) bool {
	if s.Contains(token) {
		return false
	}
	s.index[token] = len(s.tokens)
	s.tokens = append(s.tokens, token)
	return true
}

// remove swaps the last token into token's slot and shrinks the set.
func (s *ActiveSet) remove(token common.Address) bool {
	i, ok := s.index[token]
	if !ok {
		return false
	}
	last := len(s.tokens) - 1
	if i != last {
		moved := s.tokens[last]
		s.tokens[i] = moved
		s.index[moved] = i
	}
	s.tokens = s.tokens[:last]
	delete(s.index, token)
	return true
}
