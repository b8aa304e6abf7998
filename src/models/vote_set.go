package models

import (
	"encoding/json"
	"slices"
)

// VoteSet is an unordered set of approver user ids.
type VoteSet map[int64]struct{}

func NewVoteSet(ids ...int64) VoteSet {
	s := make(VoteSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s VoteSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s VoteSet) Add(id int64) {
	s[id] = struct{}{}
}

func (s VoteSet) Remove(id int64) {
	delete(s, id)
}

// ContainsAll reports whether every id in roster is in the set. An empty roster is never satisfied.
func (s VoteSet) ContainsAll(roster []int64) bool {
	if len(roster) == 0 {
		return false
	}
	for _, id := range roster {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Slice returns the ids in ascending order.
func (s VoteSet) Slice() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s VoteSet) Clone() VoteSet {
	return NewVoteSet(s.Slice()...)
}

func (s VoteSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *VoteSet) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewVoteSet(ids...)
	return nil
}
