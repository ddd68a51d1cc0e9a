package memory

import (
	"context"
	"sync"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"
)

type room struct {
	// seats holds at most two usernames in arrival order. Under the
	// single-slot policy only seats[0] is used.
	seats []domain.Username
}

// RoomMatcher tracks who is waiting in each room. Rooms are created on
// first use and kept for the life of the process.
type RoomMatcher struct {
	policy domain.MatchPolicy
	rooms  map[domain.RoomID]*room
	mu     sync.Mutex
}

func NewRoomMatcher(policy domain.MatchPolicy) *RoomMatcher {
	if policy == "" {
		policy = domain.PolicyTwoSeat
	}
	return &RoomMatcher{
		policy: policy,
		rooms:  make(map[domain.RoomID]*room),
	}
}

func (m *RoomMatcher) Policy() domain.MatchPolicy {
	return m.policy
}

func (m *RoomMatcher) room(roomID domain.RoomID) *room {
	r, ok := m.rooms[roomID]
	if !ok {
		r = &room{}
		m.rooms[roomID] = r
	}
	return r
}

func (m *RoomMatcher) Announce(ctx context.Context, roomID domain.RoomID, username domain.Username) (domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.room(roomID)
	if m.policy == domain.PolicySingleSlot {
		return r.announceSingleSlot(username), nil
	}
	return r.announceTwoSeat(username)
}

func (r *room) announceSingleSlot(username domain.Username) domain.Match {
	var previous domain.Username
	if len(r.seats) > 0 {
		previous = r.seats[0]
	}
	r.seats = []domain.Username{username}

	if previous == "" || previous == username {
		return domain.Waiting()
	}
	return domain.PairedWith(previous)
}

func (r *room) announceTwoSeat(username domain.Username) (domain.Match, error) {
	if r.seated(username) {
		if other, ok := r.other(username); ok {
			return domain.PairedWith(other), nil
		}
		return domain.Waiting(), nil
	}

	switch len(r.seats) {
	case 0:
		r.seats = append(r.seats, username)
		return domain.Waiting(), nil
	case 1:
		first := r.seats[0]
		r.seats = append(r.seats, username)
		return domain.PairedWith(first), nil
	default:
		return domain.Match{}, domain.ErrRoomFull
	}
}

func (r *room) seated(username domain.Username) bool {
	for _, s := range r.seats {
		if s == username {
			return true
		}
	}
	return false
}

func (r *room) other(username domain.Username) (domain.Username, bool) {
	for _, s := range r.seats {
		if s != username {
			return s, true
		}
	}
	return "", false
}

func (m *RoomMatcher) Counterpart(ctx context.Context, roomID domain.RoomID, username domain.Username) (domain.Username, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return "", false, nil
	}
	if len(r.seats) > 1 && !r.seated(username) {
		return "", false, nil
	}
	other, ok := r.other(username)
	return other, ok, nil
}

func (m *RoomMatcher) Clear(ctx context.Context, roomID domain.RoomID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomID]; ok {
		r.seats = nil
	}
	return nil
}

// Release vacates username's seat. Single-slot rooms keep their slot on
// disconnect.
func (m *RoomMatcher) Release(ctx context.Context, roomID domain.RoomID, username domain.Username) error {
	if m.policy == domain.PolicySingleSlot {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	kept := r.seats[:0]
	for _, s := range r.seats {
		if s != username {
			kept = append(kept, s)
		}
	}
	r.seats = kept
	return nil
}

var _ ports.RoomMatcher = (*RoomMatcher)(nil)
