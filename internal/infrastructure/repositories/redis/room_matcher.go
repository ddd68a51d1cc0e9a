package redis

import (
	"context"
	"fmt"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const roomKeyPattern = keyPrefix + "room:*"

// Both scripts return {outcome, counterpart} where outcome is one of
// "waiting", "paired" or "full".
var announceTwoSeat = redis.NewScript(`
local seats = redis.call('LRANGE', KEYS[1], 0, -1)
local me = ARGV[1]
for _, s in ipairs(seats) do
  if s == me then
    for _, o in ipairs(seats) do
      if o ~= me then return {'paired', o} end
    end
    return {'waiting', ''}
  end
end
if #seats >= 2 then return {'full', ''} end
redis.call('RPUSH', KEYS[1], me)
if #seats == 1 then return {'paired', seats[1]} end
return {'waiting', ''}
`)

var announceSingleSlot = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
redis.call('SET', KEYS[1], ARGV[1])
if prev and prev ~= ARGV[1] then return {'paired', prev} end
return {'waiting', ''}
`)

// RoomMatcher keeps room seats in Redis so several signaling instances
// can pair identities connected to different processes.
type RoomMatcher struct {
	client *redis.Client
	policy domain.MatchPolicy
}

func NewRoomMatcher(client *redis.Client, policy domain.MatchPolicy) *RoomMatcher {
	if policy == "" {
		policy = domain.PolicyTwoSeat
	}
	return &RoomMatcher{client: client, policy: policy}
}

func (m *RoomMatcher) Policy() domain.MatchPolicy {
	return m.policy
}

func (m *RoomMatcher) seatsKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:seats", keyPrefix, roomID)
}

func (m *RoomMatcher) slotKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:slot", keyPrefix, roomID)
}

func (m *RoomMatcher) Announce(ctx context.Context, roomID domain.RoomID, username domain.Username) (domain.Match, error) {
	script, key := announceTwoSeat, m.seatsKey(roomID)
	if m.policy == domain.PolicySingleSlot {
		script, key = announceSingleSlot, m.slotKey(roomID)
	}

	res, err := script.Run(ctx, m.client, []string{key}, string(username)).StringSlice()
	if err != nil {
		return domain.Match{}, fmt.Errorf("failed to announce in room %s: %w", roomID, err)
	}
	if len(res) != 2 {
		return domain.Match{}, fmt.Errorf("unexpected announce reply %v", res)
	}

	switch res[0] {
	case "paired":
		return domain.PairedWith(domain.Username(res[1])), nil
	case "full":
		return domain.Match{}, domain.ErrRoomFull
	default:
		return domain.Waiting(), nil
	}
}

func (m *RoomMatcher) Counterpart(ctx context.Context, roomID domain.RoomID, username domain.Username) (domain.Username, bool, error) {
	if m.policy == domain.PolicySingleSlot {
		slot, err := m.client.Get(ctx, m.slotKey(roomID)).Result()
		if err == redis.Nil {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to read room %s: %w", roomID, err)
		}
		if slot == "" || domain.Username(slot) == username {
			return "", false, nil
		}
		return domain.Username(slot), true, nil
	}

	seats, err := m.client.LRange(ctx, m.seatsKey(roomID), 0, -1).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to read room %s: %w", roomID, err)
	}
	seated := false
	var other domain.Username
	for _, s := range seats {
		if domain.Username(s) == username {
			seated = true
		} else if other == "" {
			other = domain.Username(s)
		}
	}
	if other == "" || (len(seats) > 1 && !seated) {
		return "", false, nil
	}
	return other, true, nil
}

func (m *RoomMatcher) Clear(ctx context.Context, roomID domain.RoomID) error {
	if err := m.client.Del(ctx, m.seatsKey(roomID), m.slotKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to clear room %s: %w", roomID, err)
	}
	return nil
}

func (m *RoomMatcher) Release(ctx context.Context, roomID domain.RoomID, username domain.Username) error {
	if m.policy == domain.PolicySingleSlot {
		return nil
	}
	if err := m.client.LRem(ctx, m.seatsKey(roomID), 0, string(username)).Err(); err != nil {
		return fmt.Errorf("failed to release seat in room %s: %w", roomID, err)
	}
	return nil
}

var _ ports.RoomMatcher = (*RoomMatcher)(nil)
