package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// ModeratorResolver returns the accounts that review disputes.
type ModeratorResolver interface {
	Moderators(ctx context.Context) ([]string, error)
}

// StaticModerators is a fixed moderator list, usually from configuration.
type StaticModerators []string

// Moderators returns a copy of the list.
func (s StaticModerators) Moderators(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// SetMembersReader is the slice of the redis client used by RedisModerators.
type SetMembersReader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// RedisModerators reads the moderator set from a redis set.
type RedisModerators struct {
	Client SetMembersReader
	Key    string
}

// Moderators returns the set members in sorted order.
func (r RedisModerators) Moderators(ctx context.Context) ([]string, error) {
	members, err := r.Client.SMembers(ctx, r.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("read moderator set %s: %w", r.Key, err)
	}
	sort.Strings(members)
	return members, nil
}

// ChainModerators asks each resolver in turn and returns the first non-empty
// answer.
type ChainModerators []ModeratorResolver

// Moderators implements ModeratorResolver.
func (c ChainModerators) Moderators(ctx context.Context) ([]string, error) {
	var errs []error
	for _, r := range c {
		ids, err := r.Moderators(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, errors.Join(errs...)
}
