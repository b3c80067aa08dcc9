package redis

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxTxRetries = 16
	streamBuffer = 64
)

type repo struct {
	rc                 *redis.Client
	logger             *slog.Logger
	expireDuration     time.Duration
	addMemberScript    *redis.Script
	removeMemberScript *redis.Script
	promoteScript      *redis.Script
	demoteScript       *redis.Script
}

func NewRepo(rc *redis.Client, logger *slog.Logger, expireDuration time.Duration) *repo {
	if logger == nil {
		logger = slog.Default()
	}

	return &repo{
		rc:             rc,
		logger:         logger,
		expireDuration: expireDuration,
		// KEYS: channel, member, memberlist
		// ARGV: identity, display name, joined at (ms), expire (s)
		addMemberScript: redis.NewScript(`
			if redis.call('EXISTS', KEYS[1]) == 0 then
				return -1
			end
			if redis.call('EXISTS', KEYS[2]) == 1 then
				return -2
			end
			local count = tonumber(redis.call('HGET', KEYS[1], 'member_count') or '0')
			local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity') or '0')
			if count >= capacity then
				return -3
			end
			redis.call('HSET', KEYS[2], 'role', 'member', 'display_name', ARGV[2], 'joined_at', ARGV[3])
			redis.call('EXPIRE', KEYS[2], ARGV[4])
			redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
			redis.call('EXPIRE', KEYS[3], ARGV[4])
			return redis.call('HINCRBY', KEYS[1], 'member_count', 1)
		`),
		// KEYS: channel, member, memberlist
		// ARGV: identity, member key prefix
		removeMemberScript: redis.NewScript(`
			if redis.call('EXISTS', KEYS[2]) == 0 then
				return {-1, 0, ''}
			end
			local role = redis.call('HGET', KEYS[2], 'role')
			redis.call('DEL', KEYS[2])
			redis.call('ZREM', KEYS[3], ARGV[1])
			local count = redis.call('HINCRBY', KEYS[1], 'member_count', -1)
			if count < 0 then
				redis.call('HSET', KEYS[1], 'member_count', 0)
				count = 0
			end
			if role == 'admin' then
				local admins = redis.call('HINCRBY', KEYS[1], 'admin_count', -1)
				if admins <= 0 and count > 0 then
					local next = redis.call('ZRANGE', KEYS[3], 0, 0)
					if #next > 0 then
						redis.call('HSET', ARGV[2] .. next[1], 'role', 'admin')
						redis.call('HSET', KEYS[1], 'admin_count', 1)
						return {1, count, next[1]}
					end
				end
			end
			return {1, count, ''}
		`),
		// KEYS: channel, member
		promoteScript: redis.NewScript(`
			if redis.call('EXISTS', KEYS[2]) == 0 then
				return -1
			end
			if redis.call('HGET', KEYS[2], 'role') == 'admin' then
				return -2
			end
			redis.call('HSET', KEYS[2], 'role', 'admin')
			return redis.call('HINCRBY', KEYS[1], 'admin_count', 1)
		`),
		// KEYS: channel, member
		demoteScript: redis.NewScript(`
			if redis.call('EXISTS', KEYS[2]) == 0 then
				return -1
			end
			if redis.call('HGET', KEYS[2], 'role') ~= 'admin' then
				return -2
			end
			local admins = tonumber(redis.call('HGET', KEYS[1], 'admin_count') or '0')
			if admins <= 1 then
				return -3
			end
			redis.call('HSET', KEYS[2], 'role', 'member')
			return redis.call('HINCRBY', KEYS[1], 'admin_count', -1)
		`),
	}
}
