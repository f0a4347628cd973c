package redisqueue

import "github.com/redis/go-redis/v9"

// claimScript promotes due delayed jobs, returns stalled active jobs (lock
// expired) to the head of the wait list, then moves one waiting job to active
// under a fresh lock. A stalled job that already used its last attempt is
// failed instead of redelivered.
//
// KEYS: wait, active, delayed.
// ARGV: now ms, lock token, lock ms, job key prefix, stalled failure reason.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local prefix = ARGV[4]

local due = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", now)
for _, id in ipairs(due) do
	redis.call("ZREM", KEYS[3], id)
	redis.call("HSET", prefix .. id, "state", "waiting")
	redis.call("RPUSH", KEYS[1], id)
end

local active = redis.call("LRANGE", KEYS[2], 0, -1)
for _, id in ipairs(active) do
	if redis.call("EXISTS", prefix .. id .. ":lock") == 0 then
		redis.call("LREM", KEYS[2], 0, id)
		local attempts = tonumber(redis.call("HGET", prefix .. id, "attempts") or "0") or 0
		local maxAttempts = tonumber(redis.call("HGET", prefix .. id, "maxAttempts") or "0") or 0
		if maxAttempts > 0 and attempts >= maxAttempts then
			redis.call("HSET", prefix .. id, "state", "failed", "failedReason", ARGV[5], "finishedAt", ARGV[1])
		else
			redis.call("HSET", prefix .. id, "state", "waiting")
			redis.call("LPUSH", KEYS[1], id)
		end
	end
end

local id = redis.call("LPOP", KEYS[1])
if not id then
	return false
end
redis.call("RPUSH", KEYS[2], id)
redis.call("SET", prefix .. id .. ":lock", ARGV[2], "PX", ARGV[3])
redis.call("HINCRBY", prefix .. id, "attempts", 1)
redis.call("HSET", prefix .. id, "state", "active")
redis.call("HSET", prefix .. id, "processedAt", ARGV[1])
return id
`)

// finishScript moves an active job out of the active list if the caller
// still holds its lock. Returns 1 on success, 0 when the lock was lost.
//
// KEYS: active, job hash, lock, delayed.
// ARGV: token, id, new state, delayed-until ms, then field/value pairs.
var finishScript = redis.NewScript(`
if redis.call("GET", KEYS[3]) ~= ARGV[1] then
	return 0
end
redis.call("DEL", KEYS[3])
redis.call("LREM", KEYS[1], 0, ARGV[2])
redis.call("HSET", KEYS[2], "state", ARGV[3])
for i = 5, #ARGV, 2 do
	redis.call("HSET", KEYS[2], ARGV[i], ARGV[i + 1])
end
if ARGV[3] == "delayed" then
	redis.call("ZADD", KEYS[4], ARGV[4], ARGV[2])
end
return 1
`)

// renewScript extends a lock held by the caller.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
