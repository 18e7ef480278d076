package shared

import "github.com/redis/go-redis/v9"

// Every mutation that must be linearizable per key (spec §4.3's atomicity
// guarantee) is a single Lua script, the same pattern Nova's rate limiter
// uses for its atomic token-bucket read-refill-write sequence: one round
// trip, no client-side compare-and-swap retry loop.

// markInFlightScript implements "insert if absent, or update iff existing
// in_flight is false" (spec §4.5), with lease-based forced reclaim when
// ARGV[2] (lease nanoseconds) is nonzero and the current holder's lease has
// expired.
//
// KEYS[1] = entry hash key
// ARGV[1] = now (unix nanoseconds)
// ARGV[2] = lease duration in nanoseconds (0 = never reclaim)
// ARGV[3] = holder id
//
// Returns {acquired (0/1), generation}.
var markInFlightScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local lease = tonumber(ARGV[2])
local holder = ARGV[3]

local exists = redis.call("EXISTS", KEYS[1])
if exists == 0 then
    redis.call("HSET", KEYS[1], "in_flight", "1", "lease_at", now, "holder", holder, "generation", "0")
    return {1, 0}
end

local gen = tonumber(redis.call("HGET", KEYS[1], "generation") or "0")
local inflight = redis.call("HGET", KEYS[1], "in_flight")

if inflight ~= "1" then
    redis.call("HSET", KEYS[1], "in_flight", "1", "lease_at", now, "holder", holder)
    return {1, gen}
end

if lease > 0 then
    local leaseAt = tonumber(redis.call("HGET", KEYS[1], "lease_at") or "0")
    if now - leaseAt > lease then
        redis.call("HSET", KEYS[1], "in_flight", "1", "lease_at", now, "holder", holder)
        return {1, gen}
    end
end

return {0, gen}
`)

// putScript unconditionally replaces value/ts and clears in_flight/stale,
// but only if the caller's generation still matches: a Clear that raced
// ahead of this Put bumps the generation, and this Put is then silently
// dropped per spec §9 Open Question 1.
//
// KEYS[1] = entry hash key
// ARGV[1] = value bytes
// ARGV[2] = timestamp (unix nanoseconds)
// ARGV[3] = generation presented by the caller
//
// Returns 1 if written, 0 if dropped.
var putScript = redis.NewScript(`
local curGen = tonumber(redis.call("HGET", KEYS[1], "generation") or "0")
if curGen ~= tonumber(ARGV[3]) then
    return 0
end
redis.call("HSET", KEYS[1], "value", ARGV[1], "has_value", "1", "ts", ARGV[2],
    "in_flight", "0", "stale", "0", "generation", curGen)
return 1
`)

// clearInFlightScript unconditionally clears in_flight for a matching
// generation; the holder id is not compared. If no value was ever
// published, the whole hash is removed rather than left as an empty marker.
//
// KEYS[1] = entry hash key
// ARGV[1] = generation presented by the caller
var clearInFlightScript = redis.NewScript(`
local exists = redis.call("EXISTS", KEYS[1])
if exists == 0 then return 0 end

local curGen = tonumber(redis.call("HGET", KEYS[1], "generation") or "0")
local inflight = redis.call("HGET", KEYS[1], "in_flight")
if curGen ~= tonumber(ARGV[1]) or inflight ~= "1" then
    return 0
end

local hasValue = redis.call("HGET", KEYS[1], "has_value")
if hasValue == "1" then
    redis.call("HSET", KEYS[1], "in_flight", "0")
else
    redis.call("DEL", KEYS[1])
end
return 1
`)

// markStaleScript sets stale=1 iff a value is present and it was not
// already set, returning 1 only for the caller that should dispatch
// recomputation.
//
// KEYS[1] = entry hash key
var markStaleScript = redis.NewScript(`
local hasValue = redis.call("HGET", KEYS[1], "has_value")
if hasValue ~= "1" then return 0 end
local stale = redis.call("HGET", KEYS[1], "stale")
if stale == "1" then return 0 end
redis.call("HSET", KEYS[1], "stale", "1")
return 1
`)

// clearScript removes the entry entirely and leaves behind a bumped
// generation counter so that a producer racing this Clear has its
// subsequent Put dropped rather than resurrecting the cleared value.
//
// KEYS[1] = entry hash key
//
// Returns the new generation.
var clearScript = redis.NewScript(`
local curGen = tonumber(redis.call("HGET", KEYS[1], "generation") or "0")
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "generation", curGen + 1)
return curGen + 1
`)
