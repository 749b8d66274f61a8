package redis

import "github.com/redis/go-redis/v9"

const (
	// setFieldsScript writes every field in one step so a reader never sees
	// timeData from one snapshot next to history from another.
	setFieldsScript = `
-- KEYS[1..n-1] = {prefix}:{field}, KEYS[n] = {prefix}:updatedAt
-- ARGV[1..n-1] = encoded field values, ARGV[n] = RFC3339 timestamp
local n = #KEYS - 1

for i = 1, n do
  redis.call('SET', KEYS[i], ARGV[i])
end

redis.call('SET', KEYS[#KEYS], ARGV[#ARGV])

return n
`
)

var setFields = redis.NewScript(setFieldsScript)
