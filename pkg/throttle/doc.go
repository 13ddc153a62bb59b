// Package throttle provides the throttle chain and rate-limit counters.
//
// A Chain holds throttles in precedence order; Resolve picks the first whose
// matcher accepts the request. A Limiter counts requests per (throttle id,
// consumer key) in fixed windows against a Store:
//
//	MemoryStore  process local, one lock per key, swept by a Sweeper
//	RedisStore   Lua INCR + PEXPIRE, shared across instances
//	SQLStore     PostgreSQL upsert, shared across instances
//
// Counters are not rolled back once over the limit, so every later request
// of the window is rejected. Store failures are treated as exceeded.
package throttle
