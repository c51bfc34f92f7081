// Package cache holds the two cache tiers sitting in front of the content API.
// MemoryStore is the bounded in-process TTL store whose expiry comes from a
// namespace-prefix TTLPolicy and which evicts in insertion order. FileStore and
// ValkeyStore are the persistent tiers that survive restarts; they never report
// failures to callers, only misses. Service bundles the tiers into the single
// object the fetcher and the HTTP routes share, and is the only place a full
// invalidation is carried out.
package cache
