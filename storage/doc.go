// Package storage defines the persistence contract for the token lifecycle:
// a blacklist of revoked token IDs, a per-user refresh-token registry with a
// configurable cap, and a per-user device registry. Two backends satisfy the
// contract: a PostgreSQL store with strong consistency and SQL-driven
// eviction, and a TTL-native Redis store that implements the blacklist only.
package storage
