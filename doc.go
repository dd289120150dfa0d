// Package tokenguard provides the secure token lifecycle for deckfolio
// backends: issuance, verification, rotation, and revocation of short-lived
// JWT access tokens and longer-lived refresh tokens, bound to a per-device
// fingerprint and backed by a pluggable storage contract (blacklist,
// refresh-token registry, device registry).
//
// The package is designed for concurrent server workloads: Manager methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. Multiple service instances may share one storage backend;
// all exclusivity (jti uniqueness, per-user refresh caps) is delegated to
// the backend's atomic upsert and constraint semantics, never to in-process
// locks.
//
// # Architecture boundaries
//
// tokenguard is the public surface. It exposes [Manager], [Builder],
// [Config], and value types. Claim encoding lives in the token/ subpackage,
// persistence behind [storage.Store] with relational (PostgreSQL) and
// key-value (Redis) backends.
//
// # Failure semantics
//
// Verification errors are typed sentinels ([ErrExpiredToken], [ErrRevoked],
// [ErrDeviceAuthorizationChanged], ...) so HTTP layers can map them to
// status codes without string matching. Blacklist lookups fail closed: a
// storage outage makes VerifyToken report [ErrRevoked], never success.
// Issuance is all-or-nothing — a storage failure during device tracking or
// refresh persistence hands back no token at all.
package tokenguard
