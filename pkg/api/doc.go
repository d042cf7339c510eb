// Package api implements the REST client for the StartupVista backend.
//
// # Overview
//
// The client speaks the /auth/* contract (login, register, verify, refresh,
// federated exchange, role update, logout) plus the thin marketplace
// endpoints (/posts, /startups, /users/profile). Two HTTP clients back it:
//
//   - a plain client for the auth endpoints themselves, where transparent
//     renewal would be circular
//   - an authorized client whose transport injects the stored bearer token
//     and performs exactly one 401-triggered refresh-and-replay per request
//
// # Transparent renewal
//
// A request failing with 401 is retried once: the stored refresh token is
// exchanged for a new session, the original request is replayed with the
// new access token, and the original 401 is only propagated if the refresh
// itself fails. Concurrent refresh attempts are collapsed into a single
// in-flight exchange via singleflight. A failed refresh tears the session
// down (token store cleared) and notifies the registered expiry handler.
//
// # Caching
//
// Marketplace list/get reads go through a small TTL'd LRU cache which is
// purged on any write through the same client.
package api
