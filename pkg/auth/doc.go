// Package auth is the single entry point views use for identity operations
// on a StartupVista client.
//
// # Overview
//
// Service composes the token store, the start-up session verifier, the REST
// client, and the optional federated sign-in bridge behind one uniform
// surface: Login, Register, Logout, SignInWithFederatedProvider,
// CompleteRegistration, UpdateRole, ClearError, Snapshot and Subscribe.
//
// State is owned by the Service and handed out as immutable snapshots; views
// receive changes through an explicit subscription that returns an
// unsubscribe handle. There is no ambient singleton; construct a Service
// and inject it.
//
// # Concurrency
//
// A single in-flight guard serializes identity operations: a second Login,
// Register, federated sign-in, role update, or Logout started while one is
// running fails fast with ErrOperationInProgress. Reads (Snapshot) are
// always allowed.
//
// # Failure model
//
// Validation failures are rejected before any network call. Recoverable
// failures (bad credentials, dismissed sign-in, rate limits) surface as
// session.AuthError and leave prior state intact. An expired session,
// detected when a transparent token refresh fails, silently resets the
// service to unauthenticated; nothing in this package is fatal to the
// process.
package auth
