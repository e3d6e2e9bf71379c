// Package auth authenticates API callers against a credential store that may
// not be connected yet.
//
// Connection guard:
//   - ConnectionGuard opens the store lazily. Concurrent callers arriving
//     while a connection is being established share that single attempt and
//     observe the same handle or the same error. A failed attempt leaves the
//     guard ready for a fresh attempt by the next caller.
//   - Hooks registered with WithOnConnect run once per connection before any
//     waiter is released. Bootstrapper uses one to create the default admin
//     account when it does not exist.
//
// Login:
//   - Authenticator.Login verifies credentials, enforces the lockout policy of
//     the AttemptTracker (5 failures lock an identity for 15 minutes by
//     default) and issues HS256 session tokens through TokenService.
//   - Unknown identities and wrong passwords produce the same
//     ErrInvalidCredentials so responses do not reveal which accounts exist.
//
// Notifications:
//   - Dispatcher forwards login events to a Notifier on a detached goroutine
//     with its own timeout. Delivery failures are logged and never change the
//     login outcome.
//
// Origins:
//   - OriginGuard evaluates the CORS allow-list (exact, glob and "re:"
//     entries) and writes the response headers shared by the API surface.
package auth
