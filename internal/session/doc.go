// Package session owns the authenticated identity of the client.
//
// A [Manager] holds the bearer token and the user profile fetched with it. Both are committed
// together: [Manager.Login] obtains a token with the password grant, fetches GET /users/me with that
// candidate token, and only then publishes the pair under the lock. A failed profile fetch leaves
// the previous state untouched.
//
// The manager implements services.CredentialSource, so the API client reads the current
// credential on every request rather than having a header pushed into it.
//
// Other components read the session through [State], a copy with the authenticated flag, the
// role, the loading flag and the user.
//
// An optional [Store] keeps the session across process invocations. Restored tokens whose JWT
// exp claim has passed are discarded.
package session
