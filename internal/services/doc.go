// Package services implements the HTTP client for the video-quality-analysis backend.
//
// # API Service
//
// [APIService] wraps an [http.Client] with the backend base URL. Raw methods ([APIService.Get],
// [APIService.Post], [APIService.Put], [APIService.Delete]) return an [APIResponse] regardless of
// status and back the `vqa api` passthrough commands. Typed helpers ([APIService.GetJSON] and
// friends) turn non-2xx responses into [*APIError].
//
// # Credentials
//
// [WithCredentials] installs a transport that reads the current credential from a
// [CredentialSource] (the session manager) on every request and sets a single
// "Authorization: Bearer <token>" header using [oauth2.Token.SetAuthHeader]. With no credential the
// header is removed. [WithToken] overrides the source for one request chain, used to fetch the
// profile with a token that has not been committed to the session yet.
//
// Every request carries an X-Request-ID and is bounded by the configured timeout.
//
// # Login
//
// [APIService.PasswordToken] performs the form-encoded password grant against POST /token with
// [oauth2.Config.PasswordCredentialsToken].
//
// # Error Handling
//
// [APIError] unwraps to shared sentinels so callers can use errors.Is:
//   - [shared.ErrNotAuthenticated] : 401
//   - [shared.ErrForbidden] : 403
//   - [shared.ErrServiceUnavailable] : 502, 503
//   - [shared.ErrAPIRequest] : any other non-2xx status
//
// [ErrorDetail] reads FastAPI style {"detail": ...} and {"message": ...} bodies.
package services
