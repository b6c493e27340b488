// Package api is the SafeLift backend REST client.
//
// Endpoints (relative to the base URL, default http://localhost:8000/api):
//   - GET  /events            list, filtered by severity/type/source, paged by skip/limit
//   - GET  /events/critical   severity >= 4
//   - GET  /events/{id}
//   - POST /events            create, answers 201
//   - POST /auth/login        exchange username/password for a bearer token
//
// Requests carry a bearer token when the client has credentials. GETs are
// retried with jittered exponential backoff on 5xx and 429.
package api
