// Package api exposes the HTTP surface over the guarded store.
//
// Every /api/v1 route passes through request tracking, panic recovery,
// bearer authentication and optional rate limiting before reaching a
// handler. Handlers never touch the raw store; all access goes through the
// guarded store so the policy engine sees every operation. Denials map to
// 403 with the machine-readable reason in the body, missing documents to
// 404, duplicate creates to 409.
package api
