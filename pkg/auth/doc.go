// Package auth resolves authenticated callers into policy principals.
//
// It covers two concerns:
//
//   - API tokens: opaque bearer tokens ("stall_" + 32 random bytes,
//     base64url). Only the SHA256 hash is stored; the plaintext is returned
//     exactly once at creation.
//
//   - Principal context: a validated token identifies a user, whose stored
//     profile document supplies the role and scope fields of the
//     policy.Principal handed to every downstream component. The principal is
//     resolved once per request and never re-derived from client data.
package auth
