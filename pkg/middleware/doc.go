// Package middleware provides HTTP middleware for authentication and rate
// limiting.
//
// AuthMiddleware turns bearer tokens into principals via the auth resolver
// and attaches them to the request context; handlers read them back with
// GetPrincipal. RateLimiter and DistributedRateLimiter throttle requests
// per principal, in process memory or shared through Redis.
package middleware
