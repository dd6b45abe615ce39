// Package ratelimit throttles the HTTP API per client.
//
// Two backends share the Limiter interface:
//
//   - BackendLocal keeps one golang.org/x/time/rate token bucket per key in
//     memory and evicts idle buckets periodically
//   - BackendDistributed counts hits in a Redis sorted-set window so every
//     router instance enforces the same budget
//
// # HTTP Middleware
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//		Enabled:           true,
//		RequestsPerSecond: 50,
//		BurstSize:         100,
//	}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	router.Use(ratelimit.HTTPMiddleware(limiter, ratelimit.IPBasedKey))
//
// Requests over budget get 429 with a JSON error body. When the backend
// itself fails the request is let through and the failure is logged.
package ratelimit
