// Package server hosts the Fiber application shell: request-id and access-log
// middleware, CORS for the /api surface, JSON error rendering, and the shared
// upstream http.Client. Route handlers live in server/routes and receive their
// dependencies explicitly.
package server
