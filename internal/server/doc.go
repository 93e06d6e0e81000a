// Package server orchestrates the cosint-web server components.
//
// # Overview
//
// The Server owns the SQLite store, the COSINT backend client, the identity
// provider, the browser session manager, the registry hub, the chat dedupe
// cache and the web front-end, and runs them behind a single HTTP server.
//
// # HTTP Endpoints
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (the backend answers /health)
//   - Everything else is served by the web package
//
// # Listeners
//
// By default the server listens on server.http_addr. With tailscale enabled
// it joins the tailnet through tsnet and serves on:
//
//   - :443 through Funnel when tailscale.funnel is set
//   - :443 with tailnet certificates when tailscale.https is set
//   - :80 otherwise
//
// # Maintenance
//
// Every ten minutes expired browser sessions and cached backend responses
// are deleted from the store.
//
// # Lifecycle
//
//	srv, err := server.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	err = srv.Run(ctx) // blocks; shuts down when ctx is canceled
package server
