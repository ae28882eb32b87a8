// Package gateway orchestrates the care-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the care-gateway
// server. It owns the SQLite store, the conversation service, the
// reminder scheduler and the HTTP server, and manages their lifecycle.
//
// # HTTP API
//
// Webhook surface (authenticated by the platform's verify-token handshake):
//
//   - GET /webhook - Meta subscription handshake
//   - POST /webhook - inbound message ingestion (always 200 for payloads
//     that carry no text message, to avoid retry storms)
//   - POST /trigger-daily-task - manual reminder sweep (X-Cron-Secret)
//
// Panel surface (JWT bearer auth):
//
//   - POST /api/auth/login - professional login
//   - GET /api/patients - patient list with alert rollup
//   - GET /api/patients/{id}/messages - read conversation (clears alerts)
//   - POST /api/patients/{id}/messages - professional reply
//   - POST /api/patients/{id}/assume-control - switch to manual control
//   - POST /api/patients/{id}/release-control - back to automatic
//   - POST /api/patients/{id}/summarize - AI conversation summary
//   - GET /api/patients/{id}/stream - SSE live view
//   - GET /health - liveness check
//   - GET /metrics - Prometheus metrics (when enabled)
//
// # SSE Live View
//
// Each persisted message is relayed to subscribed viewers as one event:
//
//	event: message
//	data: {"id":"...","text":"...","sender":"patient","timestamp":"..."}
//
// Viewers that stop draining are torn down; the client sees its stream
// close and reconnects.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx)
//
// Run blocks until the context is canceled, then shuts down the HTTP
// server, the reminder scheduler, the viewer registry and the store.
package gateway
