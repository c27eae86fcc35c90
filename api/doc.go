// Package api provides the HTTP surface of the multi-agent CAD
// environment.
//
// # API Overview
//
// The server exposes:
//   - POST /v1/dispatch — the JSON-RPC command surface for every CAD
//     operation (entity creation, constraints, solids, workspaces,
//     history, file export/import, agent metrics, scenarios)
//   - /v1/agents, /v1/messages, /v1/tasks/decompose — the multi-agent
//     controller: agent lifecycle, inter-agent messaging, and
//     rule-based task decomposition
//   - Health monitoring and Prometheus metrics
//
// # Authentication
//
// When API keys are configured, endpoints require the X-API-Key
// header:
//
//	X-API-Key: your-api-key
//
// JWT bearer authentication can be enabled alongside or instead.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
