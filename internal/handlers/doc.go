// Package handlers implements the HTTP API layer of the machinery agent.
//
// Handlers validate requests, delegate to the services layer and map
// service errors to HTTP status codes. All handlers are methods on Handler,
// which depends on two narrow interfaces so tests can use mocks:
//
//	type Handler struct {
//	    machinerySrv  MachineryService
//	    operationsSrv OperationService
//	}
//
// Routes are added to the server's /api/v1 group with Handler.Register.
//
// # API Endpoints
//
// Machine Endpoints (machines.go):
//
//	┌────────┬─────────────────────────┬───────────────────────────────────────┐
//	│ Method │ Endpoint                │ Description                           │
//	├────────┼─────────────────────────┼───────────────────────────────────────┤
//	│ GET    │ /machines               │ Host machines joined with the registry│
//	│ GET    │ /machines/{label}       │ One machine with its power state      │
//	│ POST   │ /machines/{label}/start │ Revert to the baseline snapshot       │
//	│ POST   │ /machines/{label}/stop  │ Power off                             │
//	│ POST   │ /machines/{label}/dump  │ Start an asynchronous memory dump     │
//	└────────┴─────────────────────────┴───────────────────────────────────────┘
//
// Operation Endpoints (operations.go):
//
//	┌────────┬────────────────────┬────────────────────────────────────────────┐
//	│ Method │ Endpoint           │ Description                                │
//	├────────┼────────────────────┼────────────────────────────────────────────┤
//	│ GET    │ /operations        │ Journal with filtering and pagination      │
//	│ GET    │ /operations/{id}   │ One journaled operation                    │
//	│ GET    │ /operations/export │ Filtered journal as an XLSX workbook       │
//	└────────┴────────────────────┴────────────────────────────────────────────┘
//
// # Machine Handlers
//
// start and stop run synchronously and answer 204 No Content. dump answers
// 202 Accepted with the pending operation and a Location header pointing
// at it:
//
//	POST /machines/win7/dump
//	{ "path": "/var/lib/machinery/dumps/win7.dmp" }
//
//	{
//	    "id": "4a6f...",
//	    "label": "win7",
//	    "kind": "dump",
//	    "state": "pending",
//	    "path": "/var/lib/machinery/dumps/win7.dmp",
//	    "bytes": 0
//	}
//
// # Operation Handlers
//
// Query Parameters (list and export):
//
//	┌──────────┬──────────┬──────────────────────────────────────────────────┐
//	│ Parameter│ Type     │ Description                                      │
//	├──────────┼──────────┼──────────────────────────────────────────────────┤
//	│ label    │ []string │ Machine labels (OR logic)                        │
//	│ kind     │ []string │ start, stop, dump (OR logic)                     │
//	│ state    │ []string │ pending, running, completed, error (OR logic)    │
//	│ since    │ string   │ RFC 3339 lower bound on the creation time        │
//	│ filter   │ string   │ Filter expression, see pkg/filter                │
//	│ page     │ int      │ Page number (default: 1), list only              │
//	│ pageSize │ int      │ Items per page (default: 20, max: 100), list only│
//	└──────────┴──────────┴──────────────────────────────────────────────────┘
//
// Example: /operations?kind=dump&filter=bytes%20%3E%201GB&page=2
//
// # Error Mapping
//
//	┌──────────────────────────────────────────┬─────────────────────────────┐
//	│ Service error                            │ HTTP status                 │
//	├──────────────────────────────────────────┼─────────────────────────────┤
//	│ ResourceNotFoundError                    │ 404 Not Found               │
//	│ InvalidArgument, Configuration, Format   │ 400 Bad Request             │
//	│ ConnectivityError                        │ 502 Bad Gateway             │
//	│ TimeoutError                             │ 504 Gateway Timeout         │
//	│ anything else                            │ 500 Internal Server Error   │
//	└──────────────────────────────────────────┴─────────────────────────────┘
//
// Error bodies have the form {"error": "<message>"}.
package handlers
