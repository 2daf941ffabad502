// Package graph is the mutation API of the workflow graph.
//
// # Why Graph Package Exists
//
// Workflows, nodes and links are plain data (package workflow) kept by a
// narrow store (package store). Every rule that spans more than one entity
// lives here instead: names are disambiguated against siblings, nodes are
// validated before they are saved, removing a node rewrites the nodes it
// feeds, and clones are replayed in link order so that both ends of a link
// exist before the link is recreated.
//
// # Architecture
//
// The Manager is a facade over its collaborators, all injected through Deps:
//
//	┌──────────────────────────────────────────┐
//	│                 Manager                  │
//	│   AddNode, AddLink, AddGroup, Clone...   │
//	└───┬─────────┬──────────┬──────────┬──────┘
//	    │         │          │          │
//	    ▼         ▼          ▼          ▼
//	 ┌──────┐ ┌────────┐ ┌─────────┐ ┌─────────┐
//	 │Store │ │Queries │ │ Catalog │ │Converter│
//	 └──────┘ └────────┘ └─────────┘ └─────────┘
//
// **Store** keeps workflows and nodes. **Queries** keeps the filter queries
// of datasource nodes. **Catalog** resolves components and decides
// descriptor compatibility. **Converter** parses custom parameter values.
//
// # Operations as Pipelines
//
// Multi-step operations run as explicit steps that stop at the first
// failure:
//
//   - RemoveNode: resolve → sever own links → rewrite children → drop
//     queries → detach
//   - Clone and ImportWorkflowNodes: order → add nodes → translate links →
//     persist links
//
// None of them is transactional. A failure leaves the steps already applied
// in place; Clone and ImportWorkflowNodes report how far they got so callers
// can clean up.
//
// # Thread-Safety
//
// Mutations are serialized per workflow: the Manager holds a lock keyed by
// workflow id for the whole read-modify-write of an operation, so two
// goroutines mutating the same workflow through the same Manager never
// interleave. Reads are not serialized. Two Managers, or two processes,
// sharing one store are NOT protected from each other.
//
// # Tracing and Logging
//
// Each public operation opens a span named workgraph.graph.<Operation> on the
// injected tracer and records failures on it. Progress is logged through the
// slog logger carried by the context (see package ctxlog).
package graph
