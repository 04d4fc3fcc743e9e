// Package app composes the storefront: it builds the domain services over
// their stores, caches and third-party integrations, and manages the
// lifecycle of background components.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── integrations.go     # Provider clients chosen from configuration
//	├── open.go             # PostgreSQL/Redis or in-memory backends
//	├── domain/             # Domain models (pure data structures)
//	├── storage/            # Store interfaces, memory and postgres implementations
//	├── services/           # Business logic per domain
//	├── httpapi/            # REST routes, procedure registration and pages
//	├── system/             # Lifecycle manager and job scheduler
//	└── metrics/            # Prometheus collectors
//
// # Adding a New Domain
//
//  1. Create domain models in internal/app/domain/<name>/
//  2. Add the store interface to internal/app/storage/interfaces.go
//  3. Implement it in internal/app/storage/postgres/ and memory/
//  4. Create the service in internal/app/services/<name>/service.go
//  5. Wire the service in internal/app/application.go
//  6. Register its procedures in internal/app/httpapi/procedures_<name>.go
package app
