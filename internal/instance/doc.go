// Package instance defines the shared vocabulary for managed database
// servers: the registry record, lifecycle status, the JSON output shape,
// instance name canonicalization, and the classified error taxonomy.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import instance; instance imports nothing internal.
// This ensures it remains the foundational layer with no circular
// dependencies.
package instance
