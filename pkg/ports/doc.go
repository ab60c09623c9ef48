// Package ports defines the narrow interfaces between the orchestration core
// and its adapters: checkpoint persistence, external tool providers, the
// read-only query surface, and distributed locking. Keeping these interfaces
// small means adding a new backend never touches the executor.
package ports
