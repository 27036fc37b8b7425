// Package service implements the control-plane commands, queries and the
// three background reconciliation loops. Repository interfaces are declared
// next to the service that consumes them; internal/repository provides the
// Postgres implementations.
package service

import "context"

// TxRunner runs fn inside a storage transaction. Nested calls join the
// transaction already carried by ctx, so a command's entity writes, audit
// event and idempotency record commit atomically.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RequestMeta carries the caller identity recorded in the audit trail.
type RequestMeta struct {
	Actor    string
	SourceIP string
}

// Worker actor identities used by the background loops.
const (
	ActorProvisioner = "worker:provisioner"
	ActorScheduler   = "worker:scheduler"
	ActorReconciler  = "worker:reconciler"
)
