// Package operation selects pending MPC operations out of a poll result.
//
// Batches are processed most-recently-listed first: the backend lists
// operations in creation order, and processing walks that list from the end.
// The order is a fixed tie-break so that reruns over the same listing behave
// identically; matching itself is by exact name and does not depend on it.
package operation

import (
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/waas"
)

// ErrOperationNotFound 待处理列表中没有目标操作；调用方通常继续轮询
var ErrOperationNotFound = protocol.NewDomainError(protocol.CodeOperationNotFound, "operation not found among pending operations")

// Match returns the pending record whose Operation equals operationName.
func Match(pending []*waas.PendingOperation, operationName string) (*waas.PendingOperation, error) {
	for _, op := range pending {
		if op != nil && op.Operation == operationName {
			return op, nil
		}
	}
	return nil, ErrOperationNotFound.WithOperation(operationName)
}

// MatchKind is Match restricted to one kind of operation.
func MatchKind(pending []*waas.PendingOperation, kind protocol.Kind, operationName string) (*waas.PendingOperation, error) {
	return Match(Filter(pending, kind), operationName)
}

// Filter 按类型过滤，保持原有顺序
func Filter(pending []*waas.PendingOperation, kind protocol.Kind) []*waas.PendingOperation {
	out := make([]*waas.PendingOperation, 0, len(pending))
	for _, op := range pending {
		if op != nil && op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// InProcessingOrder returns a new slice with the batch most-recently-listed first.
func InProcessingOrder(batch []*waas.PendingOperation) []*waas.PendingOperation {
	out := make([]*waas.PendingOperation, len(batch))
	for i, op := range batch {
		out[len(batch)-1-i] = op
	}
	return out
}
