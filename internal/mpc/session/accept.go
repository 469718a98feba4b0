package session

import (
	"github.com/kashguard/go-waas-device/internal/mpc/operation"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/waas"
)

// AcceptKind finishes on the first cycle that lists any operation of kind and
// selects all of them in processing order.
func AcceptKind(kind protocol.Kind) Accept {
	return func(batch []*waas.PendingOperation) ([]*waas.PendingOperation, bool) {
		ops := operation.Filter(batch, kind)
		if len(ops) == 0 {
			return nil, false
		}
		return operation.InProcessingOrder(ops), true
	}
}

// AcceptOperation finishes once the operation named operationName of kind is
// listed; a cycle without it counts as not found and polls again.
func AcceptOperation(kind protocol.Kind, operationName string) Accept {
	return func(batch []*waas.PendingOperation) ([]*waas.PendingOperation, bool) {
		op, err := operation.MatchKind(batch, kind, operationName)
		if err != nil {
			return nil, false
		}
		return []*waas.PendingOperation{op}, true
	}
}
