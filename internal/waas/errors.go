package waas

import (
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var methodRegisterDevice = fullMethod(mpcKeyServiceName, "RegisterDevice")

// fromRPCError maps a gRPC failure of method onto the error taxonomy.
func fromRPCError(method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return protocol.NewTransportError(errors.Wrapf(err, "%s failed", method))
	}
	return fromStatus(method, st.Code(), st.Message(), err)
}

func fromStatus(method string, code codes.Code, msg string, err error) error {
	if err == nil {
		err = status.Error(code, msg)
	}

	switch code {
	case codes.OK:
		return nil
	case codes.AlreadyExists:
		if method == methodRegisterDevice {
			return protocol.WrapDomainError(protocol.CodeDeviceAlreadyRegistered, err, msg)
		}
		return protocol.WrapDomainError(protocol.CodeAlreadyExists, err, msg)
	case codes.NotFound:
		return protocol.WrapDomainError(protocol.CodeNotFound, err, msg)
	case codes.InvalidArgument, codes.OutOfRange:
		return protocol.WrapDomainError(protocol.CodeInvalidArgument, err, msg)
	case codes.FailedPrecondition:
		return protocol.WrapDomainError(protocol.CodeFailedPrecondition, err, msg)
	case codes.PermissionDenied, codes.Unauthenticated:
		return protocol.WrapDomainError(protocol.CodePermissionDenied, err, msg)
	case codes.Canceled, codes.DeadlineExceeded:
		return protocol.NewCancelledError(err)
	default:
		return protocol.NewTransportError(errors.Wrapf(err, "%s failed", method))
	}
}

// fromOperationError maps the error of a finished long-running operation.
func fromOperationError(name string, e *operationError) error {
	code := codes.Code(e.Code)
	if code == codes.OK {
		code = codes.Unknown
	}
	return protocol.AsError(fromStatus(name, code, e.Message, nil)).WithOperation(name)
}
