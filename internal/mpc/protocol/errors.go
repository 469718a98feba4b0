package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorType 错误类别
type ErrorType int

const (
	ErrTypeTransport ErrorType = iota
	ErrTypeNotInitialized
	ErrTypeTransform
	ErrTypeDomain
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotInitialized:
		return "NOT_INITIALIZED"
	case ErrTypeTransform:
		return "TRANSFORM"
	case ErrTypeDomain:
		return "DOMAIN"
	default:
		return "TRANSPORT"
	}
}

// Stable machine-readable codes delivered with every rejection.
const (
	CodeNotInitialized          = "E_NOT_INITIALIZED"
	CodeTransform               = "E_TRANSFORM"
	CodeDomain                  = "E_DOMAIN"
	CodeTransport               = "E_TRANSPORT"
	CodeCancelled               = "E_CANCELLED"
	CodeDeviceAlreadyRegistered = "E_DEVICE_ALREADY_REGISTERED"
	CodeAlreadyExists           = "E_ALREADY_EXISTS"
	CodeNotFound                = "E_NOT_FOUND"
	CodeInvalidArgument         = "E_INVALID_ARGUMENT"
	CodePermissionDenied        = "E_PERMISSION_DENIED"
	CodeFailedPrecondition      = "E_FAILED_PRECONDITION"
	CodeOperationNotFound       = "E_OPERATION_NOT_FOUND"
	CodePayloadConsumed         = "E_PAYLOAD_CONSUMED"
	CodeMPCCompute              = "E_MPC_COMPUTE"
	CodePollStopped             = "E_POLL_STOPPED"
	CodePollSessionActive       = "E_POLL_SESSION_ACTIVE"
	CodeProducerPanic           = "E_PRODUCER_PANIC"
	CodeInvalidTransition       = "E_INVALID_TRANSITION"
)

// Error 统一错误：所有跨边界失败都以此类型交付给调用方
type Error struct {
	Type      ErrorType
	Code      string
	Message   string
	Operation string
	Original  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s/%s] %s", e.Type.String(), e.Code, e.Message))
	if e.Operation != "" {
		sb.WriteString(fmt.Sprintf(" [operation: %s]", e.Operation))
	}
	if e.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Original))
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Original
}

// Is matches errors of the same type and code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Code == e.Code
}

// WithOperation returns a copy annotated with the resource or operation name.
func (e *Error) WithOperation(name string) *Error {
	cp := *e
	cp.Operation = name
	return &cp
}

// NewNotInitializedError 前置服务句柄尚未创建
func NewNotInitializedError(service string) *Error {
	return &Error{
		Type:    ErrTypeNotInitialized,
		Code:    CodeNotInitialized,
		Message: fmt.Sprintf("%s is not initialized", service),
	}
}

// NewTransformError 生产者成功，但结果映射失败
func NewTransformError(err error) *Error {
	return &Error{
		Type:     ErrTypeTransform,
		Code:     CodeTransform,
		Message:  "failed to transform result",
		Original: err,
	}
}

// NewDomainError 远端或本地计算拒绝了请求
func NewDomainError(code string, msg string) *Error {
	if code == "" {
		code = CodeDomain
	}
	return &Error{
		Type:    ErrTypeDomain,
		Code:    code,
		Message: msg,
	}
}

// WrapDomainError 带原始错误的领域错误
func WrapDomainError(code string, err error, msg string) *Error {
	e := NewDomainError(code, msg)
	e.Original = err
	return e
}

// NewTransportError 远端传输失败
func NewTransportError(err error) *Error {
	return &Error{
		Type:     ErrTypeTransport,
		Code:     CodeTransport,
		Message:  "transport error",
		Original: err,
	}
}

// NewCancelledError ctx 被取消或超时
func NewCancelledError(err error) *Error {
	return &Error{
		Type:     ErrTypeTransport,
		Code:     CodeCancelled,
		Message:  "operation cancelled",
		Original: err,
	}
}

// AsError classifies any error into the taxonomy. Unknown errors are transport errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(err)
	}
	return NewTransportError(err)
}

// HasCode 判断错误链中是否包含指定错误码
func HasCode(err error, code string) bool {
	e := AsError(err)
	return e != nil && e.Code == code
}

// IsType 判断错误类别
func IsType(err error, t ErrorType) bool {
	e := AsError(err)
	return e != nil && e.Type == t
}
