package protocol

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAsError_Classification(t *testing.T) {
	assert.Nil(t, AsError(nil))

	domain := NewDomainError(CodeOperationNotFound, "operation not found")
	wrapped := errors.Wrap(domain, "poll")
	assert.Equal(t, domain, AsError(wrapped))
	assert.True(t, errors.Is(wrapped, NewDomainError(CodeOperationNotFound, "")))
	assert.False(t, errors.Is(wrapped, NewDomainError(CodeNotFound, "")))

	plain := errors.New("connection reset")
	e := AsError(plain)
	assert.Equal(t, ErrTypeTransport, e.Type)
	assert.Equal(t, CodeTransport, e.Code)
	assert.Equal(t, plain, errors.Cause(e.Original))

	cancelled := AsError(errors.Wrap(context.Canceled, "list"))
	assert.Equal(t, CodeCancelled, cancelled.Code)
}

func TestError_TransformIsDistinctFromDomain(t *testing.T) {
	transform := NewTransformError(errors.New("bad shape"))
	domain := NewDomainError("", "rejected")

	assert.Equal(t, CodeTransform, transform.Code)
	assert.Equal(t, CodeDomain, domain.Code)
	assert.NotEqual(t, transform.Code, domain.Code)
	assert.False(t, errors.Is(transform, domain))
}

func TestError_Message(t *testing.T) {
	err := WrapDomainError(CodeMPCCompute, errors.New("boom"), "mpc compute failed").WithOperation("operations/o1")
	assert.Equal(t, "[DOMAIN/E_MPC_COMPUTE] mpc compute failed [operation: operations/o1]: boom", err.Error())

	ni := NewNotInitializedError("MPCKeyService")
	assert.Equal(t, "[NOT_INITIALIZED/E_NOT_INITIALIZED] MPCKeyService is not initialized", ni.Error())
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		parsed, err := ParseKind(string(k))
		assert.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("Unknown")
	assert.Error(t, err)

	assert.False(t, KindCreateSignature.RequiresPasscode())
	assert.True(t, KindPrepareDeviceBackup.RequiresPasscode())
	assert.True(t, KindAddDevice.RequiresDeviceBackup())
	assert.False(t, KindPrepareDeviceArchive.RequiresDeviceBackup())
}
