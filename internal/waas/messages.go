package waas

import (
	"encoding/json"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
)

const (
	poolServiceName      = "waas.pools.v1.PoolService"
	mpcKeyServiceName    = "waas.mpc_keys.v1.MPCKeyService"
	mpcWalletServiceName = "waas.mpc_wallets.v1.MPCWalletService"
	operationsName       = "google.longrunning.Operations"
)

func fullMethod(service string, method string) string {
	return "/" + service + "/" + method
}

type createPoolRequest struct {
	PoolID string `json:"pool_id,omitempty"`
	Pool   Pool   `json:"pool"`
}

type getRequest struct {
	Name string `json:"name"`
}

type registerDeviceRequest struct {
	RegistrationData string `json:"registration_data"`
}

type listPendingRequest struct {
	Parent    string `json:"parent"`
	PageToken string `json:"page_token,omitempty"`
}

type listPendingResponse struct {
	MPCOperations []*PendingOperation `json:"mpc_operations"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type createSignatureRequest struct {
	Parent      string             `json:"parent"`
	Transaction *chain.Transaction `json:"transaction"`
}

type deviceOperationRequest struct {
	DeviceGroup string `json:"device_group"`
	Device      string `json:"device"`
}

type createMPCWalletRequest struct {
	Parent string `json:"parent"`
	Device string `json:"device"`
}

type generateAddressRequest struct {
	MPCWallet string `json:"mpc_wallet"`
	Network   string `json:"network"`
}

type waitOperationRequest struct {
	Name string `json:"name"`
}

// operation mirrors google.longrunning.Operation with a JSON payload.
type operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Error    *operationError `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type operationError struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// createMPCWalletMetadata is the metadata of a CreateMPCWallet operation.
type createMPCWalletMetadata struct {
	DeviceGroup string `json:"device_group"`
}
