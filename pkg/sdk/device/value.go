package device

import (
	"encoding/json"

	"github.com/kashguard/go-waas-device/internal/mpc/chain"
	"github.com/kashguard/go-waas-device/internal/mpc/coordinator"
	"github.com/kashguard/go-waas-device/internal/mpc/protocol"
	"github.com/kashguard/go-waas-device/internal/waas"
	"github.com/pkg/errors"
)

// ValueKind 跨边界传输值的变体标签
type ValueKind string

const (
	KindPool              ValueKind = "pool"
	KindDevice            ValueKind = "device"
	KindDeviceGroup       ValueKind = "device_group"
	KindMPCWallet         ValueKind = "mpc_wallet"
	KindAddress           ValueKind = "address"
	KindSignature         ValueKind = "signature"
	KindPendingOperation  ValueKind = "pending_operation"
	KindPrivateKey        ValueKind = "private_key"
	KindDeviceBackup      ValueKind = "device_backup"
	KindSignedTransaction ValueKind = "signed_transaction"
	KindExportMetadata    ValueKind = "export_metadata"
	KindText              ValueKind = "text"
	KindOpaque            ValueKind = "opaque"
)

// Value is the tagged union handed to continuations. Exactly the field that
// matches Kind is set.
type Value struct {
	Kind ValueKind

	Pool              *waas.Pool
	Device            *waas.Device
	DeviceGroup       *waas.DeviceGroup
	MPCWallet         *waas.MPCWallet
	Address           *waas.Address
	Signature         *waas.Signature
	PendingOperation  *waas.PendingOperation
	PrivateKey        *protocol.PrivateKey
	DeviceBackup      *waas.DeviceBackup
	SignedTransaction *chain.SignedTransaction
	ExportMetadata    *coordinator.ExportMetadata
	Text              string
	Opaque            []byte
}

// ErrUnsupportedValue is returned by Encode for types without a variant.
var ErrUnsupportedValue = errors.New("unsupported transport value")

// Encode wraps a domain result in its Value variant. Nil pointers are rejected.
func Encode(v any) (Value, error) {
	switch t := v.(type) {
	case *waas.Pool:
		if t != nil {
			return Value{Kind: KindPool, Pool: t}, nil
		}
	case *waas.Device:
		if t != nil {
			return Value{Kind: KindDevice, Device: t}, nil
		}
	case *waas.DeviceGroup:
		if t != nil {
			return Value{Kind: KindDeviceGroup, DeviceGroup: t}, nil
		}
	case *waas.MPCWallet:
		if t != nil {
			return Value{Kind: KindMPCWallet, MPCWallet: t}, nil
		}
	case *waas.Address:
		if t != nil {
			return Value{Kind: KindAddress, Address: t}, nil
		}
	case *waas.Signature:
		if t != nil {
			return Value{Kind: KindSignature, Signature: t}, nil
		}
	case *waas.PendingOperation:
		if t != nil {
			return Value{Kind: KindPendingOperation, PendingOperation: t}, nil
		}
	case *protocol.PrivateKey:
		if t != nil {
			return Value{Kind: KindPrivateKey, PrivateKey: t}, nil
		}
	case *waas.DeviceBackup:
		if t != nil {
			return Value{Kind: KindDeviceBackup, DeviceBackup: t}, nil
		}
	case *chain.SignedTransaction:
		if t != nil {
			return Value{Kind: KindSignedTransaction, SignedTransaction: t}, nil
		}
	case *coordinator.ExportMetadata:
		if t != nil {
			return Value{Kind: KindExportMetadata, ExportMetadata: t}, nil
		}
	case string:
		return Value{Kind: KindText, Text: t}, nil
	case []byte:
		return Value{Kind: KindOpaque, Opaque: t}, nil
	}
	return Value{}, errors.Wrapf(ErrUnsupportedValue, "%T", v)
}

// encodeAs is Encode specialised for RunList element conversion.
func encodeAs[V any](v V) (Value, error) {
	return Encode(v)
}

func (v Value) payload() (any, error) {
	switch v.Kind {
	case KindPool:
		return v.Pool, nil
	case KindDevice:
		return v.Device, nil
	case KindDeviceGroup:
		return v.DeviceGroup, nil
	case KindMPCWallet:
		return v.MPCWallet, nil
	case KindAddress:
		return v.Address, nil
	case KindSignature:
		return v.Signature, nil
	case KindPendingOperation:
		return v.PendingOperation, nil
	case KindPrivateKey:
		return v.PrivateKey, nil
	case KindDeviceBackup:
		return v.DeviceBackup, nil
	case KindSignedTransaction:
		return v.SignedTransaction, nil
	case KindExportMetadata:
		return v.ExportMetadata, nil
	case KindText:
		return v.Text, nil
	case KindOpaque:
		return v.Opaque, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedValue, "kind %q", v.Kind)
	}
}

type wireValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON renders {"kind": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	p, err := v.payload()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s value", v.Kind)
	}
	return json.Marshal(wireValue{Kind: v.Kind, Value: raw})
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var w wireValue
	if err := json.Unmarshal(b, &w); err != nil {
		return errors.Wrap(err, "failed to unmarshal value envelope")
	}

	out := Value{Kind: w.Kind}
	var target any
	switch w.Kind {
	case KindPool:
		out.Pool = new(waas.Pool)
		target = out.Pool
	case KindDevice:
		out.Device = new(waas.Device)
		target = out.Device
	case KindDeviceGroup:
		out.DeviceGroup = new(waas.DeviceGroup)
		target = out.DeviceGroup
	case KindMPCWallet:
		out.MPCWallet = new(waas.MPCWallet)
		target = out.MPCWallet
	case KindAddress:
		out.Address = new(waas.Address)
		target = out.Address
	case KindSignature:
		out.Signature = new(waas.Signature)
		target = out.Signature
	case KindPendingOperation:
		out.PendingOperation = new(waas.PendingOperation)
		target = out.PendingOperation
	case KindPrivateKey:
		out.PrivateKey = new(protocol.PrivateKey)
		target = out.PrivateKey
	case KindDeviceBackup:
		out.DeviceBackup = new(waas.DeviceBackup)
		target = out.DeviceBackup
	case KindSignedTransaction:
		out.SignedTransaction = new(chain.SignedTransaction)
		target = out.SignedTransaction
	case KindExportMetadata:
		out.ExportMetadata = new(coordinator.ExportMetadata)
		target = out.ExportMetadata
	case KindText:
		target = &out.Text
	case KindOpaque:
		target = &out.Opaque
	default:
		return errors.Wrapf(ErrUnsupportedValue, "kind %q", w.Kind)
	}

	if err := json.Unmarshal(w.Value, target); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s value", w.Kind)
	}
	*v = out
	return nil
}
