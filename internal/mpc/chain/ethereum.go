package chain

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const signatureLength = 65

// EthereumAdapter 实现 EVM 链的本地交易组装
type EthereumAdapter struct {
	chainID *big.Int
}

// NewEthereumAdapter 创建以太坊适配器；交易未指定 chain id 时使用 chainID
func NewEthereumAdapter(chainID *big.Int) *EthereumAdapter {
	if chainID == nil {
		chainID = big.NewInt(1) // mainnet
	}
	return &EthereumAdapter{chainID: chainID}
}

func (a *EthereumAdapter) ChainID() *big.Int {
	return new(big.Int).Set(a.chainID)
}

// AddressOfPublicKey 通过 Keccak256(pubKey[1:]) 生成地址，支持压缩与非压缩公钥
func (a *EthereumAdapter) AddressOfPublicKey(pubKey []byte) (string, error) {
	if len(pubKey) == 0 {
		return "", errors.New("public key is required")
	}
	var uncompressed64 []byte
	switch {
	case len(pubKey) == 65 && pubKey[0] == 0x04:
		uncompressed64 = pubKey[1:]
	case len(pubKey) == 33 && (pubKey[0] == 0x02 || pubKey[0] == 0x03):
		key, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return "", errors.Wrap(err, "failed to parse compressed secp256k1 pubkey")
		}
		u := key.SerializeUncompressed() // 0x04 | X | Y
		uncompressed64 = u[1:]
	default:
		return "", errors.Errorf("unsupported public key format: len=%d", len(pubKey))
	}
	hash := crypto.Keccak256(uncompressed64)
	return common.BytesToAddress(hash[12:]).Hex(), nil
}

// PayloadHash returns the hex digest the MPC signature is computed over.
func (a *EthereumAdapter) PayloadHash(tx *Transaction) (string, error) {
	inner, chainID, err := a.dynamicFeeTx(tx)
	if err != nil {
		return "", err
	}
	return types.NewLondonSigner(chainID).Hash(types.NewTx(inner)).Hex(), nil
}

// Assemble combines tx with the MPC signature into a broadcastable transaction.
// payload must be the digest of tx; signedPayload is the 65-byte r|s|v
// signature, with v either 0/1 or 27/28.
func (a *EthereumAdapter) Assemble(tx *Transaction, payload string, signedPayload string) (*SignedTransaction, error) {
	inner, chainID, err := a.dynamicFeeTx(tx)
	if err != nil {
		return nil, err
	}
	signer := types.NewLondonSigner(chainID)
	unsigned := types.NewTx(inner)

	expected := signer.Hash(unsigned)
	if payload != "" && !strings.EqualFold(trimHex(payload), trimHex(expected.Hex())) {
		return nil, errors.Errorf("signature payload %s does not match transaction hash %s", payload, expected.Hex())
	}

	sig, err := decodeHex(signedPayload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode signed payload")
	}
	if len(sig) != signatureLength {
		return nil, errors.Errorf("signed payload must be %d bytes, got %d", signatureLength, len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	signed, err := unsigned.WithSignature(signer, sig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to attach signature")
	}

	from, err := types.Sender(signer, signed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to recover sender")
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode signed transaction")
	}

	return &SignedTransaction{
		Hash:           signed.Hash().Hex(),
		From:           from.Hex(),
		RawTransaction: hexutil.Encode(raw),
	}, nil
}

func (a *EthereumAdapter) dynamicFeeTx(tx *Transaction) (*types.DynamicFeeTx, *big.Int, error) {
	if tx == nil {
		return nil, nil, errors.New("transaction is nil")
	}

	chainID := a.chainID
	if tx.ChainID != nil {
		chainID = tx.ChainID.ToInt()
	}
	if chainID.Sign() <= 0 {
		return nil, nil, errors.Errorf("invalid chain id %s", chainID)
	}

	return &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     uint64(tx.Nonce),
		GasTipCap: toBig(tx.MaxPriorityFeePerGas),
		GasFeeCap: toBig(tx.MaxFeePerGas),
		Gas:       uint64(tx.Gas),
		To:        tx.To,
		Value:     toBig(tx.Value),
		Data:      tx.Data,
	}, chainID, nil
}

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}

func trimHex(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(trimHex(s))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid hex %q", s)
	}
	return b, nil
}
