package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransaction() *Transaction {
	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	return &Transaction{
		ChainID:              (*hexutil.Big)(big.NewInt(11155111)),
		Nonce:                7,
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1_000_000_000)),
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(30_000_000_000)),
		Gas:                  21000,
		To:                   &to,
		Value:                (*hexutil.Big)(big.NewInt(1_000_000_000_000_000)),
	}
}

func TestEthereumAdapter_Assemble(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	adapter := NewEthereumAdapter(nil)
	tx := testTransaction()

	payload, err := adapter.PayloadHash(tx)
	require.NoError(t, err)

	sig, err := crypto.Sign(common.FromHex(payload), key)
	require.NoError(t, err)

	signed, err := adapter.Assemble(tx, payload, hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), signed.From)

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(common.FromHex(signed.RawTransaction)))
	assert.Equal(t, signed.Hash, decoded.Hash().Hex())
	assert.Equal(t, uint8(types.DynamicFeeTxType), decoded.Type())
	assert.Equal(t, uint64(7), decoded.Nonce())
	assert.Equal(t, int64(11155111), decoded.ChainId().Int64())
}

func TestEthereumAdapter_AssembleLegacyV(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	adapter := NewEthereumAdapter(big.NewInt(1))
	tx := testTransaction()
	tx.ChainID = nil

	payload, err := adapter.PayloadHash(tx)
	require.NoError(t, err)

	sig, err := crypto.Sign(common.FromHex(payload), key)
	require.NoError(t, err)
	sig[64] += 27

	// no 0x prefix, v in 27/28 form
	signed, err := adapter.Assemble(tx, payload, common.Bytes2Hex(sig))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), signed.From)
}

func TestEthereumAdapter_AssembleRejects(t *testing.T) {
	adapter := NewEthereumAdapter(nil)
	tx := testTransaction()

	_, err := adapter.Assemble(tx, "0xdeadbeef", hexutil.Encode(make([]byte, 65)))
	assert.ErrorContains(t, err, "does not match transaction hash")

	payload, err := adapter.PayloadHash(tx)
	require.NoError(t, err)

	_, err = adapter.Assemble(tx, payload, "0x0102")
	assert.ErrorContains(t, err, "must be 65 bytes")

	_, err = adapter.Assemble(tx, payload, "zz")
	assert.Error(t, err)

	_, err = adapter.Assemble(nil, payload, "")
	assert.Error(t, err)
}

func TestEthereumAdapter_AddressOfPublicKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	adapter := NewEthereumAdapter(nil)
	want := crypto.PubkeyToAddress(key.PublicKey).Hex()

	addr, err := adapter.AddressOfPublicKey(crypto.FromECDSAPub(&key.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	addr, err = adapter.AddressOfPublicKey(crypto.CompressPubkey(&key.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	_, err = adapter.AddressOfPublicKey([]byte{0x01, 0x02})
	assert.Error(t, err)
}
