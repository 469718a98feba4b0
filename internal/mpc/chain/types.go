package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction EIP-1559 交易参数，数值字段以十六进制编码传输
type Transaction struct {
	ChainID              *hexutil.Big    `json:"chain_id"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"max_priority_fee_per_gas"`
	MaxFeePerGas         *hexutil.Big    `json:"max_fee_per_gas"`
	Gas                  hexutil.Uint64  `json:"gas"`
	To                   *common.Address `json:"to,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
}

// SignedTransaction 组装完成、可广播的交易
type SignedTransaction struct {
	Hash           string `json:"hash"`
	From           string `json:"from"`
	RawTransaction string `json:"raw_transaction"`
}
