package cosmos

import (
	"encoding/json"
	"strconv"
)

// Amino JSON documents. Struct fields are declared in key order so that
// encoding/json produces the sorted, compact form signers hash.

// Coin is an amount of one denomination
type Coin struct {
	Amount string `json:"amount"`
	Denom  string `json:"denom"`
}

// Fee is a legacy amino fee
type Fee struct {
	Amount []Coin `json:"amount"`
	Gas    string `json:"gas"`
}

// Msg is an amino-typed message
type Msg struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type msgSendValue struct {
	Amount      []Coin `json:"amount"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
}

type msgSignDataValue struct {
	Data   []byte `json:"data"`
	Signer string `json:"signer"`
}

// StdSignDoc is the legacy amino sign document
type StdSignDoc struct {
	AccountNumber string `json:"account_number"`
	ChainID       string `json:"chain_id"`
	Fee           Fee    `json:"fee"`
	Memo          string `json:"memo"`
	Msgs          []Msg  `json:"msgs"`
	Sequence      string `json:"sequence"`
}

// Bytes returns the canonical sign bytes
func (d StdSignDoc) Bytes() ([]byte, error) {
	if d.Fee.Amount == nil {
		d.Fee.Amount = []Coin{}
	}
	return json.Marshal(d)
}

// PubKey is an amino-encoded public key
type PubKey struct {
	Type  string `json:"type"`
	Value []byte `json:"value"`
}

// StdSignature pairs a public key with a compact signature
type StdSignature struct {
	PubKey    PubKey `json:"pub_key"`
	Signature []byte `json:"signature"`
}

// StdTx is a signed legacy amino transaction
type StdTx struct {
	Type  string     `json:"type"`
	Value StdTxValue `json:"value"`
}

// StdTxValue is the body of a StdTx
type StdTxValue struct {
	Msg        []Msg          `json:"msg"`
	Fee        Fee            `json:"fee"`
	Signatures []StdSignature `json:"signatures"`
	Memo       string         `json:"memo"`
}

const (
	msgSendType     = "cosmos-sdk/MsgSend"
	msgSignDataType = "sign/MsgSignData"
	stdTxType       = "cosmos-sdk/StdTx"
	pubKeyType      = "tendermint/PubKeySecp256k1"
)

func newMsgSend(from, to string, amount []Coin) Msg {
	return Msg{Type: msgSendType, Value: msgSendValue{Amount: amount, FromAddress: from, ToAddress: to}}
}

// arbitrarySignDoc builds the ADR-036 sign document for off-chain data
func arbitrarySignDoc(signer string, data []byte) StdSignDoc {
	return StdSignDoc{
		AccountNumber: "0",
		ChainID:       "",
		Fee:           Fee{Amount: []Coin{}, Gas: "0"},
		Memo:          "",
		Msgs:          []Msg{{Type: msgSignDataType, Value: msgSignDataValue{Data: data, Signer: signer}}},
		Sequence:      "0",
	}
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
