package consensus

import "fmt"

// ErrorCode is a closed, machine-readable tag. Every error at a
// package boundary carries one plus a short human message; callers
// switch on the code, never on the message text.
type ErrorCode string

// CryptoError codes: malformed input to a decode or verify operation.
const (
	CryptoMalformed      ErrorCode = "CRYPTO_MALFORMED"
	CryptoBadChecksum    ErrorCode = "CRYPTO_BAD_CHECKSUM"
	CryptoUnknownVersion ErrorCode = "CRYPTO_UNKNOWN_VERSION"
)

// SerializationError codes.
const (
	SerializationTruncated ErrorCode = "SERIALIZATION_TRUNCATED"
	SerializationMalformed ErrorCode = "SERIALIZATION_MALFORMED"
	SerializationOverflow  ErrorCode = "SERIALIZATION_OVERFLOW"
)

// ValidationError codes, as enumerated against the block validator.
const (
	ValBadBlock              ErrorCode = "VAL_BAD_BLOCK"
	ValBlockTooLarge         ErrorCode = "VAL_BLOCK_TOO_LARGE"
	ValBadMerkleRoot         ErrorCode = "VAL_BAD_MERKLE_ROOT"
	ValBadPoW                ErrorCode = "VAL_BAD_POW"
	ValTimestampTooNew       ErrorCode = "VAL_TIMESTAMP_TOO_NEW"
	ValTimestampNotMonotonic ErrorCode = "VAL_TIMESTAMP_NOT_MONOTONIC"
	ValUnknownParent         ErrorCode = "VAL_UNKNOWN_PARENT"
	ValImmatureCoinbaseSpend ErrorCode = "VAL_IMMATURE_COINBASE_SPEND"
	ValDoubleSpendInBlock    ErrorCode = "VAL_DOUBLE_SPEND_IN_BLOCK"
	ValBadSignature          ErrorCode = "VAL_BAD_SIGNATURE"
	ValOverSpend             ErrorCode = "VAL_OVER_SPEND"
	ValOverCoinbase          ErrorCode = "VAL_OVER_COINBASE"
	ValBadDifficulty         ErrorCode = "VAL_BAD_DIFFICULTY"
	ValBadStructure          ErrorCode = "VAL_BAD_STRUCTURE"
)

// PoWError codes.
const (
	PoWNonceExhausted ErrorCode = "POW_NONCE_EXHAUSTED"
	PoWInvalidProof   ErrorCode = "POW_INVALID_PROOF"
	PoWBlockOversized ErrorCode = "POW_BLOCK_OVERSIZED"
)

// MerkleError codes.
const (
	MerkleEmptyTree ErrorCode = "MERKLE_EMPTY_TREE"
)

// Error is the tagged-union error value shared by every consensus-level
// domain (crypto, serialization, validation, PoW, merkle). Storage,
// UTXO-set, mempool and chain-engine packages define their own Error
// types of the same shape, since each is a distinct failure domain.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func cryptoErr(code ErrorCode, msg string) error      { return &Error{Code: code, Msg: msg} }
func serializationErr(code ErrorCode, msg string) error { return &Error{Code: code, Msg: msg} }
func valErr(code ErrorCode, msg string) error          { return &Error{Code: code, Msg: msg} }
func powErr(code ErrorCode, msg string) error          { return &Error{Code: code, Msg: msg} }
func merkleErr(code ErrorCode, msg string) error       { return &Error{Code: code, Msg: msg} }

// NewError constructs a package Error value for callers outside
// consensus that need to raise one of its typed codes (e.g. genesis
// mining reporting nonce exhaustion).
func NewError(code ErrorCode, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// CodeOf extracts the ErrorCode from any error produced by this
// package, returning "" for foreign errors.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok && e != nil {
		return e.Code
	}
	return ""
}
