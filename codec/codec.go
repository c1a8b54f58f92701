// Package codec provides interchangeable, versioned serializations of chain
// snapshots. A codec turns a ledger.ChainState into bytes and back, nothing
// more: hashes, merkle roots and signatures travel verbatim, and no decoding
// path validates anything. Callers restore through ledger.RestoreChain and
// then run IsValid, so tampering with a stored snapshot surfaces exactly like
// tampering with a live chain.
package codec

import (
	"bytes"
	"github.com/chaintrail/go-chaintrail-sdk/ledger"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorDetectEmptyInput is returned when trying to detect the codec of an empty byte slice
	ErrorDetectEmptyInput = utils.NewChainTrailError("CODEC_DETECT_EMPTY_INPUT", "cannot detect codec of empty input")
	// ErrorEncodeNilState is returned when trying to encode a nil chain state
	ErrorEncodeNilState = utils.NewChainTrailError("CODEC_ENCODE_NIL_STATE", "cannot encode nil chain state")
)

// Codec serializes chain snapshots. Implementations must round-trip every
// field of the state, including raw signature bytes and the genesis
// previous-hash sentinel.
type Codec[T ledger.Payload] interface {
	Name() string
	Encode(state *ledger.ChainState[T]) ([]byte, error)
	Decode(data []byte) (*ledger.ChainState[T], error)
}

// Detect sniffs the serialization of data: the binary envelope magic selects
// the Binary codec, anything else falls back to JSON.
func Detect[T ledger.Payload](data []byte) (Codec[T], error) {
	if len(data) == 0 {
		return nil, tracerr.Wrap(ErrorDetectEmptyInput)
	}
	if len(data) >= len(binaryMagic) && bytes.Equal(data[:len(binaryMagic)], []byte(binaryMagic)) {
		return Binary[T]{}, nil
	}
	return JSON[T]{}, nil
}
