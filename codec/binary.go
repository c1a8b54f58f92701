package codec

import (
	"encoding/binary"
	"fmt"
	"github.com/chaintrail/go-chaintrail-sdk/ledger"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
	"go.mongodb.org/mongo-driver/bson"
	"hash/crc32"
)

var (
	// ErrorBinaryTruncated is returned when a binary envelope is shorter than its fixed header
	ErrorBinaryTruncated = utils.NewChainTrailError("CODEC_BINARY_TRUNCATED", "binary envelope truncated")
	// ErrorBinaryBadMagic is returned when a binary envelope does not start with the expected magic
	ErrorBinaryBadMagic = utils.NewChainTrailError("CODEC_BINARY_BAD_MAGIC", "binary envelope bad magic")
	// ErrorBinaryUnknownVersion is returned when decoding a binary envelope with an unsupported version
	ErrorBinaryUnknownVersion = utils.NewChainTrailError("CODEC_BINARY_UNKNOWN_VERSION", "unknown binary envelope version")
	// ErrorBinaryChecksumMismatch is returned when the checksum of a binary envelope does not match its body
	ErrorBinaryChecksumMismatch = utils.NewChainTrailError("CODEC_BINARY_CHECKSUM_MISMATCH", "binary envelope checksum mismatch")
)

// BinaryVersion is the envelope version the Binary codec writes and accepts.
const BinaryVersion = 1

const (
	binaryMagic        = "CTLG"
	binaryHeaderLength = 12 // magic, version, checksum
)

// Binary serializes chain snapshots as a BSON document wrapped in a fixed
// envelope: the "CTLG" magic, a little-endian uint32 version, a little-endian
// uint32 CRC-32 (IEEE) of the body, then the body itself. The checksum guards
// against accidental corruption only. Integrity against tampering comes from
// validating the restored chain.
type Binary[T ledger.Payload] struct{}

func (Binary[T]) Name() string {
	return "binary"
}

func (Binary[T]) Encode(state *ledger.ChainState[T]) ([]byte, error) {
	if state == nil {
		return nil, tracerr.Wrap(ErrorEncodeNilState)
	}
	body, err := bson.Marshal(state)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	data := make([]byte, 0, binaryHeaderLength+len(body))
	data = append(data, binaryMagic...)
	data = binary.LittleEndian.AppendUint32(data, BinaryVersion)
	data = binary.LittleEndian.AppendUint32(data, crc32.ChecksumIEEE(body))
	return append(data, body...), nil
}

func (Binary[T]) Decode(data []byte) (*ledger.ChainState[T], error) {
	if len(data) < binaryHeaderLength {
		return nil, tracerr.Wrap(ErrorBinaryTruncated.AddDetails(fmt.Sprintf("%d bytes", len(data))))
	}
	if string(data[:len(binaryMagic)]) != binaryMagic {
		return nil, tracerr.Wrap(ErrorBinaryBadMagic)
	}
	version := binary.LittleEndian.Uint32(data[len(binaryMagic):8])
	if version != BinaryVersion {
		return nil, tracerr.Wrap(ErrorBinaryUnknownVersion.AddDetails(fmt.Sprintf("version %d", version)))
	}
	checksum := binary.LittleEndian.Uint32(data[8:binaryHeaderLength])
	body := data[binaryHeaderLength:]
	if crc32.ChecksumIEEE(body) != checksum {
		return nil, tracerr.Wrap(ErrorBinaryChecksumMismatch)
	}
	var state ledger.ChainState[T]
	err := bson.Unmarshal(body, &state)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &state, nil
}
