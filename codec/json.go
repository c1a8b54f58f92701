package codec

import (
	"encoding/json"
	"fmt"
	"github.com/chaintrail/go-chaintrail-sdk/ledger"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorJSONUnknownVersion is returned when decoding a JSON envelope with an unsupported version
	ErrorJSONUnknownVersion = utils.NewChainTrailError("CODEC_JSON_UNKNOWN_VERSION", "unknown JSON envelope version")
)

// JSONVersion is the envelope version the JSON codec writes and accepts.
const JSONVersion = 1

type jsonEnvelope[T ledger.Payload] struct {
	Version int                   `json:"version"`
	Chain   *ledger.ChainState[T] `json:"chain"`
}

// JSON serializes chain snapshots as a versioned JSON envelope. Signatures
// round-trip as base64 strings.
type JSON[T ledger.Payload] struct{}

func (JSON[T]) Name() string {
	return "json"
}

func (JSON[T]) Encode(state *ledger.ChainState[T]) ([]byte, error) {
	if state == nil {
		return nil, tracerr.Wrap(ErrorEncodeNilState)
	}
	data, err := json.Marshal(jsonEnvelope[T]{Version: JSONVersion, Chain: state})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return data, nil
}

func (JSON[T]) Decode(data []byte) (*ledger.ChainState[T], error) {
	var envelope jsonEnvelope[T]
	err := json.Unmarshal(data, &envelope)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if envelope.Version != JSONVersion {
		return nil, tracerr.Wrap(ErrorJSONUnknownVersion.AddDetails(fmt.Sprintf("version %d", envelope.Version)))
	}
	return envelope.Chain, nil
}
