// Package ledger implements a generic append-only tamper-evident ledger:
// signed records carrying arbitrary payloads, grouped into Merkle-tree-backed
// blocks, linked into a hash chain with all-or-nothing append, and gated by a
// capability-based authorizer.
package ledger

import (
	"fmt"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/gibson042/canonicaljson-go"
	"github.com/ztrue/tracerr"
	"time"
)

var (
	// ErrorRecordSignNilSigner is returned when signing a record with a nil Signer.
	ErrorRecordSignNilSigner = utils.NewChainTrailError("RECORD_SIGN_NIL_SIGNER", "cannot sign record with a nil signer")
	// ErrorRecordVerifyNilVerifier is returned when verifying a record with a nil Verifier.
	ErrorRecordVerifyNilVerifier = utils.NewChainTrailError("RECORD_VERIFY_NIL_VERIFIER", "cannot verify record with a nil verifier")
	// ErrorRecordVerifyUnsigned is returned when verifying a record that was never signed.
	ErrorRecordVerifyUnsigned = utils.NewChainTrailError("RECORD_VERIFY_UNSIGNED", "record has no signature")
)

// Payload is the constraint for application data carried by records. The
// String method is the payload's canonical contribution to hashing and
// signing, and MUST be deterministic: same value, same string, every time.
type Payload interface {
	fmt.Stringer
}

// StringPayload is a convenience Payload for plain text records.
type StringPayload string

func (payload StringPayload) String() string {
	return string(payload)
}

// Signer produces a signature over a message.
// *asymkey.PrivateKey implements it.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// Verifier checks a signature over a message.
// *asymkey.PublicKey implements it.
type Verifier interface {
	Verify(message []byte, signature []byte) error
}

// Timestamp is a wall clock instant split into integer seconds and
// nanoseconds, so canonical encodings never contain floats.
type Timestamp struct {
	Sec     int64 `json:"sec" bson:"sec"`
	Nanosec int32 `json:"nanosec" bson:"nanosec"`
}

// Now captures the current wall clock as a Timestamp.
func Now() Timestamp {
	now := time.Now()
	return Timestamp{Sec: now.Unix(), Nanosec: int32(now.Nanosecond())}
}

func (timestamp Timestamp) Time() time.Time {
	return time.Unix(timestamp.Sec, int64(timestamp.Nanosec))
}

// Record is a single signed entry of the ledger. Once a record has been
// admitted into a block, it is read-only: any later mutation is detected by
// validation.
type Record[T Payload] struct {
	ID        string    `json:"id" bson:"id"`
	Payload   T         `json:"payload" bson:"payload"`
	Priority  int       `json:"priority" bson:"priority"`
	Timestamp Timestamp `json:"timestamp" bson:"timestamp"`
	Signature []byte    `json:"signature" bson:"signature"`
}

// NewRecord builds an unsigned record, timestamped with the current wall
// clock. Call Sign before handing it to a block.
func NewRecord[T Payload](id string, payload T, priority int) *Record[T] {
	return &Record[T]{
		ID:        id,
		Payload:   payload,
		Priority:  priority,
		Timestamp: Now(),
	}
}

type recordCanonical struct {
	ID        string    `json:"id"`
	Payload   string    `json:"payload"`
	Priority  int       `json:"priority"`
	Timestamp Timestamp `json:"timestamp"`
}

// CanonicalString returns the deterministic encoding of the record that
// signatures and Merkle leaves cover. It is canonical JSON over the id, the
// payload's String output, the priority and the timestamp, so no combination
// of field values can collide with another.
func (record *Record[T]) CanonicalString() (string, error) {
	serializedRecord, err := canonicaljson.Marshal(recordCanonical{
		ID:        record.ID,
		Payload:   record.Payload.String(),
		Priority:  record.Priority,
		Timestamp: record.Timestamp,
	})
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	return string(serializedRecord), nil
}

// Sign computes the signature over the record's canonical string. Signing an
// already signed record replaces the signature.
func (record *Record[T]) Sign(signer Signer) error {
	if signer == nil {
		return tracerr.Wrap(ErrorRecordSignNilSigner)
	}
	canonical, err := record.CanonicalString()
	if err != nil {
		return tracerr.Wrap(err)
	}
	signature, err := signer.Sign([]byte(canonical))
	if err != nil {
		return tracerr.Wrap(err)
	}
	record.Signature = signature
	return nil
}

// Verify checks the record's signature against the given verifier.
func (record *Record[T]) Verify(verifier Verifier) error {
	if verifier == nil {
		return tracerr.Wrap(ErrorRecordVerifyNilVerifier)
	}
	if len(record.Signature) == 0 {
		return tracerr.Wrap(ErrorRecordVerifyUnsigned)
	}
	canonical, err := record.CanonicalString()
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = verifier.Verify([]byte(canonical), record.Signature)
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

// IsValid checks presence and ranges only: non-empty id, non-empty payload
// string, a signature, and a priority between 0 and 255. It does NOT verify
// the signature cryptographically, as that requires a key: use Verify.
func (record *Record[T]) IsValid() bool {
	if record.ID == "" {
		return false
	}
	if record.Payload.String() == "" {
		return false
	}
	if len(record.Signature) == 0 {
		return false
	}
	if record.Priority < 0 || record.Priority > 255 {
		return false
	}
	return true
}
