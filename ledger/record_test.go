package ledger

import (
	"github.com/chaintrail/go-chaintrail-sdk/asymkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestTimestamp(t *testing.T) {
	t.Parallel()
	t.Run("Now is close to the wall clock", func(t *testing.T) {
		before := time.Now()
		timestamp := Now()
		after := time.Now()
		assert.GreaterOrEqual(t, timestamp.Time().UnixNano(), before.UnixNano())
		assert.LessOrEqual(t, timestamp.Time().UnixNano(), after.UnixNano())
	})
	t.Run("Time roundtrip", func(t *testing.T) {
		timestamp := Timestamp{Sec: 1700000000, Nanosec: 123456789}
		assert.Equal(t, int64(1700000000), timestamp.Time().Unix())
		assert.Equal(t, 123456789, timestamp.Time().Nanosecond())
	})
	t.Run("zero value is representable", func(t *testing.T) {
		var timestamp Timestamp
		assert.Equal(t, int64(0), timestamp.Sec)
		assert.Equal(t, int32(0), timestamp.Nanosec)
	})
}

func TestRecord(t *testing.T) {
	key, err := asymkey.Generate(1024)
	require.NoError(t, err)

	t.Parallel()
	t.Run("NewRecord", func(t *testing.T) {
		record := NewRecord[StringPayload]("r1", "hello", 42)
		assert.Equal(t, "r1", record.ID)
		assert.Equal(t, StringPayload("hello"), record.Payload)
		assert.Equal(t, 42, record.Priority)
		assert.NotZero(t, record.Timestamp.Sec)
		assert.Empty(t, record.Signature)
	})

	t.Run("CanonicalString", func(t *testing.T) {
		t.Parallel()
		t.Run("is deterministic", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			first, err := record.CanonicalString()
			require.NoError(t, err)
			second, err := record.CanonicalString()
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
		t.Run("changes with every field", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			reference, err := record.CanonicalString()
			require.NoError(t, err)

			changedID := *record
			changedID.ID = "r2"
			canonical, err := changedID.CanonicalString()
			require.NoError(t, err)
			assert.NotEqual(t, reference, canonical)

			changedPayload := *record
			changedPayload.Payload = "bye"
			canonical, err = changedPayload.CanonicalString()
			require.NoError(t, err)
			assert.NotEqual(t, reference, canonical)

			changedPriority := *record
			changedPriority.Priority = 43
			canonical, err = changedPriority.CanonicalString()
			require.NoError(t, err)
			assert.NotEqual(t, reference, canonical)

			changedTimestamp := *record
			changedTimestamp.Timestamp.Nanosec += 1
			canonical, err = changedTimestamp.CanonicalString()
			require.NoError(t, err)
			assert.NotEqual(t, reference, canonical)
		})
		t.Run("field boundaries cannot collide", func(t *testing.T) {
			// naive concatenation would make these two identical
			first := Record[StringPayload]{ID: "ab", Payload: "c", Priority: 1, Timestamp: Timestamp{Sec: 1}}
			second := Record[StringPayload]{ID: "a", Payload: "bc", Priority: 1, Timestamp: Timestamp{Sec: 1}}
			firstCanonical, err := first.CanonicalString()
			require.NoError(t, err)
			secondCanonical, err := second.CanonicalString()
			require.NoError(t, err)
			assert.NotEqual(t, firstCanonical, secondCanonical)
		})
		t.Run("does not cover the signature", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			before, err := record.CanonicalString()
			require.NoError(t, err)
			require.NoError(t, record.Sign(key))
			after, err := record.CanonicalString()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	})

	t.Run("Sign", func(t *testing.T) {
		t.Parallel()
		t.Run("signs the canonical string", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			err := record.Sign(key)
			require.NoError(t, err)
			assert.NotEmpty(t, record.Signature)

			canonical, err := record.CanonicalString()
			require.NoError(t, err)
			err = key.Public().Verify([]byte(canonical), record.Signature)
			assert.NoError(t, err)
		})
		t.Run("re-signing replaces the signature", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			require.NoError(t, record.Sign(key))
			record.Payload = "changed"
			require.NoError(t, record.Sign(key))
			assert.NoError(t, record.Verify(key.Public()))
		})
		t.Run("nil signer", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			err := record.Sign(nil)
			assert.ErrorIs(t, err, ErrorRecordSignNilSigner)
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Parallel()
		t.Run("valid signature", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			require.NoError(t, record.Sign(key))
			assert.NoError(t, record.Verify(key.Public()))
		})
		t.Run("tampered record", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			require.NoError(t, record.Sign(key))
			record.Payload = "evil"
			assert.Error(t, record.Verify(key.Public()))
		})
		t.Run("wrong key", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			require.NoError(t, record.Sign(key))
			otherKey, err := asymkey.Generate(1024)
			require.NoError(t, err)
			assert.Error(t, record.Verify(otherKey.Public()))
		})
		t.Run("unsigned record", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			err := record.Verify(key.Public())
			assert.ErrorIs(t, err, ErrorRecordVerifyUnsigned)
		})
		t.Run("nil verifier", func(t *testing.T) {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			require.NoError(t, record.Sign(key))
			err := record.Verify(nil)
			assert.ErrorIs(t, err, ErrorRecordVerifyNilVerifier)
		})
	})

	t.Run("IsValid", func(t *testing.T) {
		makeValid := func() *Record[StringPayload] {
			record := NewRecord[StringPayload]("r1", "hello", 42)
			require.NoError(t, record.Sign(key))
			return record
		}
		t.Parallel()
		t.Run("valid record", func(t *testing.T) {
			assert.True(t, makeValid().IsValid())
		})
		t.Run("priority bounds", func(t *testing.T) {
			record := makeValid()
			record.Priority = 0
			assert.True(t, record.IsValid())
			record.Priority = 255
			assert.True(t, record.IsValid())
			record.Priority = -1
			assert.False(t, record.IsValid())
			record.Priority = 256
			assert.False(t, record.IsValid())
		})
		t.Run("empty id", func(t *testing.T) {
			record := makeValid()
			record.ID = ""
			assert.False(t, record.IsValid())
		})
		t.Run("empty payload", func(t *testing.T) {
			record := makeValid()
			record.Payload = ""
			assert.False(t, record.IsValid())
		})
		t.Run("missing signature", func(t *testing.T) {
			record := makeValid()
			record.Signature = nil
			assert.False(t, record.IsValid())
		})
		t.Run("does not verify cryptographically", func(t *testing.T) {
			record := makeValid()
			record.Signature = []byte("not a real signature")
			assert.True(t, record.IsValid())
			assert.Error(t, record.Verify(key.Public()))
		})
	})

	t.Run("StringPayload", func(t *testing.T) {
		payload := StringPayload("some text")
		assert.Equal(t, "some text", payload.String())
	})
}
