package keystore

import (
	"encoding/base64"
	"github.com/chaintrail/go-chaintrail-sdk/asymkey"
	"github.com/chaintrail/go-chaintrail-sdk/symmetric_key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"testing"
)

func testIdentity(t *testing.T) *Identity {
	key, err := asymkey.Generate(1024)
	require.NoError(t, err)
	return &Identity{ParticipantID: "operator-1", PrivateKey: key}
}

func TestIdentity(t *testing.T) {
	t.Parallel()
	t.Run("BSON round-trip", func(t *testing.T) {
		identity := testIdentity(t)
		data, err := bson.Marshal(identity)
		require.NoError(t, err)

		var decoded Identity
		err = bson.Unmarshal(data, &decoded)
		require.NoError(t, err)
		assert.Equal(t, identity.ParticipantID, decoded.ParticipantID)
		require.NotNil(t, decoded.PrivateKey)
		assert.Equal(t, identity.PrivateKey.Encode(), decoded.PrivateKey.Encode())
	})
}

func TestExportImportWithPassword(t *testing.T) {
	identity := testIdentity(t)

	t.Parallel()
	t.Run("round-trip", func(t *testing.T) {
		exported, err := ExportWithPassword(identity, "correct horse battery staple")
		require.NoError(t, err)

		imported, err := ImportWithPassword(exported, "correct horse battery staple")
		require.NoError(t, err)
		assert.Equal(t, identity.ParticipantID, imported.ParticipantID)
		require.NotNil(t, imported.PrivateKey)
		assert.Equal(t, identity.PrivateKey.Encode(), imported.PrivateKey.Encode())

		// the imported key signs for the original public key
		signature, err := imported.PrivateKey.Sign([]byte("message"))
		require.NoError(t, err)
		assert.NoError(t, identity.PrivateKey.Public().Verify([]byte("message"), signature))
	})
	t.Run("exports are salted", func(t *testing.T) {
		first, err := ExportWithPassword(identity, "password")
		require.NoError(t, err)
		second, err := ExportWithPassword(identity, "password")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})
	t.Run("wrong password", func(t *testing.T) {
		exported, err := ExportWithPassword(identity, "password")
		require.NoError(t, err)
		_, err = ImportWithPassword(exported, "passw0rd")
		assert.ErrorIs(t, err, symmetric_key.ErrorDecryptMacMismatch)
	})
	t.Run("tampered export", func(t *testing.T) {
		exported, err := ExportWithPassword(identity, "password")
		require.NoError(t, err)
		data, err := base64.StdEncoding.DecodeString(exported)
		require.NoError(t, err)

		// a flipped ciphertext byte breaks the mac
		tampered := append([]byte(nil), data...)
		tampered[len(tampered)-1] ^= 0x01
		_, err = ImportWithPassword(base64.StdEncoding.EncodeToString(tampered), "password")
		assert.ErrorIs(t, err, symmetric_key.ErrorDecryptMacMismatch)

		// so does a flipped salt byte, through the derived key
		tampered = append([]byte(nil), data...)
		tampered[0] ^= 0x01
		_, err = ImportWithPassword(base64.StdEncoding.EncodeToString(tampered), "password")
		assert.ErrorIs(t, err, symmetric_key.ErrorDecryptMacMismatch)
	})
	t.Run("empty password", func(t *testing.T) {
		_, err := ExportWithPassword(identity, "")
		assert.ErrorIs(t, err, ErrorExportNoPassword)
		_, err = ImportWithPassword("whatever", "")
		assert.ErrorIs(t, err, ErrorImportNoPassword)
	})
	t.Run("invalid identity", func(t *testing.T) {
		_, err := ExportWithPassword(nil, "password")
		assert.ErrorIs(t, err, ErrorExportInvalidIdentity)
		_, err = ExportWithPassword(&Identity{ParticipantID: "operator-1"}, "password")
		assert.ErrorIs(t, err, ErrorExportInvalidIdentity)
	})
	t.Run("malformed input", func(t *testing.T) {
		_, err := ImportWithPassword("not base64 €", "password")
		assert.ErrorIs(t, err, ErrorImportInvalidB64)

		short := base64.StdEncoding.EncodeToString(make([]byte, 40))
		_, err = ImportWithPassword(short, "password")
		assert.ErrorIs(t, err, ErrorImportTruncated)
	})
}
