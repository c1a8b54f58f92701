// Package keystore puts signing identities at rest: password-protected
// export/import of a participant's private key, and PEM helpers for interop
// with external tooling. The password flow derives a symmetric key with
// scrypt over a namespaced salt, then seals the BSON-serialized identity with
// encrypt-then-mac, so a wrong password surfaces as a MAC mismatch instead of
// silently yielding garbage.
package keystore

import (
	"encoding/base64"
	"github.com/chaintrail/go-chaintrail-sdk/asymkey"
	"github.com/chaintrail/go-chaintrail-sdk/symmetric_key"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrorExportNoPassword is returned when no password was provided at export
	ErrorExportNoPassword = utils.NewChainTrailError("KEYSTORE_EXPORT_NO_PASSWORD", "password was not provided at export")
	// ErrorExportInvalidIdentity is returned when exporting a nil identity or an identity without a private key
	ErrorExportInvalidIdentity = utils.NewChainTrailError("KEYSTORE_EXPORT_INVALID_IDENTITY", "identity to export has no private key")
	// ErrorImportNoPassword is returned when no password was provided at import
	ErrorImportNoPassword = utils.NewChainTrailError("KEYSTORE_IMPORT_NO_PASSWORD", "password was not provided at import")
	// ErrorImportInvalidB64 is returned when the exported identity is not valid base64
	ErrorImportInvalidB64 = utils.NewChainTrailError("KEYSTORE_IMPORT_INVALID_B64", "invalid base64")
	// ErrorImportTruncated is returned when the exported identity is too short to contain a salt and a sealed payload
	ErrorImportTruncated = utils.NewChainTrailError("KEYSTORE_IMPORT_TRUNCATED", "exported identity truncated")
)

const saltLength = 32

// Identity binds a participant id to its signing key.
type Identity struct {
	ParticipantID string              `bson:"participantId"`
	PrivateKey    *asymkey.PrivateKey `bson:"privateKey"`
}

// deriveKey stretches the password into a symmetric key. The salt is
// namespaced with a keystore tag, so the same password and salt used by
// another component cannot unseal an exported identity.
func deriveKey(password string, salt []byte) (symmetric_key.SymKey, error) {
	fullSalt := append([]byte{}, salt...)
	fullSalt = append(fullSalt, utils.NormalizeString("chaintrail-keystore-encryption")...)
	N := 16384
	r := 8
	p := 1
	bytes, err := scrypt.Key(utils.NormalizeString(password), fullSalt, N, r, p, 64)
	if err != nil {
		return symmetric_key.SymKey{}, tracerr.Wrap(err)
	}
	symKey, err := symmetric_key.Decode(bytes)
	if err != nil {
		return symmetric_key.SymKey{}, tracerr.Wrap(err)
	}
	return symKey, nil
}

// ExportWithPassword seals the identity with the given password and returns
// it as base64(salt || ciphertext). The salt is random, so exporting the same
// identity twice yields different strings.
func ExportWithPassword(identity *Identity, password string) (string, error) {
	if identity == nil || identity.PrivateKey == nil {
		return "", tracerr.Wrap(ErrorExportInvalidIdentity)
	}
	if password == "" {
		return "", tracerr.Wrap(ErrorExportNoPassword)
	}

	salt, err := utils.GenerateRandomBytes(saltLength)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	symKey, err := deriveKey(password, salt)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	data, err := bson.Marshal(identity)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	encryptedIdentity, err := symKey.Encrypt(data)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	saltAndData := append([]byte{}, salt...)
	saltAndData = append(saltAndData, encryptedIdentity...)
	return base64.StdEncoding.EncodeToString(saltAndData), nil
}

// ImportWithPassword unseals an exported identity. A wrong password comes
// back as symmetric_key.ErrorDecryptMacMismatch.
func ImportWithPassword(encoded string, password string) (*Identity, error) {
	if password == "" {
		return nil, tracerr.Wrap(ErrorImportNoPassword)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, tracerr.Wrap(ErrorImportInvalidB64.AddDetails(err.Error()))
	}
	// salt, then at least an iv and a mac
	if len(data) < saltLength+48 {
		return nil, tracerr.Wrap(ErrorImportTruncated)
	}
	salt := data[0:saltLength]
	symKey, err := deriveKey(password, salt)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	clearData, err := symKey.Decrypt(data[saltLength:])
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	var identity Identity
	err = bson.Unmarshal(clearData, &identity)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &identity, nil
}
