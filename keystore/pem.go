package keystore

import (
	"encoding/pem"
	"github.com/chaintrail/go-chaintrail-sdk/asymkey"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorPEMNilKey is returned when encoding a nil key to PEM
	ErrorPEMNilKey = utils.NewChainTrailError("KEYSTORE_PEM_NIL_KEY", "cannot encode nil key to PEM")
	// ErrorPEMNoBlock is returned when the input contains no PEM block
	ErrorPEMNoBlock = utils.NewChainTrailError("KEYSTORE_PEM_NO_BLOCK", "no PEM block found")
	// ErrorPEMUnexpectedType is returned when the PEM block is not of the expected type
	ErrorPEMUnexpectedType = utils.NewChainTrailError("KEYSTORE_PEM_UNEXPECTED_TYPE", "unexpected PEM block type")
)

const (
	privateKeyPEMType = "PRIVATE KEY"
	publicKeyPEMType  = "PUBLIC KEY"
)

// PrivateKeyToPEM encodes a private key as a PKCS#8 PEM block.
func PrivateKeyToPEM(key *asymkey.PrivateKey) (string, error) {
	if key == nil {
		return "", tracerr.Wrap(ErrorPEMNilKey)
	}
	block := &pem.Block{Type: privateKeyPEMType, Bytes: key.Encode()}
	return string(pem.EncodeToMemory(block)), nil
}

// PrivateKeyFromPEM parses a PKCS#8 PEM block back into a private key.
func PrivateKeyFromPEM(pemKey string) (*asymkey.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, tracerr.Wrap(ErrorPEMNoBlock)
	}
	if block.Type != privateKeyPEMType {
		return nil, tracerr.Wrap(ErrorPEMUnexpectedType.AddDetails(block.Type))
	}
	key, err := asymkey.PrivateKeyDecode(block.Bytes)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return key, nil
}

// PublicKeyToPEM encodes a public key as a PKIX PEM block.
func PublicKeyToPEM(key *asymkey.PublicKey) (string, error) {
	if key == nil {
		return "", tracerr.Wrap(ErrorPEMNilKey)
	}
	block := &pem.Block{Type: publicKeyPEMType, Bytes: key.Encode()}
	return string(pem.EncodeToMemory(block)), nil
}

// PublicKeyFromPEM parses a PKIX PEM block back into a public key.
func PublicKeyFromPEM(pemKey string) (*asymkey.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, tracerr.Wrap(ErrorPEMNoBlock)
	}
	if block.Type != publicKeyPEMType {
		return nil, tracerr.Wrap(ErrorPEMUnexpectedType.AddDetails(block.Type))
	}
	key, err := asymkey.PublicKeyDecode(block.Bytes)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return key, nil
}
