package symmetric_key

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/ztrue/tracerr"
	"io"
)

var (
	// ErrorDecodeInvalidLength is returned when decoding a key of invalid lenth
	ErrorDecodeInvalidLength = utils.NewChainTrailError("SYMKEY_DECODE_INVALID_LENGTH", "can't decode SymKey, invalid length")
	// ErrorPadInvalidBlockLen is returned when padding to an invalid length
	ErrorPadInvalidBlockLen = utils.NewChainTrailError("SYMKEY_PAD_INVALID_BLOCK_LEN", "invalid padding block length")
	// ErrorUnpadInvalidBlockLen is returned when the padding of a block has an invalid length
	ErrorUnpadInvalidBlockLen = utils.NewChainTrailError("SYMKEY_UNPAD_INVALID_BLOCK_LEN", "invalid unpadding block length")
	// ErrorUnpadInvalidDataLen is returned when the unpadded data has an invalid length
	ErrorUnpadInvalidDataLen = utils.NewChainTrailError("SYMKEY_UNPAD_INVALID_DATA_LEN", "invalid data length")
	// ErrorUnpadInvalidPadLen is returned when the padding lenth is invalid
	ErrorUnpadInvalidPadLen = utils.NewChainTrailError("SYMKEY_UNPAD_INVALID_PAD_LEN", "invalid padding length")
	// ErrorUnpadInvalidPad is returned when the padding is invalid
	ErrorUnpadInvalidPad = utils.NewChainTrailError("SYMKEY_UNPAD_INVALID_PAD", "invalid padding")
	// ErrorInvalidKeySize is returned when the key has an invalid size
	ErrorInvalidKeySize = utils.NewChainTrailError("SYMKEY_INVALID_KEY_SIZE", "invalid key size")
	// ErrorDecryptCipherInvalid is returned when the ciphertext has invalid length (not full blocks)
	ErrorDecryptCipherInvalid = utils.NewChainTrailError("SYMKEY_DECRYPT_CIPHER_INVALID", "ciphertext is invalid")
	// ErrorDecryptMacMismatch is returned when the decrypted mac does not match
	ErrorDecryptMacMismatch = utils.NewChainTrailError("SYMKEY_DECRYPT_MAC_MISMATCH", "macs do not match")
)

// SymKey is an AES-256-CBC encryption key paired with an HMAC-SHA256
// authentication key. It protects serialized ledgers at rest.
type SymKey struct {
	encryptionKey []byte
	hmacKey       []byte
}

func Generate() (*SymKey, error) {
	randomData, err := utils.GenerateRandomBytes(64)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	symKey := SymKey{
		encryptionKey: randomData[:32],
		hmacKey:       randomData[32:],
	}
	return &symKey, nil
}

func (symKey *SymKey) Encode() []byte {
	encodedSymKey := make([]byte, 64)
	copy(encodedSymKey, symKey.hmacKey)
	copy(encodedSymKey[32:], symKey.encryptionKey)
	return encodedSymKey
}

func Decode(key []byte) (SymKey, error) {
	if len(key) != 64 {
		return SymKey{}, tracerr.Wrap(ErrorDecodeInvalidLength)
	}
	symKey := SymKey{
		encryptionKey: key[32:],
		hmacKey:       key[:32],
	}
	return symKey, nil
}

func aesEncrypt(iv []byte, encryptionKey []byte, plaintext []byte) ([]byte, error) {
	aesCipher, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	encrypter := cipher.NewCBCEncrypter(aesCipher, iv)

	plainTextBytes := make([]byte, len(plaintext))
	copy(plainTextBytes, plaintext)
	plainTextBytes, err = pkcs7Pad(plainTextBytes, encrypter.BlockSize())

	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	cipherText := make([]byte, len(plainTextBytes))
	encrypter.CryptBlocks(cipherText, plainTextBytes)

	return cipherText, nil
}

func aesDecrypt(iv []byte, encryptionKey []byte, cipherText []byte) ([]byte, error) {
	aesCipher, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	decrypter := cipher.NewCBCDecrypter(aesCipher, iv)
	plainTextBytes := make([]byte, len(cipherText))

	if len(cipherText)%decrypter.BlockSize() != 0 { // should never hit this, as the mac error should hit first
		return nil, tracerr.Wrap(ErrorDecryptCipherInvalid)
	}
	decrypter.CryptBlocks(plainTextBytes, cipherText)

	plainTextBytes, err = pkcs7Unpad(plainTextBytes, decrypter.BlockSize())

	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	return plainTextBytes, nil
}

func calculateHMAC(key []byte, message []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)

	macRes := mac.Sum(nil)

	return macRes, nil
}

// Appends padding.
func pkcs7Pad(data []byte, blocklen int) ([]byte, error) {
	if blocklen <= 0 {
		return nil, tracerr.Wrap(ErrorPadInvalidBlockLen.AddDetails(fmt.Sprintf("%d", blocklen)))
	}
	padlen := 1
	for ((len(data) + padlen) % blocklen) != 0 {
		padlen = padlen + 1
	}

	pad := bytes.Repeat([]byte{byte(padlen)}, padlen)
	return append(data, pad...), nil
}

// Returns slice of the original data without padding.
func pkcs7Unpad(data []byte, blocklen int) ([]byte, error) {
	if blocklen <= 0 {
		return nil, tracerr.Wrap(ErrorUnpadInvalidBlockLen.AddDetails(fmt.Sprintf("%d", blocklen)))
	}
	if len(data)%blocklen != 0 || len(data) == 0 {
		return nil, tracerr.Wrap(ErrorUnpadInvalidDataLen.AddDetails(fmt.Sprintf("%d", len(data))))
	}
	padlen := int(data[len(data)-1])
	if padlen > blocklen || padlen == 0 {
		return nil, tracerr.Wrap(ErrorUnpadInvalidPadLen)
	}
	// check padding
	pad := data[len(data)-padlen:]
	for i := 0; i < padlen; i++ {
		if pad[i] != byte(padlen) {
			return nil, tracerr.Wrap(ErrorUnpadInvalidPad)
		}
	}

	return data[:len(data)-padlen], nil
}

// Encrypt produces iv || ciphertext || hmac, authenticating the iv and
// ciphertext together.
func (symKey *SymKey) Encrypt(plaintext []byte) ([]byte, error) {
	if len(symKey.hmacKey) != 32 || len(symKey.encryptionKey) != 32 {
		return nil, tracerr.Wrap(ErrorInvalidKeySize)
	}
	iv, err := utils.GenerateRandomBytes(16)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	cipherText, err := aesEncrypt(iv, symKey.encryptionKey, plaintext)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	res := append(iv, cipherText...)
	mac, err := calculateHMAC(symKey.hmacKey, res)

	res = append(res, mac...)

	return res, nil
}

func (symKey *SymKey) Decrypt(encryptedMessage []byte) ([]byte, error) {
	if len(symKey.hmacKey) != 32 || len(symKey.encryptionKey) != 32 {
		return nil, tracerr.Wrap(ErrorInvalidKeySize)
	}
	cipherTextLength := len(encryptedMessage) - 16 - 32
	if cipherTextLength < 0 {
		return nil, tracerr.Wrap(io.ErrUnexpectedEOF)
	}

	iv := encryptedMessage[:16]
	cipherText := encryptedMessage[16 : len(encryptedMessage)-32]
	toMac := encryptedMessage[:len(encryptedMessage)-32]
	mac := encryptedMessage[len(encryptedMessage)-32:]

	calculatedMac, err := calculateHMAC(symKey.hmacKey, toMac)

	if !hmac.Equal(mac, calculatedMac) {
		return nil, tracerr.Wrap(ErrorDecryptMacMismatch)
	}

	plainText, err := aesDecrypt(iv, symKey.encryptionKey, cipherText)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	return plainText, nil
}
