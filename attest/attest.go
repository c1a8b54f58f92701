// Package attest issues portable chain-head attestations. A head token is a
// signed JWT stating "chain X had N blocks and this head hash at time T", so
// an auditor can later check that a chain they are handed has not been
// truncated or rewritten, without access to the original process. Tokens are
// RS256-signed with the operator's asymkey private key and verified offline
// with the matching public key.
package attest

import (
	"github.com/chaintrail/go-chaintrail-sdk/asymkey"
	"github.com/chaintrail/go-chaintrail-sdk/ledger"
	"github.com/chaintrail/go-chaintrail-sdk/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ztrue/tracerr"
	"time"
)

var (
	// ErrorIssueNilChain is returned when issuing a token for a nil chain
	ErrorIssueNilChain = utils.NewChainTrailError("ATTEST_ISSUE_NIL_CHAIN", "cannot attest nil chain")
	// ErrorIssueNilKey is returned when issuing a token without a signing key
	ErrorIssueNilKey = utils.NewChainTrailError("ATTEST_ISSUE_NIL_KEY", "signing key was not provided")
	// ErrorIssueInvalidTTL is returned when issuing a token with a zero or negative lifetime
	ErrorIssueInvalidTTL = utils.NewChainTrailError("ATTEST_ISSUE_INVALID_TTL", "token lifetime must be positive")
	// ErrorVerifyNilKey is returned when verifying a token without a public key
	ErrorVerifyNilKey = utils.NewChainTrailError("ATTEST_VERIFY_NIL_KEY", "verification key was not provided")
	// ErrorConfirmNilClaims is returned when confirming nil claims
	ErrorConfirmNilClaims = utils.NewChainTrailError("ATTEST_CONFIRM_NIL_CLAIMS", "claims were not provided")
	// ErrorConfirmNilChain is returned when confirming claims against a nil chain
	ErrorConfirmNilChain = utils.NewChainTrailError("ATTEST_CONFIRM_NIL_CHAIN", "chain was not provided")
	// ErrorConfirmChainMismatch is returned when claims do not match the live chain head
	ErrorConfirmChainMismatch = utils.NewChainTrailError("ATTEST_CONFIRM_CHAIN_MISMATCH", "claims do not match the chain head")
)

// HeadClaims is the payload of a head token: standard JWT claims plus the
// attested chain head.
type HeadClaims struct {
	jwt.RegisteredClaims
	ChainID    string `json:"chain_id"`
	Length     int    `json:"chain_length"`
	HeadHash   string `json:"head_hash"`
	MerkleRoot string `json:"merkle_root"`
}

// IssueHeadToken signs a token attesting the chain's current head. The chain
// id doubles as the JWT subject.
func IssueHeadToken[T ledger.Payload](chain *ledger.Chain[T], key *asymkey.PrivateKey, issuer string, ttl time.Duration) (string, error) {
	if chain == nil {
		return "", tracerr.Wrap(ErrorIssueNilChain)
	}
	if key == nil {
		return "", tracerr.Wrap(ErrorIssueNilKey)
	}
	if ttl <= 0 {
		return "", tracerr.Wrap(ErrorIssueInvalidTTL)
	}
	head, err := chain.LastBlock()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	tokenID, err := utils.GenerateRandomString(16)
	if err != nil {
		return "", tracerr.Wrap(err)
	}

	now := time.Now()
	claims := &HeadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   chain.ID(),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ChainID:    chain.ID(),
		Length:     chain.Length(),
		HeadHash:   head.ContentHash,
		MerkleRoot: head.MerkleRoot,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key.RSA())
	return signedToken, tracerr.Wrap(err)
}

// VerifyHeadToken checks the token's signature and expiry against the given
// public key and returns its claims. Expiry and signature failures surface as
// the jwt package's sentinel errors.
func VerifyHeadToken(token string, key *asymkey.PublicKey) (*HeadClaims, error) {
	if key == nil {
		return nil, tracerr.Wrap(ErrorVerifyNilKey)
	}
	claims := &HeadClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return key.RSA(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return claims, nil
}

// ConfirmHeadToken compares verified claims against a live chain. It reports
// the first divergence: a confirmed token means the chain still has exactly
// the attested head.
func ConfirmHeadToken[T ledger.Payload](claims *HeadClaims, chain *ledger.Chain[T]) error {
	if claims == nil {
		return tracerr.Wrap(ErrorConfirmNilClaims)
	}
	if chain == nil {
		return tracerr.Wrap(ErrorConfirmNilChain)
	}
	head, err := chain.LastBlock()
	if err != nil {
		return tracerr.Wrap(err)
	}
	if claims.ChainID != chain.ID() {
		return tracerr.Wrap(ErrorConfirmChainMismatch.AddDetails("chain id"))
	}
	if claims.Length != chain.Length() {
		return tracerr.Wrap(ErrorConfirmChainMismatch.AddDetails("length"))
	}
	if claims.HeadHash != head.ContentHash {
		return tracerr.Wrap(ErrorConfirmChainMismatch.AddDetails("head hash"))
	}
	if claims.MerkleRoot != head.MerkleRoot {
		return tracerr.Wrap(ErrorConfirmChainMismatch.AddDetails("merkle root"))
	}
	return nil
}
