package arena

import (
	"encoding/hex"

	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// addressLen is the number of blake256 digest bytes kept for an address.
const addressLen = 20

// AddressFromPubKey derives the canonical wallet address for a secp256k1
// key: the first 20 bytes of blake256 over the compressed serialization,
// hex encoded.
func AddressFromPubKey(pub *secp256k1.PublicKey) string {
	digest := blake256.Sum256(pub.SerializeCompressed())
	return hex.EncodeToString(digest[:addressLen])
}

// CommitHash binds a choice and a nonce: blake256(choice byte || nonce),
// hex encoded. The nonce is the raw bytes, not its hex form.
func CommitHash(choice Choice, nonce []byte) string {
	h := blake256.New()
	h.Write([]byte{byte(choice)})
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyCommit recomputes the hash for a revealed (choice, nonce) pair and
// compares it to the stored commitment.
func VerifyCommit(commitHex string, choice Choice, nonce []byte) bool {
	return commitHex == CommitHash(choice, nonce)
}
