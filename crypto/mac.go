package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"hash"

	"github.com/go-kit/kit/log"
	"github.com/msgboxio/ikedemux/protocol"
)

type macFunc func(key, data []byte) []byte

func hashMac(h func() hash.Hash, macLen int) macFunc {
	return func(key, data []byte) []byte {
		mac := hmac.New(h, key)
		mac.Write(data)
		return mac.Sum(nil)[:macLen]
	}
}

// integrityTransform fills in the mac side of a simpleCipher, creating
// one if cipher is nil (the encryption transform may arrive before or
// after the integrity transform within a proposal).
func integrityTransform(trfId uint16, cipher *simpleCipher) (*simpleCipher, bool) {
	if cipher == nil {
		cipher = &simpleCipher{logger: log.NewNopLogger()}
	}
	switch protocol.AuthTransformId(trfId) {
	case protocol.AUTH_HMAC_SHA2_256_128:
		cipher.macLen = 16
		cipher.macKeyLen = sha256.Size
		cipher.macFunc = hashMac(sha256.New, 16)
	case protocol.AUTH_HMAC_SHA1_96:
		cipher.macLen = 12
		cipher.macKeyLen = sha1.Size
		cipher.macFunc = hashMac(sha1.New, 12)
	default:
		return nil, false
	}
	cipher.AuthTransformId = protocol.AuthTransformId(trfId)
	return cipher, true
}

// verifyMac recomputes the MAC over everything but its own trailing
// macLen bytes and compares in constant time (RFC 7296 §3.1, "MAC-then
// decrypt" on receive).
func verifyMac(skA, ike []byte, macLen int, fn macFunc) error {
	if macLen == 0 || fn == nil {
		return nil
	}
	if len(ike) < macLen {
		return protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "message shorter than mac")
	}
	signed := ike[:len(ike)-macLen]
	given := ike[len(ike)-macLen:]
	want := fn(skA, signed)
	if subtle.ConstantTimeCompare(want, given) != 1 {
		return protocol.ErrF(protocol.ERR_AUTHENTICATION_FAILED, "mac mismatch")
	}
	return nil
}
