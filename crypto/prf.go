package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/msgboxio/ikedemux/protocol"
)

// Prf is a keyed pseudorandom function as used throughout key
// derivation (RFC 7296 §2.13): SKEYSEED, the seven SK_* keys, and the
// PRF+ expansion function all reduce to repeated calls of one of these.
type Prf struct {
	Length int
	hash   func() hash.Hash
}

func (p *Prf) Compute(key, data []byte) []byte {
	mac := hmac.New(p.hash, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Plus implements prf+ (RFC 7296 §2.13):
//
//	T1 = prf(key, S | 0x01)
//	Tn = prf(key, T(n-1) | S | n)
//	prf+(key, S) = T1 | T2 | T3 | ...
//
// truncated to length bytes.
func (p *Prf) Plus(key, seed []byte, length int) []byte {
	var out, prev []byte
	for c := byte(1); len(out) < length; c++ {
		block := append(append([]byte{}, prev...), seed...)
		block = append(block, c)
		prev = p.Compute(key, block)
		out = append(out, prev...)
	}
	return out[:length]
}

func prfTranform(prfId uint16) (*Prf, error) {
	switch protocol.PrfTransformId(prfId) {
	case protocol.PRF_HMAC_SHA2_256:
		return &Prf{Length: sha256.Size, hash: sha256.New}, nil
	case protocol.PRF_HMAC_SHA1:
		return &Prf{Length: sha1.Size, hash: sha1.New}, nil
	default:
		return nil, protocol.ErrF(protocol.ERR_NO_PROPOSAL_CHOSEN, "unsupported prf transform %d", prfId)
	}
}
