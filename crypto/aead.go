package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/msgboxio/ikedemux/protocol"
	"golang.org/x/crypto/chacha20poly1305"
)

// ikeSaltLen is the fixed salt prefixed to every nonce, carried in the
// derived SK_e key material alongside the raw AEAD key (RFC 7296 §5.1
// for AES-GCM; RFC 7634 §2 for ChaCha20-Poly1305 uses the same shape).
const ikeSaltLen = 4

type aeadFunc func(key []byte) (cipher.AEAD, error)

// aeadCipher implements Cipher for the AEAD transforms: the integrity
// transform is folded into the AEAD tag, so unlike simpleCipher there
// is no separate macFunc.
type aeadCipher struct {
	keyLen   int // raw key length, excluding the salt
	overhead int // tag length

	newAEAD aeadFunc

	protocol.EncrTransformId
}

func (c *aeadCipher) Overhead(clear []byte) int {
	return ikeSaltLen + 8 /* explicit IV */ + c.overhead
}

// split pulls the fixed salt off the end of derived key material, per
// RFC 7296 §5.1 / RFC 7634 §2: SK_e carries key || salt.
func (c *aeadCipher) split(skE []byte) (key, salt []byte) {
	return skE[:len(skE)-ikeSaltLen], skE[len(skE)-ikeSaltLen:]
}

func (c *aeadCipher) VerifyDecrypt(ike, skA, skE []byte) (dec []byte, err error) {
	key, salt := c.split(skE)
	aead, err := c.newAEAD(key)
	if err != nil {
		return nil, err
	}
	assocLen := protocol.IKE_HEADER_LEN + protocol.PAYLOAD_HEADER_LENGTH
	if len(ike) < assocLen+8+c.overhead {
		return nil, protocol.ErrF(protocol.ERR_INVALID_SYNTAX, "aead message too short")
	}
	assoc := ike[:assocLen]
	body := ike[assocLen:]
	iv := body[:8]
	ciphertext := body[8:]
	nonce := append(append([]byte{}, salt...), iv...)
	dec, err = aead.Open(nil, nonce, ciphertext, assoc)
	if err != nil {
		return nil, protocol.ErrF(protocol.ERR_AUTHENTICATION_FAILED, "aead open failed: %v", err)
	}
	return dec, nil
}

func (c *aeadCipher) EncryptMac(headers, payload, skA, skE []byte) (b []byte, err error) {
	key, salt := c.split(skE)
	aead, err := c.newAEAD(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, 8)
	if _, err = rand.Read(iv); err != nil {
		return nil, err
	}
	nonce := append(append([]byte{}, salt...), iv...)
	sealed := aead.Seal(nil, nonce, payload, headers)
	b = append(headers, iv...)
	b = append(b, sealed...)
	return b, nil
}

func aeadTransform(cipherId uint16, keyLen int, existing *aeadCipher) (*aeadCipher, int, bool) {
	switch protocol.EncrTransformId(cipherId) {
	case protocol.AEAD_AES_GCM_16:
		if keyLen == 0 {
			keyLen = 16
		}
		return &aeadCipher{
			keyLen:          keyLen,
			overhead:        16,
			EncrTransformId: protocol.EncrTransformId(cipherId),
			newAEAD: func(key []byte) (cipher.AEAD, error) {
				block, err := aes.NewCipher(key)
				if err != nil {
					return nil, err
				}
				return cipher.NewGCM(block)
			},
		}, keyLen, true
	case protocol.ENCR_CHACHA20_POLY1305:
		keyLen = chacha20poly1305.KeySize
		return &aeadCipher{
			keyLen:          keyLen,
			overhead:        chacha20poly1305.Overhead,
			EncrTransformId: protocol.EncrTransformId(cipherId),
			newAEAD: func(key []byte) (cipher.AEAD, error) {
				return chacha20poly1305.New(key)
			},
		}, keyLen, true
	default:
		_ = existing
		return nil, keyLen, false
	}
}
