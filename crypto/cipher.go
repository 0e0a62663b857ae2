package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/dgryski/go-camellia"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/msgboxio/ikedemux/protocol"
)

// Must return an interface; it is either cipher.BlockMode or, for a
// future stream cipher, cipher.Stream.
type cipherFunc func(key, iv []byte, isRead bool) interface{}

func cipherTransform(cipherId uint16, keyLen int, cipher *simpleCipher) (*simpleCipher, bool) {
	blockSize, cipherFn, ok := _cipherTransform(cipherId)
	if !ok {
		return nil, false
	}
	if cipher == nil {
		cipher = &simpleCipher{logger: log.NewNopLogger()}
	}
	cipher.keyLen = keyLen
	cipher.blockLen = blockSize
	cipher.ivLen = blockSize
	cipher.cipherFunc = cipherFn
	cipher.EncrTransformId = protocol.EncrTransformId(cipherId)
	return cipher, true
}

func _cipherTransform(cipherId uint16) (int, cipherFunc, bool) {
	switch protocol.EncrTransformId(cipherId) {
	case protocol.ENCR_CAMELLIA_CBC:
		return camellia.BlockSize, cipherCamellia, true
	case protocol.ENCR_AES_CBC:
		return aes.BlockSize, cipherAES, true
	case protocol.ENCR_NULL:
		return 0, cipherNull, true
	default:
		return 0, nil, false
	}
}

// Cipher interface implementation

type simpleCipher struct {
	macLen, macKeyLen int
	macFunc

	keyLen, ivLen, blockLen int
	cipherFunc

	protocol.EncrTransformId
	protocol.AuthTransformId

	logger log.Logger
}

// WithLogger returns a copy of cs that logs cipher internals through
// lg instead of discarding them.
func (cs *simpleCipher) WithLogger(lg log.Logger) *simpleCipher {
	dup := *cs
	dup.logger = lg
	return &dup
}

func (cs *simpleCipher) String() string {
	return cs.EncrTransformId.String() + "+" + cs.AuthTransformId.String()
}

func (cs *simpleCipher) Overhead(clear []byte) int {
	return cs.blockLen - len(clear)%cs.blockLen + cs.macLen + cs.ivLen
}

func (cs *simpleCipher) VerifyDecrypt(ike, skA, skE []byte) (dec []byte, err error) {
	level.Debug(cs.logger).Log("msg", "simple verify&decrypt", "ike_len", len(ike))
	// MAC-then-decrypt
	if err = verifyMac(skA, ike, cs.macLen, cs.macFunc); err != nil {
		return
	}
	b := ike[protocol.IKE_HEADER_LEN:]
	dec, err = decrypt(b[protocol.PAYLOAD_HEADER_LENGTH:len(b)-cs.macLen], skE, cs.ivLen, cs.cipherFunc, cs.logger)
	return
}

func (cs *simpleCipher) EncryptMac(headers, payload, skA, skE []byte) (b []byte, err error) {
	// encrypt-then-MAC
	encr, err := encrypt(payload, skE, cs.ivLen, cs.cipherFunc, cs.logger)
	if err != nil {
		return
	}
	data := append(headers, encr...)
	mac := cs.macFunc(skA, data)
	b = append(data, mac...)
	level.Debug(cs.logger).Log("msg", "simple encrypt&mac", "mac", hex.EncodeToString(mac))
	return
}

// cipherFunc Implementations

func cipherAES(key, iv []byte, isRead bool) interface{} {
	block, _ := aes.NewCipher(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

func cipherCamellia(key, iv []byte, isRead bool) interface{} {
	block, _ := camellia.New(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

func cipherNull([]byte, []byte, bool) interface{} { return nil }

// decryption & encryption routines

func decrypt(b, key []byte, ivLen int, cipherFn cipherFunc, lg log.Logger) (dec []byte, err error) {
	iv := b[0:ivLen]
	ciphertext := b[ivLen:]
	mode := cipherFn(key, iv, true)
	if mode == nil {
		// null transform
		return b, nil
	}
	block := mode.(cipher.BlockMode)
	if len(ciphertext)%block.BlockSize() != 0 {
		err = errors.New("ciphertext is not a multiple of the block size")
		return
	}
	clear := make([]byte, len(ciphertext))
	block.CryptBlocks(clear, ciphertext)
	padlen := clear[len(clear)-1] + 1 // padlen byte itself
	if int(padlen) > block.BlockSize() || int(padlen) > len(clear) {
		err = errors.New("pad length is larger than block size")
		return
	}
	dec = clear[:len(clear)-int(padlen)]
	level.Debug(lg).Log("msg", "block decrypt", "padlen", padlen)
	return
}

func encrypt(clear, key []byte, ivLen int, cipherFn cipherFunc, lg log.Logger) (b []byte, err error) {
	iv := make([]byte, ivLen)
	if ivLen > 0 {
		if _, err = rand.Read(iv); err != nil {
			return
		}
	}
	mode := cipherFn(key, iv, false)
	if mode == nil {
		// null transform
		return clear, nil
	}
	block := mode.(cipher.BlockMode)
	padlen := block.BlockSize() - len(clear)%block.BlockSize()
	pad := make([]byte, padlen)
	pad[padlen-1] = byte(padlen - 1)
	clear = append(clear, pad...)
	ciphertext := make([]byte, len(clear))
	block.CryptBlocks(ciphertext, clear)
	b = append(iv, ciphertext...)
	level.Debug(lg).Log("msg", "block encrypt", "padlen", padlen)
	return
}
