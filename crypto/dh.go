package crypto

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/msgboxio/ikedemux/protocol"
)

// dhGroup is a MODP (or, in principle, ECP) Diffie-Hellman group: the
// half of the Cryptographic Interface (spec §6) that turns a KE
// payload into a shared secret. Kept unexported: callers only ever see
// it through CipherSuite.DhGroup, set up by NewCipherSuite.
type dhGroup interface {
	generatePrivate(rand io.Reader) (*big.Int, error)
	publicKey(priv *big.Int) *big.Int
	sharedSecret(theirPublic, priv *big.Int) (*big.Int, error)
}

// modpGroup implements dhGroup over a fixed prime/generator pair, per
// RFC 3526 / RFC 2409.
type modpGroup struct {
	prime     *big.Int
	generator *big.Int
}

func (g *modpGroup) generatePrivate(r io.Reader) (*big.Int, error) {
	// private exponent: uniform in [2, prime-2]
	max := new(big.Int).Sub(g.prime, big.NewInt(3))
	n, err := rand.Int(r, max)
	if err != nil {
		return nil, err
	}
	return n.Add(n, big.NewInt(2)), nil
}

func (g *modpGroup) publicKey(priv *big.Int) *big.Int {
	return new(big.Int).Exp(g.generator, priv, g.prime)
}

func (g *modpGroup) sharedSecret(theirPublic, priv *big.Int) (*big.Int, error) {
	if theirPublic.Sign() <= 0 || theirPublic.Cmp(g.prime) >= 0 {
		return nil, protocol.ErrF(protocol.ERR_INVALID_KE_PAYLOAD, "peer public value out of range")
	}
	return new(big.Int).Exp(theirPublic, priv, g.prime), nil
}

// RFC 3526 Group 14, the 2048 bit MODP group.
const modp2048Hex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC7" +
	"4020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14" +
	"374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B" +
	"7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163" +
	"BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208" +
	"552BB9ED5297707096966D670C354E4ABC9804F1746C08CA18217C32905E46" +
	"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF" +
	"6955817183995497CEA956AE515D2261898FA05015728E5A8AACAA68FFFFFF" +
	"FFFFFFFFFF"

var kexAlgoMap map[protocol.DhTransformId]dhGroup

func init() {
	p, ok := new(big.Int).SetString(modp2048Hex, 16)
	if !ok {
		panic("crypto: malformed modp2048 constant")
	}
	kexAlgoMap = map[protocol.DhTransformId]dhGroup{
		protocol.MODP_2048: &modpGroup{prime: p, generator: big.NewInt(2)},
	}
}
