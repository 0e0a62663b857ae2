package demux

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"net"

	"github.com/msgboxio/ikedemux/protocol"
)

// CookieSecret is the responder's stateless-cookie key (§4.7 step 2,
// §GLOSSARY "Cookie"). It is rotated periodically by the caller (a
// concern above this package); Derive/Verify always use whatever
// value is currently stored here.
type CookieSecret struct {
	key []byte
}

// NewCookieSecret generates a fresh 32-byte secret.
func NewCookieSecret() (*CookieSecret, error) {
	k := make([]byte, sha256.Size)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	return &CookieSecret{key: k}, nil
}

// Rotate replaces the secret, invalidating every cookie issued under
// the old one. Callers typically do this on a timer.
func (c *CookieSecret) Rotate() error {
	k := make([]byte, sha256.Size)
	if _, err := rand.Read(k); err != nil {
		return err
	}
	c.key = k
	return nil
}

// Derive computes a 32-byte stateless token bound to (peer address,
// peer initiator SPI, peer nonce): HMAC-SHA256(secret, ip|spiI|ni).
// Nothing about this token is ever stored; verifying a returned
// cookie is just recomputing and comparing.
func (c *CookieSecret) Derive(peer net.Addr, spiI protocol.Spi, ni []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	if host, _, err := net.SplitHostPort(peer.String()); err == nil {
		mac.Write(net.ParseIP(host))
	} else {
		mac.Write([]byte(peer.String()))
	}
	mac.Write(spiI[:])
	mac.Write(ni)
	return mac.Sum(nil)
}

// Verify reports whether given is the cookie this secret would issue
// for (peer, spiI, ni).
func (c *CookieSecret) Verify(peer net.Addr, spiI protocol.Spi, ni, given []byte) bool {
	want := c.Derive(peer, spiI, ni)
	return subtle.ConstantTimeCompare(want, given) == 1
}
