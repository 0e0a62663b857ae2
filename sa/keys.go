package sa

// KeyMaterial is the SK_* key set derived from SKEYSEED (RFC 7296
// §2.14): absent until the responder's DH exchange completes, per §3
// "key material (may be absent during early states)". Derivation
// itself is handler-body work (out of scope, §1) built on the
// consumed crypto.CipherSuite; this struct is just where the result
// lives once a handler computes it.
type KeyMaterial struct {
	SkD                []byte
	SkAi, SkAr         []byte
	SkEi, SkEr         []byte
	SkPi, SkPr         []byte
}

// AuthKey returns the SK_p key used to sign/verify the AUTH payload
// for the given role.
func (k *KeyMaterial) AuthKey(role Role) []byte {
	if role == Initiator {
		return k.SkPi
	}
	return k.SkPr
}

// EncryptKeys returns (skA, skE) for verifying/decrypting a message
// *received from* the peer in the given role, and for encrypting a
// message *we* send as that role.
//
// Direction matters: the initiator encrypts with SkEi/SkAi and the
// responder decrypts incoming traffic with the same pair, so "our"
// key depends on whether we are the sender or the verifier.
func (k *KeyMaterial) EncryptKeys(weAreInitiator bool) (skA, skE []byte) {
	if weAreInitiator {
		return k.SkAi, k.SkEi
	}
	return k.SkAr, k.SkEr
}

// DecryptKeys returns the peer's (skA, skE), used to verify/decrypt a
// message the peer sent us.
func (k *KeyMaterial) DecryptKeys(weAreInitiator bool) (skA, skE []byte) {
	if weAreInitiator {
		return k.SkAr, k.SkEr
	}
	return k.SkAi, k.SkEi
}
