package protocol

// TransformType identifies which negotiation slot (encryption, PRF,
// integrity, DH group, extended sequence numbers) a transform fills
// within a proposal (RFC 7296 §3.3.2).
type TransformType uint8

const (
	TRANSFORM_TYPE_ENCR  TransformType = 1
	TRANSFORM_TYPE_PRF   TransformType = 2
	TRANSFORM_TYPE_INTEG TransformType = 3
	TRANSFORM_TYPE_DH    TransformType = 4
	TRANSFORM_TYPE_ESN   TransformType = 5
)

// Transform is a (type, id) pair as carried on the wire; SaTransform
// adds the decoded key-length attribute and last-substructure bit.
type Transform struct {
	Type        TransformType
	TransformId uint16
}

type EncrTransformId uint16

const (
	ENCR_DES_IV64 EncrTransformId = 1
	ENCR_DES      EncrTransformId = 2
	ENCR_3DES     EncrTransformId = 3
	ENCR_RC5      EncrTransformId = 4
	ENCR_IDEA     EncrTransformId = 5
	ENCR_CAST     EncrTransformId = 6
	ENCR_BLOWFISH EncrTransformId = 7
	ENCR_3IDEA    EncrTransformId = 8
	ENCR_DES_IV32 EncrTransformId = 9

	ENCR_NULL      EncrTransformId = 11
	ENCR_AES_CBC   EncrTransformId = 12
	ENCR_AES_CTR   EncrTransformId = 13
	ENCR_AES_CCM_8 EncrTransformId = 14

	AEAD_AES_GCM_8          EncrTransformId = 18
	AEAD_AES_GCM_12         EncrTransformId = 19
	AEAD_AES_GCM_16         EncrTransformId = 20
	ENCR_NULL_AUTH_AES_GMAC EncrTransformId = 21

	ENCR_CAMELLIA_CBC EncrTransformId = 23
	ENCR_CAMELLIA_CTR EncrTransformId = 24

	ENCR_CHACHA20_POLY1305 EncrTransformId = 28 // RFC 7634
)

type PrfTransformId uint16

const (
	PRF_HMAC_MD5      PrfTransformId = 1
	PRF_HMAC_SHA1     PrfTransformId = 2
	PRF_HMAC_TIGER    PrfTransformId = 3
	PRF_AES128_XCBC   PrfTransformId = 4
	PRF_HMAC_SHA2_256 PrfTransformId = 5
	PRF_HMAC_SHA2_384 PrfTransformId = 6
	PRF_HMAC_SHA2_512 PrfTransformId = 7
)

type AuthTransformId uint16

const (
	AUTH_NONE              AuthTransformId = 0
	AUTH_HMAC_MD5_96       AuthTransformId = 1
	AUTH_HMAC_SHA1_96      AuthTransformId = 2
	AUTH_AES_XCBC_96       AuthTransformId = 5
	AUTH_HMAC_SHA2_256_128 AuthTransformId = 12
	AUTH_HMAC_SHA2_384_192 AuthTransformId = 13
	AUTH_HMAC_SHA2_512_256 AuthTransformId = 14
)

type DhTransformId uint16

const (
	MODP_NONE DhTransformId = 0
	MODP_768  DhTransformId = 1
	MODP_1024 DhTransformId = 2
	MODP_1536 DhTransformId = 5

	MODP_2048 DhTransformId = 14
	MODP_3072 DhTransformId = 15
	MODP_4096 DhTransformId = 16
	MODP_6144 DhTransformId = 17
	MODP_8192 DhTransformId = 18
	ECP_256   DhTransformId = 19
	ECP_384   DhTransformId = 20
	ECP_521   DhTransformId = 21
)

type EsnTransformid uint16

const (
	ESN_NONE EsnTransformid = 0
	ESN      EsnTransformid = 1
)

// HashAlgorithmId appears inside the RFC 7427 SIGNATURE_HASH_ALGORITHMS
// notify payload, carried as a list of 16 bit values.
type HashAlgorithmId uint16

const (
	HASH_RESERVED  HashAlgorithmId = 0
	HASH_SHA1      HashAlgorithmId = 1
	HASH_SHA2_256  HashAlgorithmId = 2
	HASH_SHA2_384  HashAlgorithmId = 3
	HASH_SHA2_512  HashAlgorithmId = 4
)
