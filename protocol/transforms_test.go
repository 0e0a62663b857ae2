package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransformsAsListContainsEveryConfiguredEntry(t *testing.T) {
	list := IKE_AES_CBC_SHA256_MODP2048.AsList()
	assert.Len(t, list, len(IKE_AES_CBC_SHA256_MODP2048))
	for _, tr := range list {
		assert.True(t, listHas(list, tr))
	}
}

func TestTransformsWithinAcceptsSupersetList(t *testing.T) {
	configured := ESP_AES_CBC_SHA2_256
	superset := append(configured.AsList(), &SaTransform{Transform: Transform{Type: TRANSFORM_TYPE_DH, TransformId: uint16(MODP_2048)}})
	assert.True(t, configured.Within(superset))
}

func TestTransformsWithinRejectsMissingEntry(t *testing.T) {
	configured := IKE_AES_CBC_SHA256_MODP2048
	partial := []*SaTransform{
		{Transform: Transform{Type: TRANSFORM_TYPE_ENCR, TransformId: uint16(ENCR_AES_CBC)}, KeyLength: 128},
	}
	assert.False(t, configured.Within(partial))
}

func TestSaTransformIsEqualComparesTypeIdAndKeyLength(t *testing.T) {
	a := &SaTransform{Transform: Transform{Type: TRANSFORM_TYPE_ENCR, TransformId: uint16(ENCR_AES_CBC)}, KeyLength: 128}
	b := &SaTransform{Transform: Transform{Type: TRANSFORM_TYPE_ENCR, TransformId: uint16(ENCR_AES_CBC)}, KeyLength: 128}
	c := &SaTransform{Transform: Transform{Type: TRANSFORM_TYPE_ENCR, TransformId: uint16(ENCR_AES_CBC)}, KeyLength: 256}

	assert.True(t, a.IsEqual(b))
	assert.False(t, a.IsEqual(c))
	assert.False(t, a.IsEqual(nil))
}
