package solana

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProgramAddress_OffCurve(t *testing.T) {
	program := MustPublicKey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	mint := MustPublicKey(WrappedSOLMint)

	addr, bump, err := FindProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, program)
	require.NoError(t, err)
	assert.False(t, isOnCurve(addr[:]))

	again, bumpAgain, err := FindProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, program)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, bump, bumpAgain)
}

func TestFindAssociatedTokenAddress_Deterministic(t *testing.T) {
	owner := MustPublicKey("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	mintA := MustPublicKey(WrappedSOLMint)
	mintB := MustPublicKey(SysvarRentID)
	tokenProgram := MustPublicKey(TokenProgramID)

	a1, err := FindAssociatedTokenAddress(owner, mintA, tokenProgram)
	require.NoError(t, err)
	a2, err := FindAssociatedTokenAddress(owner, mintA, tokenProgram)
	require.NoError(t, err)
	b, err := FindAssociatedTokenAddress(owner, mintB, tokenProgram)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
}

func TestParsePublicKey(t *testing.T) {
	key, err := ParsePublicKey(SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, [32]byte{}, key)
	assert.Equal(t, SystemProgramID, EncodePublicKey(key))

	_, err = ParsePublicKey("not-base58-0OIl")
	assert.Error(t, err)

	_, err = ParsePublicKey("abc")
	assert.Error(t, err)
}

func TestParseMint(t *testing.T) {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint64(data[36:44], 1_000_000_000_000_000)
	data[44] = 6
	data[45] = 1

	mint, err := ParseMint(base64.StdEncoding.EncodeToString(data))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000_000), mint.Supply)
	assert.Equal(t, uint8(6), mint.Decimals)

	_, err = ParseMint(base64.StdEncoding.EncodeToString(data[:40]))
	assert.Error(t, err)
}
