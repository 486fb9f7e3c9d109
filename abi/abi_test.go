package abi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const transferABI = `[{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]}]`

func TestJSONParsesFunctionsAndBuildsSelectors(t *testing.T) {
	parsed, err := JSON([]byte(transferABI))
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, "transfer")
	require.Equal(t, "transfer(address,uint256)", parsed.Methods["transfer"].Sig())
}

func TestMethodBySelectorRoundTrips(t *testing.T) {
	parsed, err := JSON([]byte(transferABI))
	require.NoError(t, err)
	m := parsed.Methods["transfer"]
	sel := m.Selector()

	calldata := append(sel[:], make([]byte, 64)...)
	got, ok := parsed.MethodBySelector(calldata)
	require.True(t, ok)
	require.Equal(t, "transfer", got.Name)
}

func TestMethodBySelectorTooShort(t *testing.T) {
	parsed, err := JSON([]byte(transferABI))
	require.NoError(t, err)
	_, ok := parsed.MethodBySelector([]byte{0x01, 0x02})
	require.False(t, ok)
}

func TestArgumentsUnpackScalars(t *testing.T) {
	parsed, err := JSON([]byte(transferABI))
	require.NoError(t, err)
	m := parsed.Methods["transfer"]

	var calldata []byte
	addrWord := make([]byte, 32)
	addrWord[31] = 0xaa
	calldata = append(calldata, addrWord...)
	amountWord := make([]byte, 32)
	amountWord[31] = 42
	calldata = append(calldata, amountWord...)

	decoded, err := m.Inputs.Unpack(calldata)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, "to", decoded[0].Name)
	require.Equal(t, "42", decoded[1].Scalar.String())
}

func TestParseTypeArrays(t *testing.T) {
	ty, err := ParseType("uint256[]")
	require.NoError(t, err)
	require.Equal(t, KindSlice, ty.Kind)
	require.Equal(t, KindUint, ty.Elem.Kind)

	fixed, err := ParseType("address[3]")
	require.NoError(t, err)
	require.Equal(t, KindArray, fixed.Kind)
	require.Equal(t, 3, fixed.Len)
}
