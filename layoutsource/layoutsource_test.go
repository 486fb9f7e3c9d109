package layoutsource

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/slotcodec"
)

const scenarioLayout = `{
  "storage": [
    {"label": "owner", "offset": 0, "slot": "0", "type": "t_address"},
    {"label": "precedingValue", "offset": 0, "slot": "1", "type": "t_uint8"},
    {"label": "balances", "offset": 0, "slot": "2", "type": "t_mapping(t_address,t_uint256)"},
    {"label": "numbers", "offset": 0, "slot": "3", "type": "t_array(t_uint256)dyn_storage"},
    {"label": "basicStruct", "offset": 0, "slot": "4", "type": "t_struct(BasicStruct)_storage"}
  ],
  "types": {
    "t_address": {"encoding": "inplace", "label": "address", "numberOfBytes": "20"},
    "t_uint8": {"encoding": "inplace", "label": "uint8", "numberOfBytes": "1"},
    "t_uint256": {"encoding": "inplace", "label": "uint256", "numberOfBytes": "32"},
    "t_bool": {"encoding": "inplace", "label": "bool", "numberOfBytes": "1"},
    "t_mapping(t_address,t_uint256)": {"encoding": "mapping", "label": "mapping(address => uint256)", "key": "t_address", "value": "t_uint256", "numberOfBytes": "32"},
    "t_array(t_uint256)dyn_storage": {"encoding": "dynamic_array", "label": "uint256[]", "base": "t_uint256", "numberOfBytes": "32"},
    "t_struct(BasicStruct)_storage": {
      "encoding": "inplace", "label": "struct BasicStruct", "numberOfBytes": "64",
      "members": [
        {"label": "id", "offset": 0, "slot": "0", "type": "t_uint256"},
        {"label": "flag", "offset": 0, "slot": "1", "type": "t_bool"}
      ]
    }
  }
}`

func TestParseStorageLayoutBuildsVariables(t *testing.T) {
	vars, err := ParseStorageLayout([]byte(scenarioLayout))
	require.NoError(t, err)
	require.Len(t, vars, 5)

	byLabel := make(map[string]*layout.StorageVariable, len(vars))
	for _, v := range vars {
		byLabel[v.Label] = v
	}

	owner := byLabel["owner"]
	require.Equal(t, layout.TypePrimitive, owner.Type.Kind)
	require.Equal(t, slotcodec.KindAddress, owner.Type.Primitive.Kind)

	balances := byLabel["balances"]
	require.Equal(t, layout.EncodingMapping, balances.Encoding)
	require.Equal(t, layout.TypeMapping, balances.Type.Kind)
	require.Equal(t, slotcodec.KindAddress, balances.Type.KeyType.Kind)
	require.Equal(t, slotcodec.KindUint, balances.Type.ValueType.Primitive.Kind)

	numbers := byLabel["numbers"]
	require.Equal(t, layout.EncodingDynamicArray, numbers.Encoding)
	require.Equal(t, layout.TypeDynamicArray, numbers.Type.Kind)
	require.Equal(t, slotcodec.KindUint, numbers.Type.Element.Primitive.Kind)

	basic := byLabel["basicStruct"]
	require.Equal(t, layout.TypeStruct, basic.Type.Kind)
	require.Len(t, basic.Type.Fields, 2)
	require.Equal(t, "id", basic.Type.Fields[0].Name)
	require.Equal(t, "flag", basic.Type.Fields[1].Name)
	require.Equal(t, uint64(1), basic.Type.Fields[1].Slot)
}

func TestParseStorageLayoutFeedsIndexBuild(t *testing.T) {
	vars, err := ParseStorageLayout([]byte(scenarioLayout))
	require.NoError(t, err)

	idx, err := layout.Build("0xabc", vars)
	require.NoError(t, err)
	require.Len(t, idx.MappingRoots(), 1)
	require.Len(t, idx.ArrayRoots(), 1)
}

func TestParseStorageLayoutDanglingTypeReference(t *testing.T) {
	bad := `{"storage":[{"label":"x","offset":0,"slot":"0","type":"t_missing"}],"types":{}}`
	_, err := ParseStorageLayout([]byte(bad))
	require.Error(t, err)
}
