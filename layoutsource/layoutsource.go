// Package layoutsource is the ambient adapter over the LayoutSource
// collaborator (spec.md §6): it fetches a compiler-emitted storage layout
// plus a contract's ABI from a block-explorer API and parses them into the
// layout package's variable/type graph. Contract metadata acquisition is
// explicitly out of the core's scope (spec.md §1); this package is the one
// place that talks to an explorer.
package layoutsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/abi"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/slotcodec"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// NotFound is returned by LayoutFor when the explorer has no verified
// source (and therefore no storage layout) for address (spec.md §6).
type NotFound struct {
	Address evmcommon.Address
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("layoutsource: no verified layout for %s", e.Address.Hex())
}

// Layout is the parsed result LayoutFor returns: the variable list ready
// for layout.Build, plus the contract's ABI for KeyOracle's calldata
// extraction (spec.md §6 "variables, types, abi").
type Layout struct {
	Variables []*layout.StorageVariable
	ABI       abi.ABI
}

// Source is the spec's LayoutSource collaborator.
type Source interface {
	LayoutFor(ctx context.Context, address evmcommon.Address) (Layout, error)
}

// Client fetches storage layouts and ABIs from an Etherscan-family block
// explorer API: one action returns the compiler's raw storageLayout JSON,
// another the contract ABI JSON, both keyed by contract address.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
}

// NewClient builds a Client against an explorer API root (e.g.
// "https://api.etherscan.io/api") authenticated with apiKey.
func NewClient(baseURL, apiKey string) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 200 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.Logger = nil
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type explorerEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// LayoutFor implements Source.
func (c *Client) LayoutFor(ctx context.Context, address evmcommon.Address) (Layout, error) {
	rawLayout, err := c.get(ctx, "getstoragelayout", address)
	if err != nil {
		return Layout{}, err
	}
	if rawLayout == nil {
		return Layout{}, &NotFound{Address: address}
	}
	variables, err := ParseStorageLayout(rawLayout)
	if err != nil {
		return Layout{}, fmt.Errorf("layoutsource: %s: %w", address.Hex(), err)
	}

	rawABI, err := c.get(ctx, "getabi", address)
	if err != nil {
		return Layout{}, err
	}
	var parsedABI abi.ABI
	if rawABI != nil {
		var abiJSON string
		if err := jsonAPI.Unmarshal(rawABI, &abiJSON); err == nil {
			parsedABI, _ = abi.JSON([]byte(abiJSON))
		} else {
			parsedABI, _ = abi.JSON(rawABI)
		}
	}

	return Layout{Variables: variables, ABI: parsedABI}, nil
}

func (c *Client) get(ctx context.Context, action string, address evmcommon.Address) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", action)
	q.Set("address", address.Hex())
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("layoutsource: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("layoutsource: %s: %w", action, err)
	}
	defer resp.Body.Close()

	var env explorerEnvelope
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("layoutsource: decode %s response: %w", action, err)
	}
	if env.Status != "1" {
		return nil, nil
	}
	return env.Result, nil
}

// --- solc storageLayout JSON parsing ---
//
// The Solidity compiler's standard-json output includes a "storageLayout"
// object shaped { "storage": [...], "types": { "t_...": {...} } }. Types
// reference each other by string key (base/key/value/members[].type),
// which is exactly the "handle into a type dictionary, not an embedded
// owning structure" representation spec.md §9 calls for to keep
// self-referential type graphs (a mapping whose value eventually reaches
// itself) representable and traversal bounded by slot concreteness.

type rawStorageVar struct {
	Label  string `json:"label"`
	Offset int    `json:"offset"`
	Slot   string `json:"slot"`
	Type   string `json:"type"`
}

type rawType struct {
	Encoding      string          `json:"encoding"`
	Label         string          `json:"label"`
	NumberOfBytes string          `json:"numberOfBytes"`
	Key           string          `json:"key"`
	Value         string          `json:"value"`
	Base          string          `json:"base"`
	Members       []rawStorageVar `json:"members"`
}

type rawDocument struct {
	Storage []rawStorageVar    `json:"storage"`
	Types   map[string]rawType `json:"types"`
}

// ParseStorageLayout parses a solc storageLayout JSON document into a flat
// StorageVariable list suitable for layout.Build.
func ParseStorageLayout(data []byte) ([]*layout.StorageVariable, error) {
	var doc rawDocument
	if err := jsonAPI.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse storageLayout: %w", err)
	}

	resolver := &typeResolver{raw: doc.Types, resolved: make(map[string]*layout.TypeDescriptor)}

	variables := make([]*layout.StorageVariable, 0, len(doc.Storage))
	for _, v := range doc.Storage {
		td, err := resolver.resolve(v.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Label, err)
		}
		rt := doc.Types[v.Type]
		size, _ := strconv.Atoi(rt.NumberOfBytes)
		if size > 32 {
			size = 32
		}
		slotNum, err := strconv.ParseUint(v.Slot, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("variable %q: malformed slot %q: %w", v.Label, v.Slot, err)
		}
		variables = append(variables, &layout.StorageVariable{
			Label:    v.Label,
			Type:     td,
			BaseSlot: evmcommon.BytesToHash(new(uint256.Int).SetUint64(slotNum).Bytes()),
			Offset:   v.Offset,
			Size:     size,
			Encoding: encodingOf(rt.Encoding),
		})
	}
	return variables, nil
}

func encodingOf(s string) layout.Encoding {
	switch s {
	case "inplace":
		return layout.EncodingInplace
	case "bytes_or_string", "":
		return layout.EncodingBytesOrString
	case "mapping":
		return layout.EncodingMapping
	case "dynamic_array":
		return layout.EncodingDynamicArray
	default:
		return layout.EncodingInplace
	}
}

// typeResolver memoizes solc type-key -> *layout.TypeDescriptor conversion.
// Memoization (rather than re-walking on every reference) is what makes
// cyclic type graphs (a mapping whose value type chain eventually reaches
// itself, spec.md §9 "Cyclic references") terminate: a type already under
// construction is returned by its placeholder pointer instead of being
// walked again.
type typeResolver struct {
	raw      map[string]rawType
	resolved map[string]*layout.TypeDescriptor
}

func (r *typeResolver) resolve(key string) (*layout.TypeDescriptor, error) {
	if td, ok := r.resolved[key]; ok {
		return td, nil
	}
	rt, ok := r.raw[key]
	if !ok {
		return nil, fmt.Errorf("dangling type reference %q", key)
	}

	td := &layout.TypeDescriptor{}
	r.resolved[key] = td // placeholder published before recursing: breaks cycles

	switch {
	case strings.HasPrefix(key, "t_mapping"):
		keyType, err := r.resolve(rt.Key)
		if err != nil {
			return nil, err
		}
		valueType, err := r.resolve(rt.Value)
		if err != nil {
			return nil, err
		}
		td.Kind = layout.TypeMapping
		td.ValueType = valueType
		if keyType.Kind == layout.TypePrimitive {
			td.KeyType = keyType.Primitive
		} else {
			td.KeyIsBytesOrString = true
		}
	case strings.HasPrefix(key, "t_array"):
		elem, err := r.resolve(rt.Base)
		if err != nil {
			return nil, err
		}
		length, dynamic := arrayLength(key)
		if dynamic {
			td.Kind = layout.TypeDynamicArray
		} else {
			td.Kind = layout.TypeFixedArray
			td.Length = length
		}
		td.Element = elem
	case strings.HasPrefix(key, "t_struct"):
		td.Kind = layout.TypeStruct
		fields := make([]layout.StructField, 0, len(rt.Members))
		for _, m := range rt.Members {
			fieldType, err := r.resolve(m.Type)
			if err != nil {
				return nil, err
			}
			frt := r.raw[m.Type]
			size, _ := strconv.Atoi(frt.NumberOfBytes)
			slotNum, _ := strconv.ParseUint(m.Slot, 10, 64)
			fields = append(fields, layout.StructField{
				Name: m.Label, Type: fieldType, Slot: slotNum, Offset: m.Offset, Size: size,
			})
		}
		td.Fields = fields
	case key == "t_bool":
		td.Kind = layout.TypePrimitive
		td.Primitive = slotcodec.Primitive{Kind: slotcodec.KindBool}
	case strings.HasPrefix(key, "t_address"):
		td.Kind = layout.TypePrimitive
		td.Primitive = slotcodec.Primitive{Kind: slotcodec.KindAddress}
	case key == "t_string_storage" || key == "t_string_memory_ptr":
		td.Kind = layout.TypeBytesOrString
		td.IsString = true
	case key == "t_bytes_storage":
		td.Kind = layout.TypeBytesOrString
	case strings.HasPrefix(key, "t_uint"):
		bits, _ := strconv.Atoi(strings.TrimPrefix(key, "t_uint"))
		td.Kind = layout.TypePrimitive
		td.Primitive = slotcodec.Primitive{Kind: slotcodec.KindUint, Bits: bits}
	case strings.HasPrefix(key, "t_int"):
		bits, _ := strconv.Atoi(strings.TrimPrefix(key, "t_int"))
		td.Kind = layout.TypePrimitive
		td.Primitive = slotcodec.Primitive{Kind: slotcodec.KindInt, Bits: bits}
	case strings.HasPrefix(key, "t_bytes") && !strings.Contains(key, "storage"):
		n, _ := strconv.Atoi(strings.TrimPrefix(key, "t_bytes"))
		td.Kind = layout.TypePrimitive
		td.Primitive = slotcodec.Primitive{Kind: slotcodec.KindBytesN, Bits: n * 8}
	case strings.HasPrefix(key, "t_enum"):
		td.Kind = layout.TypePrimitive
		td.Primitive = slotcodec.Primitive{Kind: slotcodec.KindEnum, Bits: 8}
	default:
		td.Kind = layout.TypePrimitive
		td.Primitive = slotcodec.Primitive{Kind: slotcodec.KindUnknown}
	}
	return td, nil
}

// arrayLength reports a t_array_* type key's declared length and whether it
// is dynamic ("t_array_t_uint256_dyn_storage" vs
// "t_array_t_uint256_5_storage").
func arrayLength(key string) (length uint64, dynamic bool) {
	if strings.Contains(key, "_dyn") {
		return 0, true
	}
	parts := strings.Split(key, "_")
	for i := len(parts) - 1; i >= 0; i-- {
		if n, err := strconv.ParseUint(parts[i], 10, 64); err == nil {
			return n, false
		}
	}
	return 0, true
}
