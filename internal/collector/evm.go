package collector

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/tidwall/gjson"

	"github.com/FindoraNetwork/findora-exporter/internal/scale"
	"github.com/FindoraNetwork/findora-exporter/target"
)

// maxRelayers bounds the getRoleMember batch.
const maxRelayers = 1024

var (
	selectorBalanceOf          = selector("balanceOf(address)")
	selectorTotalSupply        = selector("totalSupply()")
	selectorGetRoleMemberCount = selector("getRoleMemberCount(bytes32)")
	selectorGetRoleMember      = selector("getRoleMember(bytes32,uint256)")

	// relayerRole is the bridge's RELAYER_ROLE access-control role.
	relayerRole = crypto.Keccak256Hash([]byte("RELAYER_ROLE"))
)

// selector returns the 4-byte function selector of an ABI signature.
func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// calldata concatenates a selector with 32-byte words.
func calldata(sel []byte, words ...[]byte) string {
	data := make([]byte, 0, len(sel)+32*len(words))
	data = append(data, sel...)
	for _, w := range words {
		data = append(data, common.LeftPadBytes(w, 32)...)
	}
	return hexutil.Encode(data)
}

// ethCall builds eth_call params against the latest block.
func ethCall(to common.Address, data string) []any {
	return []any{
		map[string]string{"to": to.Hex(), "data": data},
		"latest",
	}
}

// bridgedBalance reports the token balance held by the bridge handler.
func (c *collectors) bridgedBalance(ctx context.Context, address string, opts target.Options) (Reading, error) {
	o, err := optionsAs[target.BridgedBalanceOptions](target.BridgedBalance, opts)
	if err != nil {
		return Reading{}, err
	}

	handler := common.HexToAddress(o.HandlerAddress)
	data := calldata(selectorBalanceOf, handler.Bytes())
	res, err := c.client.Call(ctx, address, "eth_call", ethCall(common.HexToAddress(o.TokenAddress), data)...)
	if err != nil {
		return Reading{}, err
	}
	return amountReading("balanceOf", res)
}

// bridgedSupply reports the total minted supply of the token.
func (c *collectors) bridgedSupply(ctx context.Context, address string, opts target.Options) (Reading, error) {
	o, err := optionsAs[target.BridgedSupplyOptions](target.BridgedSupply, opts)
	if err != nil {
		return Reading{}, err
	}

	data := calldata(selectorTotalSupply)
	res, err := c.client.Call(ctx, address, "eth_call", ethCall(common.HexToAddress(o.TokenAddress), data)...)
	if err != nil {
		return Reading{}, err
	}
	return amountReading("totalSupply", res)
}

// nativeBalance reports the native coin balance of an account.
func (c *collectors) nativeBalance(ctx context.Context, address string, opts target.Options) (Reading, error) {
	o, err := optionsAs[target.NativeBalanceOptions](target.NativeBalance, opts)
	if err != nil {
		return Reading{}, err
	}

	account := common.HexToAddress(o.NativeAddress)
	res, err := c.client.Call(ctx, address, "eth_getBalance", account.Hex(), "latest")
	if err != nil {
		return Reading{}, err
	}
	return amountReading("eth_getBalance", res)
}

// totalBalanceOfRelayers enumerates the bridge's relayers and sums their
// native balances. The sum wraps at 2^256.
func (c *collectors) totalBalanceOfRelayers(ctx context.Context, address string, opts target.Options) (Reading, error) {
	o, err := optionsAs[target.RelayerOptions](target.TotalBalanceOfRelayers, opts)
	if err != nil {
		return Reading{}, err
	}
	bridge := common.HexToAddress(o.BridgeAddress)

	res, err := c.client.Call(ctx, address, "eth_call",
		ethCall(bridge, calldata(selectorGetRoleMemberCount, relayerRole.Bytes()))...)
	if err != nil {
		return Reading{}, err
	}
	count, err := quantity("getRoleMemberCount", res)
	if err != nil {
		return Reading{}, err
	}
	if !count.IsUint64() || count.Uint64() > maxRelayers {
		return Reading{}, fmt.Errorf("%w: relayer count %s exceeds %d", ErrProtocol, count.Dec(), maxRelayers)
	}
	n := int(count.Uint64())
	if n == 0 {
		return Reading{Amount: new(uint256.Int)}, nil
	}

	members := make([]Request, n)
	for i := range members {
		index := uint256.NewInt(uint64(i)).Bytes32()
		members[i] = Request{
			Method: "eth_call",
			Params: ethCall(bridge, calldata(selectorGetRoleMember, relayerRole.Bytes(), index[:])),
		}
	}
	words, err := c.client.Batch(ctx, address, members)
	if err != nil {
		return Reading{}, err
	}

	balances := make([]Request, n)
	for i, w := range words {
		relayer, err := wordAddress(w)
		if err != nil {
			return Reading{}, err
		}
		balances[i] = Request{Method: "eth_getBalance", Params: []any{relayer.Hex(), "latest"}}
	}
	results, err := c.client.Batch(ctx, address, balances)
	if err != nil {
		return Reading{}, err
	}

	total := new(uint256.Int)
	for _, r := range results {
		b, err := quantity("eth_getBalance", r)
		if err != nil {
			return Reading{}, err
		}
		total.Add(total, b)
	}
	return Reading{Amount: total}, nil
}

func amountReading(what string, res gjson.Result) (Reading, error) {
	amount, err := quantity(what, res)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Amount: amount}, nil
}

// quantity decodes a hex-encoded JSON-RPC result.
func quantity(what string, res gjson.Result) (*uint256.Int, error) {
	if res.Type != gjson.String {
		return nil, fmt.Errorf("%w: %s result is not a string", ErrProtocol, what)
	}
	v, err := scale.ParseQuantity(res.Str)
	if err != nil {
		return nil, fmt.Errorf("%w: %s result %q: %v", ErrParse, what, res.Str, err)
	}
	return v, nil
}

// wordAddress decodes an address returned as a 32-byte ABI word.
func wordAddress(res gjson.Result) (common.Address, error) {
	if res.Type != gjson.String {
		return common.Address{}, fmt.Errorf("%w: getRoleMember result is not a string", ErrProtocol)
	}
	b, err := hexutil.Decode(res.Str)
	if err != nil || len(b) == 0 || len(b) > 32 {
		return common.Address{}, fmt.Errorf("%w: getRoleMember result %q is not an address word", ErrParse, res.Str)
	}
	return common.BytesToAddress(b), nil
}
