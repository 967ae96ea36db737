// Package mocknode serves canned Tendermint RPC, EVM JSON-RPC and exchange
// responses for tests and local demos.
package mocknode

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/tidwall/gjson"
)

var (
	selBalanceOf          = hexutil.Encode(crypto.Keccak256([]byte("balanceOf(address)"))[:4])
	selTotalSupply        = hexutil.Encode(crypto.Keccak256([]byte("totalSupply()"))[:4])
	selGetRoleMemberCount = hexutil.Encode(crypto.Keccak256([]byte("getRoleMemberCount(bytes32)"))[:4])
	selGetRoleMember      = hexutil.Encode(crypto.Keccak256([]byte("getRoleMember(bytes32,uint256)"))[:4])
)

// Node is a fake chain node. Zero values are served as zero; set fields
// before calling [Node.Handler] or use the setters while serving.
type Node struct {
	mu sync.RWMutex

	votesBitArray string
	blockLag      time.Duration
	validators    int
	closePrice    string

	native   map[common.Address]*uint256.Int
	balances map[common.Address]map[common.Address]*uint256.Int
	supply   map[common.Address]*uint256.Int
	relayers []common.Address

	now func() time.Time
}

// New creates a node voting 2/3 in favour, 5s behind, with 4 validators and
// a close price of 0.0042.
func New() *Node {
	return &Node{
		votesBitArray: "BA{4:xxx_} 40/60 = 0.67",
		blockLag:      5 * time.Second,
		validators:    4,
		closePrice:    "0.0042",
		native:        make(map[common.Address]*uint256.Int),
		balances:      make(map[common.Address]map[common.Address]*uint256.Int),
		supply:        make(map[common.Address]*uint256.Int),
		now:           time.Now,
	}
}

// SetVotes sets the rendered votes bit array of the last commit.
func (n *Node) SetVotes(bitArray string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.votesBitArray = bitArray
}

// SetBlockLag sets how far behind now the latest block time is.
func (n *Node) SetBlockLag(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blockLag = d
}

// SetValidators sets the validator count.
func (n *Node) SetValidators(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.validators = count
}

// SetClosePrice sets the candlestick close, as the exchange renders it.
func (n *Node) SetClosePrice(price string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closePrice = price
}

// SetNative sets an account's native balance.
func (n *Node) SetNative(account string, amount *uint256.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.native[common.HexToAddress(account)] = amount
}

// SetTokenBalance sets holder's balance of token.
func (n *Node) SetTokenBalance(token, holder string, amount *uint256.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := common.HexToAddress(token)
	if n.balances[t] == nil {
		n.balances[t] = make(map[common.Address]*uint256.Int)
	}
	n.balances[t][common.HexToAddress(holder)] = amount
}

// SetTokenSupply sets token's total supply.
func (n *Node) SetTokenSupply(token string, amount *uint256.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.supply[common.HexToAddress(token)] = amount
}

// SetRelayers sets the members of the bridge's relayer role. Every bridge
// address reports the same members.
func (n *Node) SetRelayers(accounts ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.relayers = n.relayers[:0]
	for _, a := range accounts {
		n.relayers = append(n.relayers, common.HexToAddress(a))
	}
}

// Handler returns the node's HTTP API.
func (n *Node) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/dump_consensus_state", n.handleConsensusState)
	r.Get("/status", n.handleStatus)
	r.Get("/validators", n.handleValidators)
	r.Get("/api/v4/spot/candlesticks", n.handleCandlesticks)
	r.Post("/", n.handleRPC)
	return r
}

func (n *Node) handleConsensusState(w http.ResponseWriter, _ *http.Request) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	writeJSON(w, map[string]any{
		"result": map[string]any{
			"round_state": map[string]any{
				"last_commit": map[string]any{"votes_bit_array": n.votesBitArray},
			},
		},
	})
}

func (n *Node) handleStatus(w http.ResponseWriter, _ *http.Request) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	latest := n.now().Add(-n.blockLag).UTC().Format(time.RFC3339Nano)
	writeJSON(w, map[string]any{
		"result": map[string]any{
			"sync_info": map[string]any{"latest_block_time": latest},
		},
	})
}

func (n *Node) handleValidators(w http.ResponseWriter, _ *http.Request) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	writeJSON(w, map[string]any{
		"result": map[string]any{"total": strconv.Itoa(n.validators)},
	})
}

func (n *Node) handleCandlesticks(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("currency_pair") == "" {
		http.Error(w, `{"label":"INVALID_PARAM_VALUE"}`, http.StatusBadRequest)
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	ts := strconv.FormatInt(n.now().Unix(), 10)
	writeJSON(w, [][]string{{ts, "1000", n.closePrice, n.closePrice, n.closePrice, n.closePrice}})
}

func (n *Node) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	req := gjson.ParseBytes(body)
	if req.IsArray() {
		calls := req.Array()
		out := make([]map[string]any, len(calls))
		for i, c := range calls {
			out[i] = n.answer(c)
		}
		writeJSON(w, out)
		return
	}
	writeJSON(w, n.answer(req))
}

// answer builds the JSON-RPC response to one call.
func (n *Node) answer(call gjson.Result) map[string]any {
	resp := map[string]any{"jsonrpc": "2.0", "id": call.Get("id").Value()}

	result, err := n.dispatch(call.Get("method").Str, call.Get("params"))
	if err != nil {
		resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
		return resp
	}
	resp["result"] = result
	return resp
}

func (n *Node) dispatch(method string, params gjson.Result) (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	switch method {
	case "eth_getBalance":
		return quantity(n.native[common.HexToAddress(params.Get("0").Str)]), nil
	case "eth_call":
		return n.call(common.HexToAddress(params.Get("0.to").Str), params.Get("0.data").Str)
	default:
		return "", fmt.Errorf("method %s not supported", method)
	}
}

func (n *Node) call(to common.Address, data string) (string, error) {
	raw, err := hexutil.Decode(data)
	if err != nil || len(raw) < 4 {
		return "", fmt.Errorf("invalid calldata %q", data)
	}
	sel := hexutil.Encode(raw[:4])
	args := raw[4:]

	word := func(i int) []byte {
		if len(args) < 32*(i+1) {
			return make([]byte, 32)
		}
		return args[32*i : 32*(i+1)]
	}

	switch sel {
	case selBalanceOf:
		holder := common.BytesToAddress(word(0))
		return word32(n.balances[to][holder]), nil
	case selTotalSupply:
		return word32(n.supply[to]), nil
	case selGetRoleMemberCount:
		return word32(uint256.NewInt(uint64(len(n.relayers)))), nil
	case selGetRoleMember:
		index := new(uint256.Int).SetBytes(word(1))
		if !index.IsUint64() || index.Uint64() >= uint64(len(n.relayers)) {
			return "", fmt.Errorf("execution reverted: index out of bounds")
		}
		return hexutil.Encode(common.LeftPadBytes(n.relayers[index.Uint64()].Bytes(), 32)), nil
	default:
		return "", fmt.Errorf("execution reverted: unknown selector %s", sel)
	}
}

func quantity(v *uint256.Int) string {
	if v == nil {
		return "0x0"
	}
	return v.Hex()
}

func word32(v *uint256.Int) string {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return hexutil.Encode(b[:])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
