package adapters

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
)

// aggregatorABI covers the two read-only methods the oracle adapter consumes
// from a Chainlink-compatible aggregator contract.
const aggregatorABI = `[
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[
    {"internalType":"uint8","name":"","type":"uint8"}],
   "stateMutability":"view","type":"function"}
]`

const defaultCallTimeout = 10 * time.Second

// ChainFeed reads reference prices from an on-chain aggregator through an RPC
// endpoint. It satisfies the vault's price feed contract.
type ChainFeed struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	timeout  time.Duration
	decimals uint8
}

// DialFeed connects to the RPC endpoint and resolves the aggregator's decimal
// precision up front so later reads cannot observe a torn configuration.
func DialFeed(endpoint string, contract common.Address) (*ChainFeed, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("adapters: rpc endpoint required")
	}
	if contract == (common.Address{}) {
		return nil, fmt.Errorf("adapters: aggregator address required")
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("adapters: parse aggregator abi: %w", err)
	}
	client, err := ethclient.Dial(trimmed)
	if err != nil {
		return nil, fmt.Errorf("adapters: dial %s: %w", trimmed, err)
	}
	feed := &ChainFeed{
		client:   client,
		contract: contract,
		abi:      parsed,
		timeout:  defaultCallTimeout,
	}
	decimals, err := feed.fetchDecimals()
	if err != nil {
		client.Close()
		return nil, err
	}
	feed.decimals = decimals
	return feed, nil
}

// Close releases the underlying RPC connection.
func (f *ChainFeed) Close() {
	if f != nil && f.client != nil {
		f.client.Close()
	}
}

// Decimals returns the aggregator's answer precision.
func (f *ChainFeed) Decimals() uint8 { return f.decimals }

// LatestRoundData fetches the most recent aggregator round.
func (f *ChainFeed) LatestRoundData() (vault.RoundData, error) {
	if f == nil || f.client == nil {
		return vault.RoundData{}, fmt.Errorf("adapters: feed not configured")
	}
	raw, err := f.call("latestRoundData")
	if err != nil {
		return vault.RoundData{}, err
	}
	out, err := f.abi.Unpack("latestRoundData", raw)
	if err != nil {
		return vault.RoundData{}, fmt.Errorf("adapters: unpack round data: %w", err)
	}
	if len(out) != 5 {
		return vault.RoundData{}, fmt.Errorf("adapters: unexpected round data arity %d", len(out))
	}
	roundID, ok := out[0].(*big.Int)
	if !ok {
		return vault.RoundData{}, fmt.Errorf("adapters: round id has unexpected type %T", out[0])
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return vault.RoundData{}, fmt.Errorf("adapters: answer has unexpected type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return vault.RoundData{}, fmt.Errorf("adapters: updated_at has unexpected type %T", out[3])
	}
	answeredIn, ok := out[4].(*big.Int)
	if !ok {
		return vault.RoundData{}, fmt.Errorf("adapters: answered_in has unexpected type %T", out[4])
	}
	data := vault.RoundData{
		RoundID:         roundID.Uint64(),
		Answer:          new(big.Int).Set(answer),
		AnsweredInRound: answeredIn.Uint64(),
	}
	if updatedAt.Sign() > 0 {
		data.UpdatedAt = time.Unix(updatedAt.Int64(), 0).UTC()
	}
	return data, nil
}

func (f *ChainFeed) fetchDecimals() (uint8, error) {
	raw, err := f.call("decimals")
	if err != nil {
		return 0, err
	}
	out, err := f.abi.Unpack("decimals", raw)
	if err != nil {
		return 0, fmt.Errorf("adapters: unpack decimals: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("adapters: unexpected decimals arity %d", len(out))
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("adapters: decimals has unexpected type %T", out[0])
	}
	return decimals, nil
}

func (f *ChainFeed) call(method string) ([]byte, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("adapters: pack %s: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	raw, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &f.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("adapters: call %s: %w", method, err)
	}
	return raw, nil
}
