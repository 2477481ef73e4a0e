package clients

import (
	"context"
	"fmt"
	"math/big"

	"treasury-backend/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// mustType is a helper to build an abi.Type from a string
func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid abi type %s: %v", t, err))
	}
	return typ
}

var erc20BalanceOf = abi.NewMethod(
	"balanceOf", "balanceOf", abi.Function, "view", false, false,
	abi.Arguments{{Name: "account", Type: mustType("address")}},
	abi.Arguments{{Name: "balance", Type: mustType("uint256")}},
)

// EthChainReader reads chain state over JSON-RPC. It is the only place
// chain-specific introspection lives; the consensus and authorization
// services stay chain-agnostic behind the services.ChainReader interface.
type EthChainReader struct {
	client  *ethclient.Client
	chainID int64
}

// NewEthChainReader dials the first RPC endpoint of the network
func NewEthChainReader(network *config.NetworkConfig) (*EthChainReader, error) {
	if len(network.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("network %s has no RPC endpoints", network.Name)
	}
	client, err := ethclient.Dial(network.RPCEndpoints[0])
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	return &EthChainReader{client: client, chainID: network.ChainID}, nil
}

// GetCode returns the deployed bytecode at address, empty for an EOA or an
// undeployed contract
func (r *EthChainReader) GetCode(ctx context.Context, address string) ([]byte, error) {
	code, err := r.client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", address, err)
	}
	return code, nil
}

// Call executes a read-only contract call against latest state
func (r *EthChainReader) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	target := common.HexToAddress(to)
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call to %s failed: %w", to, err)
	}
	return out, nil
}

// EstimateGas estimates gas for a call
func (r *EthChainReader) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	target := common.HexToAddress(to)
	gas, err := r.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  common.HexToAddress(from),
		To:    &target,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}
	return gas, nil
}

// BalanceOf returns the ERC-20 balance of address on token
func (r *EthChainReader) BalanceOf(ctx context.Context, token, address string) (*big.Int, error) {
	input, err := erc20BalanceOf.Inputs.Pack(common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}
	out, err := r.Call(ctx, token, append(erc20BalanceOf.ID, input...))
	if err != nil {
		return nil, err
	}
	values, err := erc20BalanceOf.Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", values[0])
	}
	return balance, nil
}
