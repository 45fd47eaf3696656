package pancake

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const routerABIJSON = `[
  {"name":"getAmountsOut","type":"function","stateMutability":"view",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
             {"name":"path","type":"address[]"},{"name":"to","type":"address"},
             {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const erc20ABIJSON = `[
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"approve","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"name":"decimals","type":"function","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"name":"Transfer","type":"event","anonymous":false,
   "inputs":[{"indexed":true,"name":"from","type":"address"},
             {"indexed":true,"name":"to","type":"address"},
             {"indexed":false,"name":"value","type":"uint256"}]}
]`

const pairABIJSON = `[
  {"name":"getReserves","type":"function","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},
              {"name":"blockTimestampLast","type":"uint32"}]},
  {"name":"token0","type":"function","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

var (
	routerABI = mustParseABI(routerABIJSON)
	erc20ABI  = mustParseABI(erc20ABIJSON)
	pairABI   = mustParseABI(pairABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("pancake: invalid ABI: " + err.Error())
	}
	return parsed
}
