package oracle

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func balanceServer(t *testing.T, balances map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req struct {
			Address string `json:"address"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]string{"balance": balances[req.Address]})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPOracleDecimalBalance(t *testing.T) {
	holder := common.HexToAddress("0x1111111111111111111111111111111111111111")
	srv := balanceServer(t, map[string]string{holder.Hex(): "300"})

	o := NewHTTPOracle(srv.URL, cmtlog.NewNopLogger())
	bal, err := o.BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), bal)
}

func TestHTTPOracleHexBalance(t *testing.T) {
	holder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	srv := balanceServer(t, map[string]string{holder.Hex(): "0x1ff"})

	o := NewHTTPOracle(srv.URL, cmtlog.NewNopLogger())
	bal, err := o.BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(511), bal)
}

func TestHTTPOracleUnknownHolderIsZero(t *testing.T) {
	srv := balanceServer(t, nil)

	o := NewHTTPOracle(srv.URL, cmtlog.NewNopLogger())
	bal, err := o.BalanceOf(context.Background(), common.HexToAddress("0x3333333333333333333333333333333333333333"))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), bal)
}

func TestHTTPOracleMalformedBalance(t *testing.T) {
	holder := common.HexToAddress("0x4444444444444444444444444444444444444444")
	srv := balanceServer(t, map[string]string{holder.Hex(): "not a number"})

	o := NewHTTPOracle(srv.URL, cmtlog.NewNopLogger())
	_, err := o.BalanceOf(context.Background(), holder)
	require.Error(t, err)
}

func TestStaticOracle(t *testing.T) {
	holder := common.HexToAddress("0x5555555555555555555555555555555555555555")
	o := Static{holder: big.NewInt(1 << 40)}

	bal, err := o.BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Lsh(big.NewInt(1), 40), bal)

	// The stored value must not alias the returned one.
	bal.SetUint64(0)
	again, err := o.BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Lsh(big.NewInt(1), 40), again)

	zero, err := o.BalanceOf(context.Background(), common.Address{})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), zero)
}

func TestERC20CallDataLayout(t *testing.T) {
	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(holder.Bytes(), 32)...)
	require.Len(t, data, 36)
	require.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, data[:4])
	require.Equal(t, byte(0xaa), data[35])
}
