package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

// HTTPOracle polls a plain JSON balance endpoint: POST {"address":"0x.."}
// answered with {"balance":"..."} in decimal or 0x-prefixed hex.
type HTTPOracle struct {
	Url    string
	cli    *http.Client
	logger cmtlog.Logger
}

func NewHTTPOracle(url string, logger cmtlog.Logger) *HTTPOracle {
	return &HTTPOracle{
		Url:    url,
		cli:    &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("module", "oracle"),
	}
}

func (o *HTTPOracle) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	body := fmt.Sprintf(`{"address":"%s"}`, holder.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Url, bytes.NewBuffer([]byte(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := o.cli.Do(req)
	if err != nil {
		o.logger.Error("post balance endpoint fail", "err", err)
		return nil, err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		o.logger.Error("read response body fail", "err", err)
		return nil, err
	}
	var reply struct {
		Balance string `json:"balance"`
	}
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		o.logger.Error("unmarshal response body fail", "err", err)
		return nil, err
	}
	return parseBalance(reply.Balance)
}

func parseBalance(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("malformed balance %q", s)
	}
	return v, nil
}
