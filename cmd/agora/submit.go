package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/calehh/agora-app/crypto"
	"github.com/calehh/agora-app/tx"
	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type submitArguments struct {
	Url         string
	Index       uint64
	Nonce       uint64
	Skey        string
	For         string
	Against     string
	Beneficiary string
	Title       string
	Description string
	Amount      uint64
	Duration    uint64
	NoSend      bool
}

var submitArgs submitArguments

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a funding proposal",
	Long: `Opens a proposal paying Amount from the treasury to Beneficiary if,
after Duration minutes, the for address outweighs the against address.`,
	Run: submitRun,
}

func init() {
	urlFlag(submitCmd, &submitArgs.Url)
	submitCmd.Flags().Uint64VarP(&submitArgs.Index, "index", "i", 0, "account index")
	submitCmd.Flags().Uint64VarP(&submitArgs.Nonce, "nonce", "n", 0, "account nonce")
	submitCmd.Flags().StringVarP(&submitArgs.Skey, "skeyPath", "s", "./config/priv_validator_key.json", "private key path")
	submitCmd.Flags().StringVarP(&submitArgs.For, "for", "f", "", "for vote address")
	submitCmd.Flags().StringVarP(&submitArgs.Against, "against", "g", "", "against vote address")
	submitCmd.Flags().StringVarP(&submitArgs.Beneficiary, "beneficiary", "b", "", "beneficiary address")
	submitCmd.Flags().StringVarP(&submitArgs.Title, "title", "t", "", "proposal title")
	submitCmd.Flags().StringVarP(&submitArgs.Description, "description", "", "", "proposal description")
	submitCmd.Flags().Uint64VarP(&submitArgs.Amount, "amount", "a", 0, "funding amount")
	submitCmd.Flags().Uint64VarP(&submitArgs.Duration, "duration", "m", 10, "vote window in minutes")
	submitCmd.Flags().BoolVarP(&submitArgs.NoSend, "nosend", "", false, "not send transaction but print signature")
}

func submitRun(cmd *cobra.Command, args []string) {
	for _, a := range []string{submitArgs.For, submitArgs.Against, submitArgs.Beneficiary} {
		if !common.IsHexAddress(a) {
			fmt.Printf("invalid address:%v\n", a)
			return
		}
	}
	cli, err := http.New(submitArgs.Url, "/websocket")
	if err != nil {
		fmt.Printf("new client err:%v\n", err)
		return
	}
	ctx := context.Background()
	gres, err := cli.Genesis(ctx)
	if err != nil {
		fmt.Printf("get chain genesis err:%v\n", err)
		return
	}
	chainId := gres.Genesis.ChainID
	nonce := submitArgs.Nonce
	if nonce == 0 {
		act, err := queryAccount(submitArgs.Url, submitArgs.Index, "")
		if err != nil {
			return
		}
		nonce = act.Nonce
	}
	btx := tx.GovTx{
		Version:   tx.GovTxVersion1,
		Type:      tx.GovTxTypeSubmit,
		Nonce:     nonce,
		Validator: submitArgs.Index,
		Tx: &tx.SubmitTx{
			ForAddress:     common.HexToAddress(submitArgs.For),
			AgainstAddress: common.HexToAddress(submitArgs.Against),
			Beneficiary:    common.HexToAddress(submitArgs.Beneficiary),
			Title:          submitArgs.Title,
			Description:    submitArgs.Description,
			Amount:         submitArgs.Amount,
			Duration:       submitArgs.Duration,
		},
	}
	dat, err := btx.SigData([]byte(chainId))
	if err != nil {
		fmt.Printf("tx sign data err:%v\n", err)
		return
	}
	println("data signed:", hex.EncodeToString(dat))
	sigs := [][]byte{}
	pv := crypto.LoadFilePV(submitArgs.Skey)
	sig, err := pv.Sign(dat)
	if err != nil {
		fmt.Printf("sign tx err:%v\n", err)
		return
	}
	println("pubkey:", hex.EncodeToString(pv.PublicKey()))
	println("address:", pv.Address())
	sigs = append(sigs, sig)
	if submitArgs.NoSend {
		fmt.Println("transaction signatures:")
		for _, sig := range sigs {
			fmt.Println(hex.EncodeToString(sig))
		}
		return
	}
	btx.Sig = sigs
	dat, err = tx.MarshalGovTx(&btx)
	if err != nil {
		fmt.Printf("encode tx err:%v\n", err)
		return
	}
	fmt.Printf("tx:%x btx:%#v\n", dat, btx)
	res, err := cli.BroadcastTxSync(ctx, dat)
	if err != nil {
		fmt.Printf("broadcast tx err:%v\n", err)
		return
	}
	dat, _ = json.Marshal(res)
	fmt.Printf("%v\n", string(dat))
}
