package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/calehh/agora-app/crypto"
	"github.com/calehh/agora-app/tx"
	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/spf13/cobra"
)

type finalizeArguments struct {
	Url      string
	Index    uint64
	Nonce    uint64
	Skey     string
	Proposal uint64
	NoSend   bool
}

var finalizeArgs finalizeArguments

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Release the funds of an accepted proposal",
	Long:  ``,
	Run:   finalizeRun,
}

func init() {
	urlFlag(finalizeCmd, &finalizeArgs.Url)
	finalizeCmd.Flags().Uint64VarP(&finalizeArgs.Index, "index", "i", 0, "account index")
	finalizeCmd.Flags().Uint64VarP(&finalizeArgs.Nonce, "nonce", "n", 0, "account nonce")
	finalizeCmd.Flags().StringVarP(&finalizeArgs.Skey, "skeyPath", "s", "./config/priv_validator_key.json", "private key path")
	finalizeCmd.Flags().Uint64VarP(&finalizeArgs.Proposal, "proposal", "p", 0, "proposal index")
	finalizeCmd.Flags().BoolVarP(&finalizeArgs.NoSend, "nosend", "", false, "not send transaction but print signature")
}

func finalizeRun(cmd *cobra.Command, args []string) {
	cli, err := http.New(finalizeArgs.Url, "/websocket")
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
	nonce := finalizeArgs.Nonce
	if nonce == 0 {
		act, err := queryAccount(finalizeArgs.Url, finalizeArgs.Index, "")
		if err != nil {
			return
		}
		nonce = act.Nonce
	}
	btx := tx.GovTx{
		Version:   tx.GovTxVersion1,
		Type:      tx.GovTxTypeFinalize,
		Nonce:     nonce,
		Validator: finalizeArgs.Index,
		Tx:        &tx.FinalizeTx{Proposal: finalizeArgs.Proposal},
	}
	dat, err := btx.SigData([]byte(chainId))
	if err != nil {
		fmt.Printf("tx sign data err:%v\n", err)
		return
	}
	println("data signed:", hex.EncodeToString(dat))
	sigs := [][]byte{}
	pv := crypto.LoadFilePV(finalizeArgs.Skey)
	sig, err := pv.Sign(dat)
	if err != nil {
		fmt.Printf("sign tx err:%v\n", err)
		return
	}
	println("pubkey:", hex.EncodeToString(pv.PublicKey()))
	println("address:", pv.Address())
	sigs = append(sigs, sig)
	if finalizeArgs.NoSend {
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
