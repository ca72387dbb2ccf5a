package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calehh/agora-app/types"
	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/spf13/cobra"
)

type tallyArguments struct {
	Url      string
	Proposal uint64
}

var tallyArgs tallyArguments

var tallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Query the live vote tally of a proposal",
	Long: `Weighs the proposal's for and against addresses through the node's
oracle at the current height. The result is advisory until finalize.`,
	Run: tallyRun,
}

func init() {
	urlFlag(tallyCmd, &tallyArgs.Url)
	tallyCmd.Flags().Uint64VarP(&tallyArgs.Proposal, "proposal", "p", 0, "proposal index")
}

func tallyRun(cmd *cobra.Command, args []string) {
	cli, err := http.New(tallyArgs.Url, "/websocket")
	if err != nil {
		fmt.Printf("new client err:%v\n", err)
		return
	}
	res, err := cli.ABCIQuery(context.Background(), "/tally/", indexBytes(tallyArgs.Proposal))
	if err != nil {
		fmt.Printf("request err:%v\n", err)
		return
	}
	if res.Response.Code != 0 {
		fmt.Printf("query err:%v\n", res.Response.Log)
		return
	}
	var tally types.VoteTally
	if err = json.Unmarshal(res.Response.Value, &tally); err != nil {
		fmt.Printf("decode tally err:%v\n", err)
		return
	}
	fmt.Printf("proposal:%v for:%v against:%v accepted:%v\n",
		tallyArgs.Proposal, tally.ForWeight, tally.AgainstWeight, tally.Accepted())
}
