package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calehh/agora-app/types"
	"github.com/cometbft/cometbft/rpc/client/http"
	"github.com/spf13/cobra"
)

type proposalArguments struct {
	Url      string
	Proposal uint64
}

var proposalArgs proposalArguments

var proposalCmd = &cobra.Command{
	Use:   "proposal",
	Short: "Query a proposal by id",
	Long:  ``,
	Run:   proposalRun,
}

func init() {
	urlFlag(proposalCmd, &proposalArgs.Url)
	proposalCmd.Flags().Uint64VarP(&proposalArgs.Proposal, "proposal", "p", 0, "proposal index")
	urlFlag(countCmd, &countArgs.Url)
}

func proposalRun(cmd *cobra.Command, args []string) {
	cli, err := http.New(proposalArgs.Url, "/websocket")
	if err != nil {
		fmt.Printf("new client err:%v\n", err)
		return
	}
	res, err := cli.ABCIQuery(context.Background(), "/proposals/", indexBytes(proposalArgs.Proposal))
	if err != nil {
		fmt.Printf("request err:%v\n", err)
		return
	}
	if res.Response.Code != 0 {
		fmt.Printf("query err:%v\n", res.Response.Log)
		return
	}
	var p types.Proposal
	if err = json.Unmarshal(res.Response.Value, &p); err != nil {
		fmt.Printf("decode proposal err:%v\n", err)
		return
	}
	out, _ := json.MarshalIndent(p, "", " ")
	fmt.Println(string(out))
}

type countArguments struct {
	Url string
}

var countArgs countArguments

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Query the number of proposals",
	Long:  ``,
	Run:   countRun,
}

func countRun(cmd *cobra.Command, args []string) {
	cli, err := http.New(countArgs.Url, "/websocket")
	if err != nil {
		fmt.Printf("new client err:%v\n", err)
		return
	}
	res, err := cli.ABCIQuery(context.Background(), "/count/", nil)
	if err != nil {
		fmt.Printf("request err:%v\n", err)
		return
	}
	if res.Response.Code != 0 {
		fmt.Printf("query err:%v\n", res.Response.Log)
		return
	}
	fmt.Println(string(res.Response.Value))
}
