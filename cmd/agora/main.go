package main

import (
	"fmt"
	"os"
)

func main() {
	agoraCmd.AddCommand(accountCmd)
	agoraCmd.AddCommand(initCmd)
	agoraCmd.AddCommand(versionCmd)
	agoraCmd.AddCommand(submitCmd)
	agoraCmd.AddCommand(finalizeCmd)
	agoraCmd.AddCommand(proposalCmd)
	agoraCmd.AddCommand(countCmd)
	agoraCmd.AddCommand(tallyCmd)
	agoraCmd.AddCommand(pubkeyCmd)
	if err := agoraCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
