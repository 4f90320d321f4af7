package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatd",
	Short: "Streaming chat client service",
	Long: `chatd - local chat sessions over two LLM backends

Serves the session, streaming and settings API used by the chat UI. Replies
stream from the primary OpenAI-compatible backend when a key is configured,
otherwise from Gemini.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to serving if no subcommand specified
		return serveCmd.RunE(cmd, args)
	},
}

func main() {
	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
