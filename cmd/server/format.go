package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/poe-chat/chatd/internal/format"
	"github.com/poe-chat/chatd/internal/locale"
)

var (
	formatLang      string
	formatTailGuard int
)

var formatCmd = &cobra.Command{
	Use:   "format [file]",
	Short: "Print the rendered nodes of a reply as JSON",
	Long: `Runs a model reply through the formatter and prints the block tree.

Reads the named file, or stdin when no file is given. Useful for checking how
a captured reply (including a partial one) will render.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFormat,
}

func init() {
	formatCmd.Flags().StringVar(&formatLang, "lang", string(locale.Default), "Language of the labels (zh-TW, en)")
	formatCmd.Flags().IntVar(&formatTailGuard, "tail-guard", format.DefaultOptions().TailGuard,
		"Characters at the end in which a blank line does not end the thinking section")
	rootCmd.AddCommand(formatCmd)
}

func runFormat(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	text, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	strs := locale.For(locale.Parse(formatLang))
	opts := format.DefaultOptions()
	opts.TailGuard = formatTailGuard
	f := format.New(format.Labels{
		Thinking:      strs.Thinking,
		Copy:          strs.Copy,
		AudioFallback: strs.AudioFallback,
	}, opts)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(f.Format(string(text)))
}
