package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpang/scanprep/internal/feedback"
	"github.com/fpang/scanprep/internal/operation"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List operations, their endpoints and augmentation types",
	Run: func(cmd *cobra.Command, args []string) {
		printOperations(cmd.OutOrStdout())
	},
}

// printOperations lists every operation with the endpoint it calls.
func printOperations(w io.Writer) {
	rows := make([][]string, 0, len(operation.All()))
	for _, k := range operation.All() {
		input := "originals"
		if !k.Chaining() {
			input = "latest images"
		}
		rows = append(rows, []string{string(k), k.Title(), k.Endpoint(), input})
	}
	fmt.Fprintln(w, feedback.RenderTable([]string{"Operation", "Name", "Endpoint", "Input"}, rows, nil))
	fmt.Fprintf(w, "Augmentation types: %s (default %s)\n",
		strings.Join(operation.AugmentationVariants, ", "), operation.DefaultAugmentation)
}
