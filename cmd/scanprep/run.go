package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/scanprep/internal/command"
	"github.com/fpang/scanprep/internal/operation"
	"github.com/fpang/scanprep/internal/selection"
)

var (
	opsFlag          []string
	augmentationFlag string
	pickFlag         bool
	downloadAllFlag  string
	maxDepthFlag     int
	limitFlag        int
)

var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "Upload images and run a fixed pipeline of operations",
	Long: `Run uploads the given image files and directories, then runs each --op in
order. Every preprocessing and augmentation operation starts from the uploaded
originals; detection analyzes the latest derived images, or the originals if
none exist.

Without paths, run reuses the images recorded in --state-file.

Operations: normalization, noise_reduction, skull_stripping, artifact_removal,
augmentation, detect.

Examples:
  scanprep run ./scans --op skull_stripping --op detect
  scanprep run --pick --op augmentation --augmentation elastic_deformation
  scanprep run --state-file .scanprep.json --op detect`,
	Run: runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVar(&opsFlag, "op", nil, "Operation to run (repeatable)")
	f.StringVar(&augmentationFlag, "augmentation", "", "Augmentation type for --op augmentation")
	f.BoolVar(&pickFlag, "pick", false, "Choose images with a file dialog")
	f.StringVar(&downloadAllFlag, "download-all", "", "Save the final result images into this zip archive")
	f.IntVar(&maxDepthFlag, "max-depth", 0, "Maximum directory recursion depth (0 = unlimited)")
	f.IntVar(&limitFlag, "limit", 0, "Maximum images taken from each directory (0 = unlimited)")
}

func runPipeline(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	a := setup(ctx, cmd)

	variant := a.cfg.AugmentationType
	if augmentationFlag != "" {
		variant = augmentationFlag
	}
	batch, err := buildBatch(args, variant)
	if err != nil {
		cmd.PrintErrln("Error:", err)
		exit(ctx, err)
	}
	if len(batch) == 0 {
		// Nothing to upload and nothing to run.
		log.Info().Msg("No paths or operations given")
		exit(ctx, nil)
	}

	exit(ctx, runBatch(ctx, a.proc, batch))
}

// buildBatch turns arguments and flags into the command sequence for one run.
func buildBatch(paths []string, variant string) ([]command.Command, error) {
	if pickFlag {
		picked, err := selection.Pick()
		if err != nil {
			return nil, fmt.Errorf("file dialog: %w", err)
		}
		paths = append(paths, picked...)
	}

	var batch []command.Command
	if len(paths) > 0 || pickFlag {
		batch = append(batch, command.Upload{
			Paths: paths,
			Scan:  selection.ScanOptions{MaxDepth: maxDepthFlag, Limit: limitFlag},
		})
	}

	for _, op := range opsFlag {
		req, err := parseOp(op, variant)
		if err != nil {
			return nil, err
		}
		batch = append(batch, command.Dispatch{Request: req})
	}

	if downloadAllFlag != "" {
		batch = append(batch, command.DownloadAll{File: downloadAllFlag})
	}
	return batch, nil
}

func parseOp(op, variant string) (operation.Request, error) {
	name, v, ok := strings.Cut(op, ":")
	kind, err := operation.Parse(name)
	if err != nil {
		return operation.Request{}, err
	}
	if kind != operation.Augmentation {
		if ok {
			return operation.Request{}, fmt.Errorf("operation %s takes no variant", kind)
		}
		return operation.Request{Kind: kind}, nil
	}
	if ok {
		variant = v
	}
	variant, err = operation.ParseAugmentation(variant)
	if err != nil {
		return operation.Request{}, err
	}
	return operation.Request{Kind: kind, Variant: variant}, nil
}

// runBatch feeds batch through the processor one command at a time and stops
// at the first failure.
func runBatch(ctx context.Context, proc *command.Processor, batch []command.Command) error {
	cmds := make(chan command.Command)
	replies := make(chan command.Reply)
	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx, cmds, replies) }()
	defer close(cmds)

	for _, c := range batch {
		select {
		case cmds <- c:
		case err := <-done:
			return err
		}
		select {
		case r := <-replies:
			if r.Err != nil {
				return r.Err
			}
			log.Info().
				Str("command", r.Command.Name()).
				Int("images", len(r.Result.ImageURLs)).
				Msg("Step complete")
		case err := <-done:
			return err
		}
	}
	return nil
}
