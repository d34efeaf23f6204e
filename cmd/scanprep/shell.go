package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/scanprep/internal/cli"
	"github.com/fpang/scanprep/internal/command"
	"github.com/fpang/scanprep/internal/selection"
)

const shellHelp = `Commands:
  upload <paths...>        upload image files or directories (prompts if omitted)
  pick                     choose images with a file dialog and upload them
  process <operation>      run a preprocessing operation on the originals
  augment [type]           run an augmentation on the originals
  detect                   run tumor detection on the latest images
  download <url>           save one result image
  download-all [file.zip]  save every image from the latest result
  status                   show session state
  ops                      list operations and augmentation types
  dismiss                  hide the current notification
  help                     show this help
  exit                     quit`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive shell (the default)",
	Run:   runShell,
}

func runShell(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	a := setup(ctx, cmd)

	fmt.Println("scanprep connected to", a.cfg.BaseURL)
	fmt.Println(`Type "help" for commands.`)
	if a.session.HasOriginals() {
		fmt.Printf("Resumed session %s with %d uploaded image(s)\n", a.session.ID, len(a.session.State().Originals))
	}

	sh := &shell{
		handler:  a.proc,
		prompter: cli.NewPrompter(os.Stdin, os.Stdout),
		out:      os.Stdout,
		variant:  a.cfg.AugmentationType,
		pick:     selection.Pick,
	}
	if err := sh.loop(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println()
			exit(ctx, nil)
		}
		log.Fatal().Err(err).Msg("Shell stopped")
	}
}

// handler runs one command. *command.Processor implements it.
type handler interface {
	Handle(ctx context.Context, cmd command.Command) (command.Result, error)
}

// shell reads commands from a prompter until exit, end of input or ctx is
// done.
type shell struct {
	handler  handler
	prompter *cli.Prompter
	out      io.Writer
	variant  string
	pick     func() ([]string, error)
}

// loop returns nil on exit or end of input, and ctx.Err() once ctx is done,
// even while waiting at the prompt.
func (s *shell) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := await(ctx, func() (string, error) { return s.prompter.Line("scanprep> ") })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		var c command.Command
		switch fields[0] {
		case "exit", "quit":
			return nil
		case "help", "?":
			fmt.Fprintln(s.out, shellHelp)
			continue
		case "ops":
			printOperations(s.out)
			continue
		case "pick":
			picked, err := s.pick()
			if err != nil {
				log.Error().Err(err).Msg("File dialog failed")
				continue
			}
			// A canceled dialog is an empty selection.
			c = command.Upload{Paths: picked}
		case "upload":
			if len(fields) == 1 {
				paths, err := await(ctx, func() ([]string, error) { return s.prompter.Paths(".") })
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					return nil
				}
				fields = append(fields, paths...)
			}
			fallthrough
		default:
			c, err = command.Parse(fields, s.variant)
			if err != nil {
				fmt.Fprintln(s.out, err)
				continue
			}
		}

		if _, err := s.handler.Handle(ctx, c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug().Err(err).Str("command", c.Name()).Msg("Command failed")
		}
	}
}

// await runs read on its own goroutine so a blocked terminal read does not
// hold up cancellation. The read is abandoned if ctx finishes first.
func await[T any](ctx context.Context, read func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := read()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
