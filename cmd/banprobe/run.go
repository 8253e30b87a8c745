package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/banprobe-project/banprobe/internal/cli"
)

// failure is printed on stdout when no result could be produced.
type failure struct {
	Error     string `json:"error"`
	Traceback string `json:"traceback"`
}

func newRunCommand() *cobra.Command {
	var table bool

	cmd := &cobra.Command{
		Use:   "run <access_token> [proxy_type]",
		Short: "Check one account and print the result as JSON",
		Long: `Check one account and print the result as JSON.

The result is printed even when the probe fails (status "error" or "timeout").
Any failure before a result exists (configuration, logging, resolving the
account) exits with status 1 after printing {"error": ..., "traceback": ...}.
proxy_type is accepted and ignored.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			a, err := loadApp()
			if err != nil {
				return reportFailure(out, errors.WithStack(err))
			}
			defer a.close()

			if len(args) == 2 {
				log.Debug().Str("proxy_type", args[1]).Msg("proxy type ignored, connecting directly")
			}

			if err := a.openHistory(); err != nil {
				log.Warn().Err(err).Msg("history unavailable, result will not be stored")
			}
			chk, _ := a.newChecker()

			result, err := chk.Check(cmd.Context(), args[0])
			if err != nil {
				return reportFailure(out, err)
			}

			if table {
				cli.RenderResult(out, result)
				return nil
			}
			return writeJSON(out, result)
		},
	}

	cmd.Flags().BoolVar(&table, "table", false, "print the result as a table instead of JSON")
	return cmd
}

// reportFailure prints err as a failure object and returns errExit.
func reportFailure(w io.Writer, err error) error {
	if printErr := writeJSON(w, failure{
		Error:     err.Error(),
		Traceback: fmt.Sprintf("%+v", err),
	}); printErr != nil {
		return printErr
	}
	return errExit
}

// writeJSON prints v as one line of JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
