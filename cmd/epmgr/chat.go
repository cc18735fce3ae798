package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"epmgr/internal/manager"
)

func newChatCmd(a *app) *cobra.Command {
	var noColor bool
	c := &cobra.Command{
		Use:   "chat MODEL_FOLDER",
		Short: "Chat with a language model on the selected device",
		Long: `Chat loads the language model in MODEL_FOLDER and answers one prompt per
input line until end of input. Each answer streams as it is generated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.selected(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			info, err := m.LoadGenerator(cmd.Context(), a.folder(args[0]))
			if err != nil {
				return err
			}
			a.log.Info().Str("device", info.Device).Str("path", info.Path).Dur("dur", info.Duration).Msg("Model loaded")
			return chatLoop(cmd, m, cmd.InOrStdin(), cmd.OutOrStdout(), noColor)
		},
	}
	c.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return c
}

// chatLoop streams an answer for every non-empty line of in.
func chatLoop(cmd *cobra.Command, m *manager.Manager, in io.Reader, out io.Writer, noColor bool) error {
	promptFmt := color.New(color.FgCyan, color.Bold)
	usageFmt := color.New(color.FgHiBlack)
	if noColor {
		promptFmt.DisableColor()
		usageFmt.DisableColor()
	}
	sc := bufio.NewScanner(in)
	for {
		promptFmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		prompt := strings.TrimSpace(sc.Text())
		if prompt == "" {
			continue
		}
		// Progress carries the full text; print only what is new.
		printed := 0
		res, err := m.Generate(cmd.Context(), prompt, func(text string) {
			if len(text) > printed {
				fmt.Fprint(out, text[printed:])
				printed = len(text)
			}
		})
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		usageFmt.Fprintf(out, "[%d tokens, %s]\n", res.Tokens, res.FinishReason)
	}
}
