package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"epmgr/internal/registry"
)

func newCompileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile MODEL_FOLDER",
		Short: "Compile the model for the selected device if no artifact exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.selected(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			start := time.Now()
			art, err := m.Compile(cmd.Context(), a.folder(args[0]))
			if err != nil {
				return err
			}
			if art.Compiled {
				cmd.Printf("%s ready for %s (%s)\n", art.Path, art.Device, time.Since(start).Round(time.Millisecond))
			} else {
				cmd.Printf("%s runs %s directly\n", art.Device, art.Path)
			}
			return nil
		},
	}
}

func newCacheCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "cache",
		Short: "Inspect compiled artifacts",
	}
	c.AddCommand(&cobra.Command{
		Use:     "ls MODEL_FOLDER",
		Aliases: []string{"list"},
		Short:   "List compiled artifacts in a model folder",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.newManager()
			if err != nil {
				return err
			}
			defer m.Close()
			entries, err := m.Cache().List(a.folder(args[0]))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.HumanSize(), e.ModTime.Format(time.DateTime))
			}
			return tw.Flush()
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "rm MODEL_FOLDER DEVICE",
		Short: "Remove the compiled artifact of a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.newManager()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Cache().Remove(a.folder(args[0]), registry.Device{Name: args[1]}); err != nil {
				return err
			}
			cmd.Printf("Removed artifact for %s\n", args[1])
			return nil
		},
	})
	return c
}
