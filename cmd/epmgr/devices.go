package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"epmgr/internal/httpapi"
	"epmgr/pkg/types"
)

func newDevicesCmd(a *app) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "devices",
		Short: "List the execution providers available on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.newManager()
			if err != nil {
				return err
			}
			defer m.Close()
			devs, err := m.Devices(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]types.Device, 0, len(devs))
			for _, d := range devs {
				out = append(out, httpapi.DeviceDTO(d))
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(types.DevicesResponse{Devices: out})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVENDOR\tKIND\tCOMPILES")
			for _, d := range out {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.Name, d.Vendor, d.Kind, d.RequiresCompile)
			}
			return tw.Flush()
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return c
}

func newProvidersCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "providers",
		Short: "Manage execution providers",
	}
	c.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Download and register the providers this platform supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.newManager()
			if err != nil {
				return err
			}
			defer m.Close()
			start := time.Now()
			if err := m.EnsureProviders(cmd.Context()); err != nil {
				return err
			}
			devs, err := m.Devices(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Providers ensured in %s; %d available\n", time.Since(start).Round(time.Millisecond), len(devs))
			return nil
		},
	})
	return c
}
