package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"castbot/internal/broadcast"
)

func newCheckpointCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset the saved broadcast position",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the saved checkpoint as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := openStore(cmd.Context(), *f)
				if err != nil {
					return err
				}
				defer st.Close()
				cp, ok, err := broadcast.LoadCheckpoint(cmd.Context(), st)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no checkpoint")
					return nil
				}
				out, err := json.MarshalIndent(cp, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the checkpoint so the next broadcast starts from the first recipient",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := openStore(cmd.Context(), *f)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := broadcast.ClearCheckpoint(cmd.Context(), st); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "checkpoint cleared")
				return nil
			},
		},
	)
	return cmd
}
