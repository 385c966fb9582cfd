package main

import (
	"fmt"
	"time"

	"github.com/kjk/flatkv/backup"
	"github.com/kjk/flatkv/u"
	"github.com/spf13/cobra"
)

func (a *app) backupClient() (*backup.Client, error) {
	return backup.New(&a.cfg.Backup)
}

func (a *app) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Store snapshots in S3-compatible storage",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "push [name]",
			Short: "Upload the store, default name is <db>.<timestamp>.br",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.backupClient()
				if err != nil {
					return err
				}
				name := backup.DefaultName(a.cfg.DBPath, time.Now())
				if len(args) == 1 {
					name = args[0]
				}
				info, err := c.Push(cmd.Context(), a.cfg.DBPath, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded '%s' (%s)\n", info.Key, u.FormatSize(info.Size))
				return nil
			},
		},
		&cobra.Command{
			Use:   "pull <name>",
			Short: "Replace the store with a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.backupClient()
				if err != nil {
					return err
				}
				n, err := c.Pull(cmd.Context(), args[0], a.cfg.DBPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d records from '%s'\n", n, args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "ls [prefix]",
			Short: "List backups",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.backupClient()
				if err != nil {
					return err
				}
				prefix := ""
				if len(args) == 1 {
					prefix = args[0]
				}
				objects, err := c.List(cmd.Context(), prefix)
				if err != nil {
					return err
				}
				for _, o := range objects {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %10s  %s\n", o.LastModified.UTC().Format("2006-01-02 15:04:05"), u.FormatSize(o.Size), o.Key)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <name>",
			Short: "Delete a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.backupClient()
				if err != nil {
					return err
				}
				return c.Remove(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}
