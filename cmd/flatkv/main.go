package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/kjk/flatkv/kvfile"
	"github.com/kjk/flatkv/log"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("not found")

func exitCode(err error) int {
	switch kvfile.KindOf(err) {
	case kvfile.MalformedRecord:
		return 2
	case kvfile.EncodingConflict:
		return 3
	}
	return 1
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	defer log.Close()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "error: %s\n", err)
	if errors.Is(err, errNotFound) {
		return 1
	}
	return exitCode(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "flatkv <key> <value>",
		Short: "Key/value store in a flat text file",
		Long: `flatkv stores key/value pairs in a text file, one "key<TAB>value" per line.

Called with a key and a value it stores the pair, same as "flatkv set".
A key that is also a command name is stored when the command doesn't
take the value as its argument, e.g. "flatkv info blue". Otherwise put
"--" before the key: "flatkv -- get blue".`,
		Args:              cobra.ExactArgs(2),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runSet,
	}
	// "completion" is a valid key
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetHelpCommand(a.helpCmd())
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path of YAML config file")
	pf.StringVar(&a.dbPath, "db", "", "path of the store file (default kv.db)")
	pf.StringVar(&a.logDir, "log-dir", "", "directory for log files")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose logging")

	for _, cmd := range []*cobra.Command{
		{
			Use:   "set <key> <value>",
			Short: "Set value of a key",
			Args:  cobra.ExactArgs(2),
			RunE:  a.runSet,
		},
		{
			Use:   "get <key>",
			Short: "Print value of a key",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runGet,
		},
		{
			Use:     "rm <key>",
			Aliases: []string{"remove", "del"},
			Short:   "Remove a key",
			Args:    cobra.ExactArgs(1),
			RunE:    a.runRemove,
		},
		a.listCmd(),
		{
			Use:   "info",
			Short: "Show store path, number of records and file size",
			Args:  cobra.NoArgs,
			RunE:  a.runInfo,
		},
		{
			Use:   "snapshot <dst>",
			Short: "Write a copy of the store, compressed if dst ends with .gz, .zst or .br",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runSnapshot,
		},
		{
			Use:   "restore <src>",
			Short: "Replace the store with a snapshot from a file or http(s) URL",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runRestore,
		},
		{
			Use:   "diff <src>",
			Short: "Show differences between the store and a snapshot",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runDiff,
		},
		{
			Use:   "events [file]",
			Short: "Print events recorded in the events log",
			Args:  cobra.MaximumNArgs(1),
			RunE:  a.runEvents,
		},
		a.backupCmd(),
	} {
		root.AddCommand(a.orSetKey(cmd))
	}
	return root
}

// orSetKey makes "flatkv <cmd> <value>" set key <cmd> to <value> when cmd
// doesn't accept <value> as its only argument
func (a *app) orSetKey(cmd *cobra.Command) *cobra.Command {
	validate := cmd.Args
	if validate == nil {
		validate = cobra.ArbitraryArgs
	}
	run := cmd.RunE
	isSet := func(c *cobra.Command, args []string) bool {
		return len(args) == 1 && (run == nil || validate(c, args) != nil)
	}
	cmd.Args = func(c *cobra.Command, args []string) error {
		if isSet(c, args) {
			return nil
		}
		return validate(c, args)
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if isSet(c, args) {
			return a.runSet(c, []string{c.CalledAs(), args[0]})
		}
		if run == nil {
			return c.Help()
		}
		return run(c, args)
	}
	return cmd
}

// helpCmd replaces cobra's help command so that "flatkv help <value>"
// sets key "help" unless <value> is a command
func (a *app) helpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			topic, _, err := root.Find(args)
			if len(args) == 1 && (err != nil || topic == root) {
				return a.runSet(cmd, []string{cmd.CalledAs(), args[0]})
			}
			if err != nil {
				return err
			}
			return topic.Help()
		},
	}
}
