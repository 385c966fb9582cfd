package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/kjk/flatkv/config"
	"github.com/kjk/flatkv/kvfile"
	"github.com/kjk/flatkv/log"
	"github.com/kjk/flatkv/snapshot"
	"github.com/kjk/flatkv/u"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

type app struct {
	// flags
	configPath string
	dbPath     string
	logDir     string
	verbose    bool

	cfg *config.Config
}

// setup loads config, applies flags over it and initializes logging
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.logDir != "" {
		cfg.LogDir = a.logDir
	}
	if a.verbose {
		cfg.Verbose = true
	}
	a.cfg = cfg

	log.Stdout = cmd.ErrOrStderr()
	log.Stderr = cmd.ErrOrStderr()
	log.Verbose = cfg.Verbose
	log.Init(&log.Config{
		Dir: cfg.LogDir,
	})
	log.Verbosef("flatkv: using store '%s'\n", cfg.DBPath)
	return nil
}

func (a *app) runSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	fmt.Fprintf(cmd.OutOrStdout(), "The key is: '%s', the value is: '%s'\n", key, value)
	// fail before touching the store
	if err := kvfile.ValidateRecord(key, value); err != nil {
		return err
	}
	return kvfile.WithStore(a.cfg.DBPath, func(s *kvfile.Store) error {
		s.Insert(key, value)
		return s.Flush()
	})
}

func (a *app) runGet(cmd *cobra.Command, args []string) error {
	s, err := kvfile.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()
	v, ok := s.Lookup(args[0])
	if !ok {
		return fmt.Errorf("key '%s' %w", args[0], errNotFound)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func (a *app) runRemove(cmd *cobra.Command, args []string) error {
	return kvfile.WithStore(a.cfg.DBPath, func(s *kvfile.Store) error {
		if !s.Remove(args[0]) {
			fmt.Fprintf(cmd.OutOrStdout(), "key '%s' was not present\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed key '%s'\n", args[0])
		return s.Flush()
	})
}

func (a *app) listCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print all records, sorted by key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := kvfile.Open(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer s.Close()
			w := cmd.OutOrStdout()
			if asJSON {
				// encoding/json sorts map keys
				d, err := json.Marshal(s.Snapshot())
				if err != nil {
					return err
				}
				_, err = w.Write(pretty.Pretty(d))
				return err
			}
			for _, k := range s.Keys() {
				v, _ := s.Lookup(k)
				fmt.Fprintf(w, "%s\t%s\n", k, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON object")
	return cmd
}

func (a *app) runInfo(cmd *cobra.Command, args []string) error {
	s, err := kvfile.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()
	w := cmd.OutOrStdout()
	path, err := filepath.Abs(s.Path())
	if err != nil {
		path = s.Path()
	}
	fmt.Fprintf(w, "path:    %s\n", path)
	fmt.Fprintf(w, "records: %d\n", s.Len())
	if u.FileExists(s.Path()) {
		fmt.Fprintf(w, "size:    %s\n", u.FormatSize(u.FileSize(s.Path())))
	} else {
		fmt.Fprintf(w, "size:    (file doesn't exist yet)\n")
	}
	return nil
}

func (a *app) runSnapshot(cmd *cobra.Command, args []string) error {
	s, err := kvfile.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()
	dst := args[0]
	if err = snapshot.Write(dst, s.Snapshot()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to '%s'\n", s.Len(), dst)
	return nil
}

func (a *app) runRestore(cmd *cobra.Command, args []string) error {
	m, err := snapshot.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err = snapshot.Restore(a.cfg.DBPath, m); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d records from '%s'\n", len(m), args[0])
	return nil
}

func (a *app) runDiff(cmd *cobra.Command, args []string) error {
	s, err := kvfile.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()
	other, err := snapshot.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	diff, err := snapshot.Diff(s.Snapshot(), other, a.cfg.DBPath, args[0])
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "no differences")
		return nil
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), diff)
	return err
}

func (a *app) runEvents(cmd *cobra.Command, args []string) error {
	var files []string
	if len(args) == 1 {
		files = args
	} else {
		dir := log.EventsDir()
		if dir == "" {
			return fmt.Errorf("no log directory configured, use --log-dir or give path of events file")
		}
		var err error
		files, err = log.ListEventFiles(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	w := cmd.OutOrStdout()
	for _, path := range files {
		events, err := log.ReadEvents(path)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Fprintf(w, "%s %s\n", e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Name)
			if e.Data != "" {
				fmt.Fprintln(w, e.Data)
			}
		}
	}
	return nil
}
