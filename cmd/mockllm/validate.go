package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yungtweek/mockllm/internal/config"
	"github.com/yungtweek/mockllm/internal/mock"
)

var errInvalid = errors.New("validation failed")

func newValidateCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "validate TARGET",
		Short: "Validate a responses YAML file or a response module name",
		Long: "Validate a responses YAML file or check that a response module is registered.\n" +
			"Without --type, TARGET is treated as a config file when it exists or has a YAML extension.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if kind == "" {
				kind = detectKind(target)
			}
			switch kind {
			case "config":
				return validateConfig(cmd, target)
			case "module":
				return validateModule(cmd, target)
			default:
				return fmt.Errorf("unknown --type %q: use config or module", kind)
			}
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "", "what TARGET is: config or module")
	return cmd
}

func detectKind(target string) string {
	switch strings.ToLower(filepath.Ext(target)) {
	case ".yml", ".yaml", ".json":
		return "config"
	}
	if _, err := os.Stat(target); err == nil {
		return "config"
	}
	return "module"
}

func validateConfig(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	snap, err := config.Load(path)
	if err != nil {
		color.New(color.FgRed).Fprintln(out, "Invalid config file")
		fmt.Fprintln(out, err)
		return errInvalid
	}
	color.New(color.FgGreen).Fprintln(out, "Valid config file")
	fmt.Fprintf(out, "Found %d responses\n", len(snap.Table.Responses))
	return nil
}

func validateModule(cmd *cobra.Command, name string) error {
	out := cmd.OutOrStdout()
	if _, ok := mock.LookupCallback(name); !ok {
		color.New(color.FgRed).Fprintln(out, "Invalid response module")
		fmt.Fprintf(out, "%q is not registered (registered: %s)\n", name, strings.Join(mock.Callbacks(), ", "))
		return errInvalid
	}
	color.New(color.FgGreen).Fprintln(out, "Valid response module")
	fmt.Fprintf(out, "%s is registered\n", name)
	return nil
}
