package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/present"
)

func newConfigCmd(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printConfig(cmd.OutOrStdout(), rt.cfg)
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:         "init",
		Short:       "Write a commented settings file if none exists",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := rt.settingsPath()
			if err != nil {
				return err
			}
			if err := config.WriteConfigFile(path); err != nil {
				return err
			}
			present.PrintConfirmation(cmd.ErrOrStderr(), "", present.StderrStyles().Link.Render(path))
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:         "edit",
		Short:       "Open settings in $EDITOR",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := rt.settingsPath()
			if err != nil {
				return err
			}
			return editSettings(path)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Print the settings file location",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := rt.settingsPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	return configCmd
}

func (rt *runtime) settingsPath() (string, error) {
	if rt.cfgPath != "" {
		return rt.cfgPath, nil
	}
	return config.DefaultPath()
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Masked()); err != nil {
		return errs.Wrap(err, "Could not encode the configuration.")
	}
	return enc.Close()
}

func editSettings(path string) error {
	if err := config.WriteConfigFile(path); err != nil {
		return err
	}

	c, err := editor.Cmd("threadline", path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not edit your settings file."}
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return errs.Error{Err: err, Reason: fmt.Sprintf(
			"Missing %s.",
			present.StderrStyles().InlineCode.Render("$EDITOR"),
		)}
	}
	return nil
}
