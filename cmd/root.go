// Package cmd implements the lv2jack command-line entry point.
package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lv2jack/host/internal/conf"
	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/host"
	"github.com/lv2jack/host/internal/logging"
	"github.com/lv2jack/host/internal/plugindb"

	_ "github.com/lv2jack/host/internal/plugins/gain"
)

var controlFlags []string

// RootCommand builds the lv2jack root command: one positional plugin URI
// argument, optional when -l names a saved state carrying plugin_uri.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lv2jack [plugin-uri]",
		Short: "Load and run an audio plugin inside a realtime process callback",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := ""
			if len(args) == 1 {
				uri = args[0]
			}
			return runHost(cmd, settings, uri)
		},
	}

	setupFlags(rootCmd, settings)
	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&settings.Main.Name, "name", "n", viper.GetString("main.name"), "client name presented to the audio server")
	flags.BoolP("exact-name", "x", false, "require the exact client name (recorded in the log only; no name check is made)")
	flags.StringP("uuid", "u", "", "session identifier (default: a freshly generated UUID)")
	flags.StringP("load", "l", "", "load saved state from PATH before activation")
	flags.StringP("preset", "p", "", "apply the named preset after loading default state")
	flags.StringArrayVarP(&controlFlags, "control", "c", nil, "override a control port, repeatable: -c sym=value")
	flags.Uint32VarP(&settings.UI.RingBytes, "buffer-size", "b", settings.UI.RingBytes, "UI ring buffer size in bytes")
	flags.Float64VarP(&settings.UI.UpdateRateHz, "update-rate", "r", settings.UI.UpdateRateHz, "UI update rate in Hz")
	flags.BoolP("dump", "d", false, "dump plugin-produced events to stdout")
	flags.BoolP("trace", "t", false, "enable plugin trace logging")
	flags.BoolVarP(&settings.UI.Generic, "generic-ui", "g", false, "force the generic console UI")
	flags.BoolP("show-ui", "s", false, "show a plugin-provided UI if available")
	flags.BoolP("print-controls", "i", false, "print control value changes to stdout")
}

func runHost(cmd *cobra.Command, settings *conf.Settings, pluginURI string) error {
	logging.Init()

	overrides, err := parseControlOverrides(controlFlags)
	if err != nil {
		return err
	}

	sessionUUID, _ := cmd.Flags().GetString("uuid")
	if sessionUUID == "" {
		sessionUUID = uuid.NewString()
	}
	statePath, _ := cmd.Flags().GetString("load")
	presetURI, _ := cmd.Flags().GetString("preset")
	exactName, _ := cmd.Flags().GetBool("exact-name")
	printControls, _ := cmd.Flags().GetBool("print-controls")
	dumpEvents, _ := cmd.Flags().GetBool("dump")
	trace, _ := cmd.Flags().GetBool("trace")

	if pluginURI == "" {
		pluginURI, err = pluginURIFromState(statePath)
		if err != nil {
			return err
		}
	}

	opts := host.Options{
		PluginURI:        pluginURI,
		Name:             settings.Main.Name,
		ExactName:        exactName,
		SessionUUID:      sessionUUID,
		StatePath:        statePath,
		StateLoadOnly:    settings.State.LoadOnly,
		PresetURI:        presetURI,
		ControlOverrides: overrides,
		PrintControls:    printControls,
		DumpEvents:       dumpEvents,
		Trace:            trace,
		Settings:         settings,
	}

	ctrl := host.New(opts)
	return ctrl.Run(context.Background())
}

// pluginURIFromState resolves the plugin to load from a saved state's
// plugin_uri field, so `lv2jack -l DIR` can restart a session without
// repeating the URI.
func pluginURIFromState(statePath string) (string, error) {
	if statePath == "" {
		return "", errors.New(nil).
			Component("cmd").
			Category(errors.CategoryValidation).
			Context("reason", "plugin URI required unless -l names a saved state").
			Build()
	}
	saved, err := plugindb.LoadState(statePath)
	if err != nil {
		return "", err
	}
	if saved == nil || saved.PluginURI == "" {
		return "", errors.New(nil).
			Component("cmd").
			Category(errors.CategoryValidation).
			Context("path", statePath).
			Context("reason", "saved state names no plugin_uri").
			Build()
	}
	return saved.PluginURI, nil
}

// parseControlOverrides parses repeated "-c sym=value" flags into control
// overrides applied before activation.
func parseControlOverrides(raw []string) ([]host.ControlOverride, error) {
	overrides := make([]host.ControlOverride, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, errors.New(nil).
				Component("cmd").
				Category(errors.CategoryValidation).
				Context("flag", entry).
				Context("reason", "control override must be sym=value").
				Build()
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 32)
		if err != nil {
			return nil, errors.New(err).
				Component("cmd").
				Category(errors.CategoryValidation).
				Context("flag", entry).
				Build()
		}
		overrides = append(overrides, host.ControlOverride{
			Symbol: strings.TrimSpace(parts[0]),
			Value:  float32(v),
		})
	}
	return overrides, nil
}
