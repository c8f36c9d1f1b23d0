package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/linkpulse/am"
	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage linkpulse configuration",
	Long: sym.AM + ` am: manage linkpulse configuration ("I am")

Configuration sources (later overrides earlier):
  1. Built-in defaults
  2. System config (/etc/linkpulse/am.toml)
  3. User config (~/.linkpulse/am.toml)
  4. Project config (./am.toml, searched up from the working directory)
  5. Environment variables (LINKPULSE_* prefix)

A running server reloads plan, automation and server origin settings
when a config file changes.

Examples:
  linkpulse am init
  linkpulse am show --format json
  linkpulse am set plan.daily.likes 150
  linkpulse am validate
  linkpulse am where`,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := am.UserConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := am.WriteDefault(path, force); err != nil {
			return err
		}
		pterm.Success.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal config to JSON")
			}
			fmt.Println(string(data))
		case "yaml":
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return errors.Wrap(err, "failed to marshal config to YAML")
			}
			fmt.Printf("# linkpulse configuration\n%s", data)
		case "toml":
			data, err := toml.Marshal(cfg)
			if err != nil {
				return errors.Wrap(err, "failed to marshal config to TOML")
			}
			fmt.Printf("# linkpulse configuration\n%s", data)
		default:
			return errors.NewValidationError("unsupported format: %s (supported: toml, json, yaml)", format)
		}
		return nil
	},
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the active config file",
	Long: `Set a value in the active config file using dot notation.

The previous file is kept as a timestamped backup. The result must pass
validation or nothing is written.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := am.ActiveConfigPath()
		if path == "" {
			return errors.New("no config path available (HOME not set?)")
		}
		if err := am.SetValue(path, args[0], args[1]); err != nil {
			return err
		}
		pterm.Success.Printf("%s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

var amValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := am.ConfigFiles()
		if len(args) == 1 {
			files = args
		}
		for _, path := range files {
			unknown, err := am.ValidateFile(path)
			if err != nil {
				return errors.Wrapf(err, "%s", path)
			}
			for _, key := range unknown {
				pterm.Warning.Printf("%s: unknown key %s\n", path, key)
			}
		}

		if len(args) == 0 {
			cfg, err := am.Load()
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "configuration validation failed")
			}
		}
		pterm.Success.Println("Configuration is valid")
		return nil
	},
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		intro, err := am.GetConfigIntrospection()
		if err != nil {
			return errors.Wrap(err, "failed to get config introspection")
		}
		if wantJSON(cmd) {
			return printJSON(intro)
		}

		if len(intro.ConfigFiles) == 0 {
			pterm.Info.Println("No config files found, using defaults and environment")
		} else {
			pterm.DefaultSection.Println("Config files (later overrides earlier)")
			for _, f := range intro.ConfigFiles {
				fmt.Println("  " + f)
			}
		}

		settings := append([]am.SettingInfo(nil), intro.Settings...)
		sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })

		data := pterm.TableData{{"Key", "Value", "Source"}}
		for _, s := range settings {
			source := string(s.Source)
			if s.SourcePath != "" {
				source += " (" + s.SourcePath + ")"
			}
			data = append(data, []string{s.Key, fmt.Sprint(s.Value), source})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	amInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	amWhereCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}
