package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage dataq configuration",
	Long: `am: Manage dataq configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (DATAQ_* prefix)
3. Project config (./am.toml, searched up from the working directory)
4. User config (~/.dataq/am.toml)
5. System config (/etc/dataq/am.toml)
6. Default values

Examples:
  dataq am show                    # Show current configuration
  dataq am show --format json      # Show configuration in JSON format
  dataq am init                    # Write the defaults to ./am.toml
  dataq am check am.toml           # Report unknown keys and invalid values
  dataq am set llm.provider gemini # Set one key in the project config`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged dataq configuration from all sources",
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default am.toml",
	RunE:  runAmInit,
}

var amCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Check a config file for unknown keys and invalid values",
	Long:  "Strictly decode a config file (default: the project am.toml). Misspelled keys are otherwise ignored silently.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmCheck,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the project am.toml",
	Long:  "Set a dotted key (e.g. llm.provider, pulse.workers). Numbers and booleans are stored typed. The previous file is kept as a rotating backup.",
	Args:  cobra.ExactArgs(2),
	RunE:  runAmSet,
}

var (
	configFormat string
	initPath     string
	initForce    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().StringVar(&initPath, "path", am.ConfigFileName, "Where to write the config")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amCheckCmd)
	AmCmd.AddCommand(amSetCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	// Never print secrets
	redacted := *cfg
	redacted.Gemini.APIKey = redact(cfg.Gemini.APIKey)
	redacted.OpenRouter.APIKey = redact(cfg.OpenRouter.APIKey)
	redacted.Storage.MinIO.SecretKey = redact(cfg.Storage.MinIO.SecretKey)

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(redacted)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# dataq configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(redacted)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# dataq configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func runAmInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initPath); err == nil && !initForce {
		return errors.WithHint(
			errors.Newf("%s already exists", initPath),
			"pass --force to overwrite it (a backup is kept)")
	}
	if err := am.WriteConfig(initPath, am.Defaults()); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote default configuration to %s", initPath)
	return nil
}

func runAmCheck(cmd *cobra.Command, args []string) error {
	path := am.FindProjectConfig()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.WithHint(
			errors.New("no am.toml found in this directory or its parents"),
			"pass a file, or create one with 'dataq am init'")
	}

	unknown, err := am.CheckFile(path)
	if err != nil {
		return err
	}
	for _, key := range unknown {
		pterm.Warning.Printfln("Unknown key: %s", key)
	}

	cfg, err := am.LoadFromFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrapf(err, "%s is invalid", path)
	}

	if len(unknown) > 0 {
		return errors.Newf("%s has %d unknown key(s)", path, len(unknown))
	}
	pterm.Success.Printfln("%s is valid", path)
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path := am.FindProjectConfig()
	if path == "" {
		path = am.ConfigFileName
	}
	if err := am.SetValue(path, args[0], parseValue(args[1])); err != nil {
		return err
	}
	pterm.Success.Printfln("Set %s in %s", args[0], path)
	return nil
}

// parseValue types a command line value the way TOML would
func parseValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
