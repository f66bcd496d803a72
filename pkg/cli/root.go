// Package cli provides the pkgbuild command-line interface
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/plamolinux/pkgbuild/pkg/config"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigName is the base name of the optional config file
const ConfigName = "pkgbuild"

// CLI holds the command tree and everything its commands share
type CLI struct {
	version  string
	cfgFile  string
	viper    *viper.Viper
	config   config.Config
	logger   logger.Logger
	rootCmd  *cobra.Command
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a CLI writing to stdout and stderr
func NewCLI(version string) *CLI {
	return NewCLIWithOutput(version, os.Stdout, os.Stderr)
}

// NewCLIWithOutput creates a CLI with custom output writers
func NewCLIWithOutput(version string, output, errorOut io.Writer) *CLI {
	c := &CLI{
		version:  version,
		viper:    viper.New(),
		output:   output,
		errorOut: errorOut,
	}
	config.SetDefaults(c.viper)
	c.setupCommands()
	return c
}

// Execute runs the command line in args
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the command line in args with ctx
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

// Execute runs the process command line and returns the exit status
func Execute(version string) int {
	c := NewCLI(version)
	if err := c.Execute(os.Args[1:]); err != nil {
		c.printError(err.Error())
		return 1
	}
	return 0
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "pkgbuild",
		Short: "Build changed Plamo Linux packages in clean containers",
		Long: `pkgbuild finds the packages that changed between two branches of the
Plamo-src tree and builds each of them, per architecture, inside a freshly
provisioned LXC container.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	c.rootCmd.SetOut(c.output)
	c.rootCmd.SetErr(c.errorOut)
	c.rootCmd.Version = c.version
	c.rootCmd.SetVersionTemplate("pkgbuild v{{.Version}}\n")

	c.setupFlags()

	c.rootCmd.AddCommand(
		c.newBuildCmd(),
		c.newChangesCmd(),
		c.newCategoriesCmd(),
		c.newStatusCmd(),
		c.newLogsCmd(),
		c.newDescribeCmd(),
		c.newValidateCmd(),
		c.newVersionCmd(),
	)
}

func (c *CLI) setupFlags() {
	d := config.Defaults()
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.cfgFile, "config", "", "config file (default: ./pkgbuild.yaml)")
	flags.StringP(config.KeyVerbosity, "v", d[config.KeyVerbosity].(string), "log level (debug, info, warn, error)")
	flags.String(config.KeyLogFile, "", "also write log output to this file")

	flags.StringP(config.KeyBranch, "b", d[config.KeyBranch].(string), "branch holding the changes")
	flags.StringP(config.KeyBaseline, "o", d[config.KeyBaseline].(string), "baseline branch to compare against")
	flags.StringP(config.KeyBaseDir, "d", d[config.KeyBaseDir].(string), "directory holding the local clone")
	flags.StringP(config.KeyRepository, "r", d[config.KeyRepository].(string), "local clone directory name")
	flags.String(config.KeyRemote, d[config.KeyRemote].(string), "source repository URL")
	flags.String(config.KeySourceDir, d[config.KeySourceDir].(string), "source tree location inside containers")
	flags.BoolP(config.KeyKeep, "k", false, "keep containers for later jobs instead of destroying them")
	flags.StringSliceP(config.KeyArch, "a", d[config.KeyArch].([]string), "target architectures")
	flags.StringP(config.KeyRelease, "R", d[config.KeyRelease].(string), "target release, e.g. 7.x or 8.0")
	flags.StringP(config.KeyFSType, "f", d[config.KeyFSType].(string), "container backing store")
	flags.BoolP(config.KeyInstall, "i", false, "install built packages into the container")
	flags.StringSliceP(config.KeyAddon, "A", nil, "extra packages to preinstall")
	flags.StringP(config.KeyContainerLog, "l", d[config.KeyContainerLog].(string), "container log level")
	flags.String(config.KeyMirrorHost, d[config.KeyMirrorHost].(string), "package mirror host")
	flags.String(config.KeyMirrorPath, d[config.KeyMirrorPath].(string), "package mirror path")
	flags.String(config.KeyLXCPath, d[config.KeyLXCPath].(string), "LXC container directory")
	flags.Bool(config.KeyDisableNetwork, true, "disable the container network interface")
	flags.Bool(config.KeyRecreateOnWiden, false, "recreate kept containers that lack categories for the next package")
	flags.Bool(config.KeyNotify, false, "send a desktop notification when the run ends")
	flags.String(config.KeyOverrides, "", "yaml or json file with extra category overrides")
	flags.String(config.KeyOutputDir, d[config.KeyOutputDir].(string), "directory receiving built packages")
}

// initializeConfig binds flags, environment and config file into the run
// configuration
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	if err := c.viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if c.cfgFile != "" {
		c.viper.SetConfigFile(c.cfgFile)
	} else {
		c.viper.SetConfigName(ConfigName)
		c.viper.AddConfigPath(".")
	}
	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.FromViper(c.viper)
	if err != nil {
		return err
	}
	c.config = cfg
	c.logger = logger.CreateLoggerWithOutput(cfg.LogFile, cfg.Verbosity, c.errorOut)

	if used := c.viper.ConfigFileUsed(); used != "" {
		c.logger.Debug("Using config file", logger.WithField("file", used))
	}
	return nil
}

// Helper functions for terminal output

func (c *CLI) printSuccess(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.GreenString("[pkgbuild]"), message)
}

func (c *CLI) printError(message string) {
	fmt.Fprintf(c.errorOut, "%s %s\n", color.RedString("[pkgbuild]"), message)
}

func (c *CLI) printInfo(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.CyanString("[pkgbuild]"), message)
}

func (c *CLI) printWarning(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.YellowString("[pkgbuild]"), message)
}
