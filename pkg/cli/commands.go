package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/plamolinux/pkgbuild/internal/engine"
	"github.com/plamolinux/pkgbuild/pkg/artifact"
	"github.com/plamolinux/pkgbuild/pkg/category"
	"github.com/plamolinux/pkgbuild/pkg/state"
	"github.com/plamolinux/pkgbuild/pkg/types"
	"github.com/plamolinux/pkgbuild/pkg/vcs"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build every changed package",
		Long: `Sync the local clone, list the packages that differ between the baseline
and the compare branch and build each of them for every architecture.
Built packages are copied to the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(cmd.Context())
		},
	}
}

func (c *CLI) newChangesCmd() *cobra.Command {
	var offline bool
	var output string

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List the packages that changed between the branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runChanges(cmd.Context(), offline, output)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "use the local clone as is, without fetching")
	cmd.Flags().StringVar(&output, "output", FormatText, "output format (text, json, yaml)")
	return cmd
}

func (c *CLI) newCategoriesCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "categories <package-path>...",
		Short: "Show the container profile a package is built with",
		Long: `Resolve the categories, addon packages and ignored packages a container
needs to build each given package, e.g. plamo/03_libs/zlib.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCategories(args, output)
		},
	}

	cmd.Flags().StringVar(&output, "output", FormatYAML, "output format (yaml, json)")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the containers kept by earlier runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStatus()
		},
	}
}

func (c *CLI) newLogsCmd() *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs [package-arch]",
		Short: "Show build logs",
		Long:  `Display the build log of one job, e.g. "zlib-x86_64", or of every job.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := ""
			if len(args) > 0 {
				job = args[0]
			}
			return c.runLogs(job, lines)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}

func (c *CLI) newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <package.txz>...",
		Short: "Show the description of built packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDescribe(args)
		},
	}
}

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate()
		},
	}
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pkgbuild",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "pkgbuild v%s\n", c.version)
		},
	}
}

// Implementation functions

func (c *CLI) runBuild(ctx context.Context) error {
	factory := engine.NewDependencyFactory(c.config, c.logger)
	deps, err := factory.CreateDefaults()
	if err != nil {
		return err
	}
	o := engine.New(factory.Options(), deps, c.logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	report, err := engine.Execute(ctx, o, sigs, c.logger)
	if report != nil {
		c.printReport(report)
	}
	return err
}

func (c *CLI) printReport(r *engine.Report) {
	for _, j := range r.Jobs {
		switch {
		case j.CollectErr != nil:
			c.printError(fmt.Sprintf("%s built, artifacts incomplete: %v", j.Job, j.CollectErr))
		case j.Outcome == types.OutcomeSucceeded:
			c.printSuccess(fmt.Sprintf("%s built: %s", j.Job, strings.Join(baseNames(j.Artifacts), " ")))
		case j.Outcome == types.OutcomeSkipped:
			c.printWarning(fmt.Sprintf("%s skipped at %s: %s", j.Job, j.Stage, j.Reason))
		case j.Outcome == types.OutcomeFatal:
			c.printError(fmt.Sprintf("%s failed at %s", j.Job, j.Stage))
		}
	}
	c.printInfo(fmt.Sprintf("%d package(s) changed, %d built, %d skipped",
		r.Changes, len(r.Built()), len(r.Skipped())))
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func (c *CLI) runChanges(ctx context.Context, offline bool, output string) error {
	opts := vcs.Options{
		Path:      c.config.LocalRepo(),
		RemoteURL: c.config.RemoteURL,
		Baseline:  c.config.BaselineBranch,
		Compare:   c.config.CompareBranch,
	}

	var repo *vcs.Repository
	var err error
	if offline {
		repo, err = vcs.Open(opts, c.logger)
	} else {
		repo, err = vcs.Sync(ctx, opts, c.logger)
	}
	if err != nil {
		return err
	}

	entries, err := vcs.NewChangeSetResolver(repo, c.logger).Resolve(ctx, opts.Baseline, opts.Compare)
	if err != nil {
		return err
	}

	if output == FormatText {
		for _, e := range entries {
			fmt.Fprintln(c.output, e.Path)
		}
		return nil
	}
	return c.encode(output, entries)
}

type packageProfile struct {
	Package                  string `json:"package" yaml:"package"`
	types.EnvironmentProfile `yaml:",inline"`
}

func (c *CLI) runCategories(paths []string, output string) error {
	resolver := category.NewResolver(category.Options{
		Addons:    c.config.Addons,
		Overrides: c.config.Overrides,
	})

	profiles := make([]packageProfile, 0, len(paths))
	for _, p := range paths {
		entry, err := types.ParseChangeEntry(p)
		if err != nil {
			return err
		}
		profiles = append(profiles, packageProfile{
			Package:            entry.Path,
			EnvironmentProfile: resolver.Resolve(entry, c.config.Release.Major),
		})
	}
	return c.encode(output, profiles)
}

func (c *CLI) encode(format string, v interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(c.output)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(c.output)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func (c *CLI) runStatus() error {
	sm := state.NewStateManager(c.config.StateDir(), c.logger)
	records, err := sm.Discover()
	if err != nil {
		return fmt.Errorf("failed to discover environments: %w", err)
	}
	if len(records) == 0 {
		c.printInfo("No kept containers")
		return nil
	}

	archs, err := sm.Archs()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARCH\tCONTAINER\tRELEASE\tSTATUS\tBUILDS\tLAST JOB\tCATEGORIES")
	fmt.Fprintln(w, "----\t---------\t-------\t------\t------\t--------\t----------")

	for _, arch := range archs {
		rec := records[arch]

		status := color.WhiteString("idle")
		if locked, _ := sm.IsLocked(arch); locked {
			status = color.YellowString("in use")
		}

		lastJob := rec.LastJob
		if lastJob == "" {
			lastJob = "-"
		}
		categories := "unknown"
		if rec.Profile != nil {
			categories = strings.Join(rec.Profile.Categories, " ")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.Arch,
			rec.Name,
			rec.Release,
			status,
			rec.BuildCount,
			lastJob,
			categories,
		)
	}

	return w.Flush()
}

func (c *CLI) runLogs(job string, lines int) error {
	if lines < 0 {
		return fmt.Errorf("--lines must not be negative, got %d", lines)
	}

	logDir := filepath.Join(c.config.StateDir(), "logs")

	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		c.printWarning("No logs found. Run 'pkgbuild build' first.")
		return nil
	}

	var logFiles []string
	if job != "" {
		logFile := filepath.Join(logDir, job+".log")
		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			return fmt.Errorf("no logs found for %s", job)
		}
		logFiles = []string{logFile}
	} else {
		entries, err := os.ReadDir(logDir)
		if err != nil {
			return fmt.Errorf("failed to read log directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".log" {
				logFiles = append(logFiles, filepath.Join(logDir, entry.Name()))
			}
		}
		if len(logFiles) == 0 {
			c.printWarning("No log files found")
			return nil
		}
	}

	for _, logFile := range logFiles {
		content, err := readLastNLines(logFile, lines)
		if err != nil {
			c.printError(fmt.Sprintf("Failed to read %s: %v", filepath.Base(logFile), err))
			continue
		}
		fmt.Fprintf(c.output, "\n=== %s ===\n", strings.TrimSuffix(filepath.Base(logFile), ".log"))
		fmt.Fprint(c.output, content)
	}
	return nil
}

func readLastNLines(filename string, n int) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return lastLines(file, n)
}

func lastLines(r io.Reader, n int) (string, error) {
	var all []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	start := 0
	if n < 0 {
		n = 0
	}
	if len(all) > n {
		start = len(all) - n
	}
	if start == len(all) {
		return "", nil
	}
	return strings.Join(all[start:], "\n") + "\n", nil
}

func (c *CLI) runDescribe(files []string) error {
	failed := 0
	for _, file := range files {
		info, err := artifact.ParseFileName(file)
		if err != nil {
			c.printError(err.Error())
			failed++
			continue
		}
		desc, err := artifact.Describe(file)
		if err != nil {
			c.printError(fmt.Sprintf("%s: %v", filepath.Base(file), err))
			failed++
			continue
		}

		fmt.Fprintf(c.output, "%s %s (%s, build %s)\n", info.Name, info.Version, info.Arch, info.Build)
		if desc.Summary != "" {
			fmt.Fprintf(c.output, "  %s\n", desc.Summary)
		}
		for _, line := range desc.Lines {
			fmt.Fprintf(c.output, "  %s\n", line)
		}
		fmt.Fprintf(c.output, "  %d file(s)\n", desc.Files)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d package(s) could not be described", failed, len(files))
	}
	return nil
}

func (c *CLI) runValidate() error {
	cfg := c.config

	var warnings []string
	if cfg.Install && !cfg.Keep {
		warnings = append(warnings, "--install without --keep installs into containers that are destroyed right after")
	}
	if cfg.RecreateOnWiden && !cfg.Keep {
		warnings = append(warnings, "--recreate-on-widen has no effect without --keep")
	}
	if !cfg.DisableNetwork {
		warnings = append(warnings, "containers keep their network interface")
	}
	for _, a := range cfg.Addons {
		if _, err := types.ParseChangeEntry(a); err != nil {
			warnings = append(warnings, fmt.Sprintf("addon %q is not a package path", a))
		}
	}

	c.printInfo(fmt.Sprintf("Comparing %s against %s in %s", cfg.CompareBranch, cfg.BaselineBranch, cfg.LocalRepo()))
	c.printInfo(fmt.Sprintf("Release %s (%s packages) for %s",
		cfg.Release, artifact.Marker(cfg.Release.Major), strings.Join(cfg.Archs, " ")))

	if len(warnings) > 0 {
		c.printWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Fprintf(c.output, "  ! %s\n", w)
		}
	}

	c.printSuccess("Configuration is valid")
	return nil
}
