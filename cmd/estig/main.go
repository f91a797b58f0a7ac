package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"

	"github.com/stigtools/estig/internal/genai"
	"github.com/stigtools/estig/internal/history"
	"github.com/stigtools/estig/internal/log"
	"github.com/stigtools/estig/internal/model"
	"github.com/stigtools/estig/internal/run"
	"github.com/stigtools/estig/internal/workbook"
)

var (
	userConfigPath string // default config directory for estig on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag

	flagWorkbook  string
	flagScanDir   string
	flagXMLDir    string
	flagComment   string
	flagHistory   string
	flagReportOut string
	flagTemplate  string
	flagOverwrite bool

	flagProfile  string
	flagVKey     string
	flagRule     string
	flagRuleDesc string
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "estig")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is estig.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	updateCmd.Flags().StringVar(&flagWorkbook, "workbook", "", "workbook to update (.xlsx)")
	updateCmd.Flags().StringVar(&flagScanDir, "scans", "", "directory containing .cklb files")
	updateCmd.Flags().StringVar(&flagXMLDir, "xml-dir", "", "answer-key XML output directory (empty skips XML)")
	updateCmd.Flags().StringVar(&flagComment, "comment", "", "ValidTrueComment for new rows (default "+model.DefaultComment+")")
	updateCmd.Flags().StringVar(&flagHistory, "history", "", "sqlite file recording merge runs")

	reportCmd.Flags().StringVar(&flagScanDir, "scans", "", "directory to scan recursively for .cklb")
	reportCmd.Flags().StringVar(&flagReportOut, "out", "", "output Markdown file")

	initCmd.Flags().StringVar(&flagTemplate, "template", "", "template workbook path (.xlsx)")
	initCmd.Flags().StringVar(&flagWorkbook, "workbook", "", "workbook to create")
	initCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "overwrite an existing workbook")

	clearCmd.Flags().StringVar(&flagWorkbook, "workbook", "", "workbook to clear (.xlsx)")

	exportCmd.Flags().StringVar(&flagWorkbook, "workbook", "", "workbook to export (.xlsx)")
	exportCmd.Flags().StringVar(&flagXMLDir, "xml-dir", "", "answer-key XML output directory")

	historyCmd.Flags().StringVar(&flagHistory, "history", "", "sqlite file recording merge runs")
	historyCmd.Flags().StringVar(&flagProfile, "profile", "", "only list runs for this profile")

	generateCmd.Flags().StringVar(&flagProfile, "profile", "", "STIG profile name, e.g. RHEL8")
	generateCmd.Flags().StringVar(&flagVKey, "vkey", "", "V-key of the rule, e.g. V-230222")
	generateCmd.Flags().StringVar(&flagRule, "title", "", "rule title")
	generateCmd.Flags().StringVar(&flagRuleDesc, "description", "", "rule description")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initEstig

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(versionCmd)

	// a keyboard interrupt cancels between writes, never mid-document
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("estig failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "estig",
	Short:        "STIG workbook and answer-key XML helper",
	SilenceUsage: true,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "import Not_Reviewed V-keys from .cklb scans into the workbook and XML answer-files",
	RunE:  doUpdate,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "recursively scan a directory for .cklb and build a Markdown findings report",
	RunE:  doReport,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "create a workbook from a template with a sheet per configured profile",
	RunE:  doInit,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "clear all data rows in a workbook",
	RunE:  doClear,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "generate/refresh XML answer-files from workbook rows",
	RunE:  doExport,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list recorded merge runs",
	RunE:  doHistory,
}

var pingCmd = &cobra.Command{
	Use:    "_ping",
	Short:  "internal command",
	RunE:   doPing,
	Hidden: true,
}

var generateCmd = &cobra.Command{
	Use:    "_generate",
	Short:  "internal command",
	RunE:   doGenerate,
	Hidden: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of estig",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("estig: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("estig: %s\n", info.Main.Version)
		fmt.Printf("go:    %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doUpdate(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.String("cmd", "update"))

	opts := run.UpdateOptions{
		Workbook: pick(flagWorkbook, config.Workbook),
		ScanDir:  pick(flagScanDir, config.ScanDir),
		XMLDir:   pick(flagXMLDir, config.XMLDir),
		Comment:  pick(flagComment, config.Comment),
		History:  pick(flagHistory, config.History),
	}
	if opts.Workbook == "" {
		return fmt.Errorf("no workbook given, use --workbook or the config file")
	}
	if opts.ScanDir == "" {
		return fmt.Errorf("no scan directory given, use --scans or the config file")
	}
	return run.Update(ctx, opts)
}

func doReport(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.String("cmd", "report"))

	root := pick(flagScanDir, config.ScanDir)
	if root == "" {
		return fmt.Errorf("no scan directory given, use --scans or the config file")
	}
	out := flagReportOut
	if out == "" {
		out = fmt.Sprintf("stig_report_%s.md", time.Now().Format("20060102-150405"))
	}
	if err := run.Report(ctx, root, out, config.Report.Limit); err != nil {
		return err
	}
	fmt.Printf("report saved to %s\n", out)
	return nil
}

func doInit(cmd *cobra.Command, args []string) error {
	dst := pick(flagWorkbook, config.Workbook)
	if flagTemplate == "" || dst == "" {
		return fmt.Errorf("both --template and --workbook are required")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := workbook.InitFromTemplate(flagTemplate, dst, config.Profiles, flagOverwrite); err != nil {
		return err
	}
	fmt.Printf("created workbook at %s\n", dst)
	return nil
}

func doClear(cmd *cobra.Command, args []string) error {
	path := pick(flagWorkbook, config.Workbook)
	if path == "" {
		return fmt.Errorf("no workbook given, use --workbook or the config file")
	}
	return workbook.Clear(path)
}

func doExport(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.String("cmd", "export"))

	wb := pick(flagWorkbook, config.Workbook)
	dir := pick(flagXMLDir, config.XMLDir)
	if wb == "" || dir == "" {
		return fmt.Errorf("both --workbook and --xml-dir are required")
	}
	return run.Export(ctx, wb, dir)
}

func doHistory(cmd *cobra.Command, args []string) error {
	path := pick(flagHistory, config.History)
	if path == "" {
		return fmt.Errorf("no history file given, use --history or the config file")
	}

	db, err := history.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	var rows []history.RunRow
	if flagProfile != "" {
		rows, err = history.Profile(cmd.Context(), db, flagProfile)
	} else {
		rows, err = history.List(cmd.Context(), db)
	}
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Println(row)
	}
	return nil
}

func doPing(cmd *cobra.Command, args []string) error {
	client, err := genai.NewClient(config.GenAI.URL, config.GenAI.Model,
		time.Duration(config.GenAI.TimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}
	if err := client.Ping(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func doGenerate(cmd *cobra.Command, args []string) error {
	if flagProfile == "" || flagVKey == "" {
		return fmt.Errorf("both --profile and --vkey are required")
	}

	client, err := genai.NewClient(config.GenAI.URL, config.GenAI.Model,
		time.Duration(config.GenAI.TimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}

	prompt := genai.ValidationPrompt(flagProfile, flagVKey, flagRule, flagRuleDesc)
	out, err := client.Generate(cmd.Context(), prompt)
	if err != nil {
		return err
	}
	fmt.Println(genai.StripFences(out))
	return nil
}

func initEstig(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("ESTIGCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "estig.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "estig.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}

	slog.SetDefault(log.New(os.Stderr, config.Verbose))

	slog.Debug("estig run", "configPath", configPath)
	return nil
}

func pick(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
