package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/diskmap"
)

// Version is the CLI version.
const Version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "diskmap",
		Short: "inspect and maintain diskmap store files",
		Long: fmt.Sprintf(`diskmap (v%s)

Inspect, benchmark, back up and restore diskmap store files.
Every flag can also be set as an environment variable with the
DISKMAP_ prefix, e.g. DISKMAP_FILE=./users.dmap. Variables are
read from .env and .env.local when present.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("file", "", "path of the store file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Int64("slice-size", diskmap.DefaultSliceSize, "size of one mapped slice in bytes")

	root.AddCommand(
		newVersionCmd(),
		newStatsCmd(),
		newMapsCmd(),
		newDumpCmd(),
		newBenchCmd(),
		newBackupCmd(),
		newRestoreCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("diskmap v%s\n", Version)
		},
	}
}

// initConfig loads env files and binds the command's flags to viper.
func initConfig(cmd *cobra.Command) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("diskmap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

func logger() (*diskmap.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", viper.GetString("log-level"))
	}
	switch viper.GetString("log-format") {
	case "text":
		return diskmap.NewTextLogger(level), nil
	case "json":
		return diskmap.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", viper.GetString("log-format"))
	}
}

func builderOptions(extra ...diskmap.Option) ([]diskmap.Option, error) {
	l, err := logger()
	if err != nil {
		return nil, err
	}
	opts := []diskmap.Option{
		diskmap.WithLogger(l),
		diskmap.WithSliceSize(viper.GetInt64("slice-size")),
	}
	return append(opts, extra...), nil
}

// openFile opens the store named by --file. The file must exist unless
// create is set.
func openFile(create bool, extra ...diskmap.Option) (*diskmap.Builder, error) {
	path := viper.GetString("file")
	if path == "" {
		return nil, fmt.Errorf("no store file given (--file or DISKMAP_FILE)")
	}
	if !create {
		if err := mustExist(path); err != nil {
			return nil, err
		}
	}
	opts, err := builderOptions(extra...)
	if err != nil {
		return nil, err
	}
	return diskmap.Open(path, opts...)
}
