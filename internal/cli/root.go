// Package cli wires configuration, device plumbing, and the click loop
// into the tapbot command tree.
package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tapbot/internal/buildinfo"
	"tapbot/internal/config"
)

type rootFlags struct {
	Config      string
	Adb         string
	Device      string
	DeviceIndex int
	LogLevel    string
	LogFormat   string
	LogFile     string
	Remote      string
	Compress    bool
}

var rf rootFlags

func bindRootFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&rf.Config, "config", "c", "", "config file (default: config.yaml, then config.json)")
	pf.StringVar(&rf.Adb, "adb", "adb", "adb executable")
	pf.StringVarP(&rf.Device, "device", "d", "", "device serial")
	pf.IntVar(&rf.DeviceIndex, "device-index", 0, "pick the n-th ready device")
	pf.StringVar(&rf.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&rf.LogFormat, "log-format", "", "log format: text, json")
	pf.StringVar(&rf.LogFile, "log-file", "", "append logs to this file instead of stderr")
	pf.StringVar(&rf.Remote, "remote", "", "use a remote agent at host:port instead of local adb")
	pf.BoolVar(&rf.Compress, "compress", false, "snappy-compress the remote link")
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	rootCmd := &cobra.Command{
		Use:           "tapbot",
		Short:         "Android auto clicker driven by adb and template matching",
		Version:       buildinfo.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindRootFlags(rootCmd)

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(screenshotCmd())
	rootCmd.AddCommand(findCmd())
	rootCmd.AddCommand(tapCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(initCmd())

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "error: ")
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// loadConfig resolves the config file and lays the shared flags over it.
// Commands apply their own flags and call Validate themselves.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := rf.Config
	if path == "" {
		for _, p := range []string{"config.yaml", "config.json"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	}

	f := cmd.Flags()
	if f.Changed("device") {
		cfg.Device.Serial = rf.Device
	}
	if f.Changed("device-index") {
		cfg.Device.Index = rf.DeviceIndex
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = rf.LogLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = rf.LogFormat
	}
	if f.Changed("log-file") {
		cfg.Logging.File = rf.LogFile
	}
	return cfg, nil
}
