package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigYAML mirrors config.Default; init_test keeps them in sync.
const defaultConfigYAML = `# tapbot configuration

click_mode:
  # template: locate the template image on screen and tap it
  # coordinates: tap a fixed point
  mode: template

click_speed:
  # each iteration waits a uniform random delay in [min_delay, max_delay]
  min_delay: 100ms
  max_delay: 200ms

image_matching:
  # minimum similarity score in [0,1] to accept a match
  threshold: 0.8
  # restrict the search to a frame rectangle "x,y,w,h"
  # region: "0,600,1080,1320"
  # screen resolution the template was captured at, e.g. "1080x2400";
  # the template is rescaled when the device resolution differs
  # reference_size: "1080x2400"

automation:
  # how long a match stays fresh before rescanning; 0 keeps the first match
  scan_interval: 30s
  # tap jitter in pixels per axis
  random_offset: 2

coordinates:
  x: 0
  y: 0

paths:
  template_path: images/default.png
  tmp_directory: tmp
  runs_directory: runs

cleanup:
  # scratch screenshots older than this are swept at startup
  max_age: 24h

device:
  # serial: emulator-5554
  index: 0
  # route screencap through a file on the device instead of exec-out
  screencap_file_mode: false

app:
  # package: com.example.game
  start_wait: 5s

logging:
  level: info
  format: text
  # file: tapbot.log
`

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented starter config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rf.Config
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = "config.yaml"
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
