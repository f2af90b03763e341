package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"halo/audio"
	"halo/config"
	"halo/doctor"
	"halo/hotkey"
)

var version = "dev"

var errChecksFailed = errors.New("some checks failed")

type options struct {
	configPath string
	logPath    string
	device     string
	pick       bool
	fakeWAV    string
	script     []string
	metrics    string
	gui        bool
	hotkey     bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "halo",
	Short: "Radial audio spectrum with live Gemini transcription",
	Long: `halo draws the microphone's spectrum as a ring of bars and streams the
same audio to the Gemini Live API, showing the input transcription as it
arrives. Press space to start and stop listening.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.gui {
			return runGUI(cmd.Context())
		}
		return runTUI(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default: OS config dir/halo/config.toml)")
	pf.StringVar(&opts.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	pf.StringVar(&opts.device, "device", "", "use named microphone device")
	pf.BoolVar(&opts.pick, "select", false, "pick the microphone interactively")
	pf.StringVar(&opts.fakeWAV, "fake", "", "replay a 16kHz mono WAV file instead of the microphone")
	pf.StringSliceVar(&opts.script, "script", nil, "answer with these transcript fragments instead of connecting to Gemini")
	pf.StringVar(&opts.metrics, "metrics", "", "serve Prometheus metrics and pprof on this address (e.g. localhost:9090)")
	pf.BoolVar(&opts.hotkey, "hotkey", false, "toggle listening with the global "+hotkey.Binding+" shortcut (hold to talk)")
	_ = pf.MarkHidden("script")

	rootCmd.Flags().BoolVar(&opts.gui, "gui", false, "open a desktop window instead of the terminal UI")

	rootCmd.AddCommand(
		listenCmd(),
		devicesCmd(),
		doctorCmd(),
		configCmd(),
		versionCmd(),
	)
}

func main() {
	code := 0
	runMain(func() {
		if err := rootCmd.Execute(); err != nil {
			code = 1
		}
	})
	os.Exit(code)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("halo %s\n", version)
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("initializing audio: %w", err)
			}
			defer ctx.Close()
			devices, err := ctx.Devices()
			if err != nil {
				return fmt.Errorf("enumerating devices: %w", err)
			}
			for _, d := range devices {
				tag := ""
				if audio.IsBluetooth(d.Name) {
					tag = "  [bluetooth, lower audio quality]"
				}
				fmt.Printf("%s%s\n", d.Name, tag)
			}
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run system diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			code := doctor.Run(doctor.Checks{
				Out:         cmd.OutOrStdout(),
				Source:      a.source,
				Dialer:      a.dialer,
				Credential:  a.cfg.Transcription.Credential,
				Config:      a.cfg.TranscriberConfig(),
				Shortcut:    hotkey.Diagnose,
				Interactive: true,
			})
			if code != 0 {
				return errChecksFailed
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := configPath()
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write a config file with the defaults",
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := configPath()
				if err != nil {
					return err
				}
				if err := config.WriteDefault(path); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings",
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := configPath()
				if err != nil {
					return err
				}
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				t := cfg.Transcription
				fmt.Printf("file:        %s\n", path)
				fmt.Printf("credential:  %s\n", cfg.MaskedCredential())
				fmt.Printf("model:       %s\n", t.Model)
				fmt.Printf("endpoint:    %s\n", t.Endpoint)
				fmt.Printf("queue size:  %d\n", cfg.TranscriberConfig().QueueSize)
				fmt.Printf("fps:         %d\n", cfg.Visualizer.FPS)
				if cfg.Audio.Device != "" {
					fmt.Printf("device:      %s\n", cfg.Audio.Device)
				}
				if err := cfg.Validate(); err != nil {
					fmt.Printf("\n%v\n", err)
				}
				return nil
			},
		},
	)
	return cmd
}

func configPath() (string, error) {
	if opts.configPath != "" {
		return opts.configPath, nil
	}
	if p := os.Getenv("HALO_CONFIG"); p != "" {
		return p, nil
	}
	return config.Path()
}

