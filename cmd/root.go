// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/googlecloudplatform/ntfsindex"
	"github.com/googlecloudplatform/ntfsindex/cfg"
	"github.com/googlecloudplatform/ntfsindex/clock"
	"github.com/googlecloudplatform/ntfsindex/internal/logger"
)

// pollInterval is how often the follower checks the change journal for
// new records once the initial scan completes and --follow is set.
const pollInterval = 2 * time.Second

var (
	cfgFile       string
	crashLogFile  string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	Config        cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "ntfsindex [flags]",
	Short: "Index an NTFS volume's file tree and optionally follow its change journal",
	Long: `ntfsindex scans an NTFS volume's Master File Table into an in-memory
          file-tree index and can then follow the volume's USN change journal
          to keep that index current without rescanning.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.ValidateConfig(&Config); err != nil {
			return err
		}
		return run(cmd)
	},
}

func run(cmd *cobra.Command) error {
	if err := logger.InitLogFile(Config.Logging); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logger.SetLogFormat(Config.Logging.Format)

	if raw, err := yaml.Marshal(&Config); err == nil {
		logger.Debugf("resolved config:\n%s", raw)
	}

	ctx := cmd.Context()
	opts := ntfsindex.Options{
		ReadMftSizes:  Config.ReadMftSizes,
		IncludeHidden: Config.IncludeHidden,
		IncludeSystem: Config.IncludeSystem,
		Parallelism:   Config.Parallelism,
	}

	logger.Infof("scanning %s", Config.Drive)
	result, err := ntfsindex.Scan(ctx, Config.Drive, opts)
	if err != nil && !errors.Is(err, ntfsindex.ErrScanCancelled) {
		return fmt.Errorf("scanning %s: %w", Config.Drive, err)
	}
	if errors.Is(err, ntfsindex.ErrScanCancelled) {
		logger.Warnf("scan of %s cancelled, index is partial", Config.Drive)
	}

	printSummary(result.Forest)

	if !Config.Follow {
		return nil
	}

	fl, err := ntfsindex.StartFollower(ctx, Config.Drive, result.Forest, result.Cursor, opts)
	if err != nil {
		return fmt.Errorf("starting follower on %s: %w", Config.Drive, err)
	}
	defer fl.Stop()

	return followUntilDone(ctx, fl)
}

func followUntilDone(ctx context.Context, fl *ntfsindex.FollowerHandle) error {
	err := fl.RunLoop(ctx, clock.RealClock{}, pollInterval, func(applied int) {
		logger.Infof("applied %d change-journal event(s)", applied)
	})
	if err != nil {
		if errors.Is(err, ntfsindex.ErrJournalReset) {
			return fmt.Errorf("%s: journal reset, a rescan is required", Config.Drive)
		}
		return fmt.Errorf("following %s: %w", Config.Drive, err)
	}
	return nil
}

func printSummary(f *ntfsindex.Forest) {
	view := f.Snapshot()
	fmt.Printf("%d entries indexed\n", f.Count())
	fmt.Println("largest files:")
	for _, e := range view.FindLargestFiles(10) {
		fmt.Printf("  %12d  %s\n", e.LogicalSize, e.Name)
	}
	fmt.Println("largest directories:")
	for _, e := range view.FindLargestDirs(10) {
		fmt.Printf("  %12d  %s\n", e.LogicalSize, e.Name)
	}
}

// Execute runs the root command; it is the sole entry point main calls.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&crashLogFile, "crash-log", "", "Path to append panic output to, on top of the normal stack trace on stderr")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

// CrashLogFile returns the path main should install a recover-based crash
// handler against, or "" if none was configured.
func CrashLogFile() string {
	return crashLogFile
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&Config)
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&Config)
}
