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

// Package cfg binds the indexer's command-line flags to a Config struct
// through spf13/pflag and spf13/viper, with an optional YAML config file
// layered underneath the flags. Config.IncludeHidden/IncludeSystem/
// ReadMftSizes/Parallelism map 1:1 to internal/scan's Options, and
// Config.Drive names the volume to scan;
// Config.Logging configures the logging stack every package in this
// repository calls into through internal/logger.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for one invocation of the
// indexer: which volume to scan, how to scan it, and how to log.
type Config struct {
	Drive         string `yaml:"drive"`
	ReadMftSizes  bool   `yaml:"read-mft-sizes"`
	IncludeHidden bool   `yaml:"include-hidden"`
	IncludeSystem bool   `yaml:"include-system"`
	Parallelism   int    `yaml:"parallelism"`
	Follow        bool   `yaml:"follow"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig selects the indexer's log destination, format, and
// severity threshold.
type LoggingConfig struct {
	Severity string `yaml:"severity"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file-path"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig configures lumberjack-backed rotation of
// LoggingConfig.FilePath, used when a follower is left running
// unattended for long enough to need it.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// BindFlags registers every flag this program accepts on flagSet and
// binds each one into viper under the dotted key its Config field
// unmarshals from.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("drive", "d", "", "Drive letter of the NTFS volume to scan, e.g. \"C:\".")
	if err = viper.BindPFlag("drive", flagSet.Lookup("drive")); err != nil {
		return err
	}

	flagSet.Bool("read-mft-sizes", true, "Read each file's MFT record for its size and timestamps (the \"full\" scan path).")
	if err = viper.BindPFlag("read-mft-sizes", flagSet.Lookup("read-mft-sizes")); err != nil {
		return err
	}

	flagSet.Bool("include-hidden", true, "Include files and directories with the hidden attribute.")
	if err = viper.BindPFlag("include-hidden", flagSet.Lookup("include-hidden")); err != nil {
		return err
	}

	flagSet.Bool("include-system", true, "Include files and directories with the system attribute.")
	if err = viper.BindPFlag("include-system", flagSet.Lookup("include-system")); err != nil {
		return err
	}

	flagSet.Int("parallelism", DefaultParallelism(), "Number of MFT-reader worker goroutines in the scan's full path.")
	if err = viper.BindPFlag("parallelism", flagSet.Lookup("parallelism")); err != nil {
		return err
	}

	flagSet.Bool("follow", false, "After the initial scan, keep applying change-journal events until interrupted.")
	if err = viper.BindPFlag("follow", flagSet.Lookup("follow")); err != nil {
		return err
	}

	flagSet.String("log-severity", INFO, "Minimum severity logged: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-format", FormatText, "Log output format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to a log file; empty logs to stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.Int("log-max-file-size-mb", DefaultLogRotateMaxFileSizeMb, "Rotate the log file once it exceeds this size.")
	if err = viper.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-max-file-size-mb")); err != nil {
		return err
	}

	flagSet.Int("log-backup-file-count", DefaultLogRotateBackupFileCount, "Number of rotated log backups to retain.")
	if err = viper.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-backup-file-count")); err != nil {
		return err
	}

	flagSet.Bool("log-compress", true, "Gzip-compress rotated log backups.")
	if err = viper.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-compress")); err != nil {
		return err
	}

	return nil
}
