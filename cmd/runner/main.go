// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// runner translates a RISC-V ELF binary to WebAssembly text and executes
// it to completion, forwarding the guest's exit status.
//
//	runner --argv=a,hello,world --env=A=B PATH_TO_RISCV_BINARY
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/optimizer"
	"github.com/Multi-V-VM/DoubleJIT-VM/internal/rvruntime"
)

var (
	argvFlag     string
	envFlag      string
	optimizeFlag string
	printWAT     bool
	maxInstr     int64
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runner <path-to-elf>",
		Short: "Translate and run a RISC-V ELF binary under WebAssembly",
		Args:  cobra.ExactArgs(1),
		RunE:  runCmd,
	}
	cmd.Flags().StringVar(&argvFlag, "argv", "", "Comma-separated arguments passed to the guest after argv[0], which is always the binary path")
	cmd.Flags().StringVar(&envFlag, "env", "", "Comma-separated KEY=VALUE environment entries passed to the guest")
	cmd.Flags().StringVar(&optimizeFlag, "optimize-level", "moderate", "WAT optimizer level: none|basic|moderate|aggressive")
	cmd.Flags().BoolVar(&printWAT, "print-wat", false, "Dump the generated WAT to stderr before compiling")
	cmd.Flags().Int64Var(&maxInstr, "max-instructions", 0, "Abort after this many guest instructions (0 means unlimited)")
	return cmd
}

func runCmd(cmd *cobra.Command, args []string) error {
	elfPath := args[0]

	level, err := parseOptimizeLevel(optimizeFlag)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("runner: build logger: %w", err)
	}
	defer log.Sync()

	argv := append([]string{elfPath}, splitNonEmpty(argvFlag)...)
	envp := splitNonEmpty(envFlag)

	opts := rvruntime.Options{
		Argv:            argv,
		Envp:            envp,
		OptimizerLevel:  level,
		PrintWAT:        printWAT || os.Getenv("PRINT_WAT") == "1",
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Log:             log,
		UID:             uint64(os.Getuid()),
		GID:             uint64(os.Getgid()),
		MaxInstructions: uint64(maxInstr),
	}

	result, err := rvruntime.Run(cmd.Context(), elfPath, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runner: %v\n", err)
		os.Exit(1)
	}

	log.Info("guest finished",
		zap.Int32("exit_code", result.ExitCode),
		zap.Uint64("instr_count", result.InstrCount),
		zap.Int("optimizer_passes_applied", result.Stats.Total()),
	)

	os.Exit(int(result.ExitCode))
	return nil
}

func parseOptimizeLevel(s string) (optimizer.Level, error) {
	switch strings.ToLower(s) {
	case "none":
		return optimizer.None, nil
	case "basic":
		return optimizer.Basic, nil
	case "moderate", "":
		return optimizer.Moderate, nil
	case "aggressive":
		return optimizer.Aggressive, nil
	default:
		return 0, fmt.Errorf("runner: unknown --optimize-level %q", s)
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
