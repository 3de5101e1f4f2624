// Copyright 2025 AxonFlow
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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/config"
	"github.com/bharat-parihar/ARC-Hawk/connectors/registry"
	"github.com/bharat-parihar/ARC-Hawk/masking"
	"github.com/bharat-parihar/ARC-Hawk/orchestrator"
	"github.com/bharat-parihar/ARC-Hawk/shared/logger"
)

type policyFlags struct {
	file   string
	preset string
}

func (f *policyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "policy", "p", "", "Policy file (YAML or JSON)")
	cmd.Flags().StringVar(&f.preset, "preset", "default", "Policy preset when no file is given")
}

// load returns the policy with its secret reference resolved from the
// environment.
func (f *policyFlags) load(cmd *cobra.Command) (*masking.Policy, error) {
	var (
		p   *masking.Policy
		err error
	)
	if f.file != "" {
		p, err = masking.LoadPolicy(f.file)
	} else {
		p, err = masking.Preset(f.preset)
	}
	if err != nil {
		return nil, err
	}
	if err := p.ResolveSecret(cmd.Context(), config.NewResolver()); err != nil {
		return nil, err
	}
	return p, nil
}

func maskCmd() *cobra.Command {
	var (
		piiType  string
		strategy string
		policy   policyFlags
	)
	cmd := &cobra.Command{
		Use:   "mask <value>",
		Short: "Mask one value",
		Long: `Mask applies --strategy, or the strategy the policy assigns to --type, to a
single value and prints the result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := policy.load(cmd)
			if err != nil {
				return err
			}
			var m masking.Masker
			if strategy != "" {
				m, err = masking.NewStrategy(strategy, p.SecretKey)
			} else {
				m, err = p.Masker()
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.Mask(args[0], piiType))
			return nil
		},
	}
	cmd.Flags().StringVarP(&piiType, "type", "t", "", "PII type of the value")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "REDACT, PARTIAL, TOKENIZE or FPE")
	policy.register(cmd)
	return cmd
}

func runCmd() *cobra.Command {
	var (
		backupDir string
		confirm   bool
		dryRun    bool
		workers   int
		policy    policyFlags
	)
	cmd := &cobra.Command{
		Use:   "run <targets.json>",
		Short: "Mask findings in local files",
		Long: `Run reads a JSON array of targets ({"location", "findings"}) and masks them
through the built-in filesystem adapter under the policy. Every file is backed up
first; the run report is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := policy.load(cmd)
			if err != nil {
				return err
			}
			if dryRun {
				p.Mode = masking.ModeDryRun
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var targets []orchestrator.Target
			if err := json.Unmarshal(data, &targets); err != nil {
				return fmt.Errorf("failed to parse targets: %w", err)
			}
			for i := range targets {
				targets[i].Adapter = "local"
			}

			reg := registry.NewRegistry(nil)
			defer reg.DisconnectAll(cmd.Context())
			if err := reg.Register(cmd.Context(), &base.AdapterConfig{
				Name:          "local",
				Type:          "filesystem",
				BackupEnabled: true,
				Options:       map[string]interface{}{"backup_dir": backupDir},
			}); err != nil {
				return err
			}

			l := logger.New("hawkctl")
			l.SetOutput(cmd.ErrOrStderr())
			orch, err := orchestrator.New(reg, p,
				orchestrator.WithWorkers(workers),
				orchestrator.WithLogger(l),
			)
			if err != nil {
				return err
			}
			run, err := orch.Run(cmd.Context(), orchestrator.Request{
				RequestedBy: "hawkctl",
				Confirmed:   confirm,
				Targets:     targets,
			})
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), run); err != nil {
				return err
			}
			if run.Status != orchestrator.RunCompleted {
				return fmt.Errorf("masking run %s", run.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backupDir, "backup-dir", ".hawk-backups", "Directory for file backups")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the run when the policy requires it")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be masked without writing")
	cmd.Flags().IntVarP(&workers, "workers", "w", orchestrator.DefaultWorkers, "Files masked concurrently")
	policy.register(cmd)
	return cmd
}
