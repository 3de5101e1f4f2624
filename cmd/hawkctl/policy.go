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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bharat-parihar/ARC-Hawk/masking"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage masking policies",
	}
	cmd.AddCommand(policyValidateCmd())
	cmd.AddCommand(policyPresetCmd())
	return cmd
}

func policyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := masking.LoadPolicy(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ Policy %q is valid\n", p.Name)
			fmt.Fprintf(out, "   Mode: %s\n", p.Mode)
			fmt.Fprintf(out, "   Default strategy: %s\n", p.DefaultStrategy)
			if len(p.ExcludedAssets) > 0 {
				fmt.Fprintf(out, "   Excluded assets: %s\n", strings.Join(p.ExcludedAssets, ", "))
			}
			if len(p.ExcludedPIITypes) > 0 {
				fmt.Fprintf(out, "   Excluded PII types: %s\n", strings.Join(p.ExcludedPIITypes, ", "))
			}
			return nil
		},
	}
}

func policyPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Built-in policy presets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range masking.PresetNames() {
				p, err := masking.Preset(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", name, p.Description)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "export <name> <file>",
		Short: "Write a preset to a YAML or JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := masking.Preset(args[0])
			if err != nil {
				return err
			}
			if err := p.Save(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported preset %q to %s\n", args[0], args[1])
			return nil
		},
	})
	return cmd
}
