// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

var installHints = map[string]string{
	"bash":       "rosterbot completion bash > /etc/bash_completion.d/rosterbot",
	"zsh":        "rosterbot completion zsh > ~/.zsh/completions/_rosterbot",
	"fish":       "rosterbot completion fish > ~/.config/fish/completions/rosterbot.fish",
	"powershell": "rosterbot completion powershell >> $PROFILE",
}

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for rosterbot.

Install instructions:
  Bash:       rosterbot completion bash > /etc/bash_completion.d/rosterbot
  Zsh:        rosterbot completion zsh > ~/.zsh/completions/_rosterbot
  Fish:       rosterbot completion fish > ~/.config/fish/completions/rosterbot.fish
  PowerShell: rosterbot completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hint, ok := installHints[args[0]]
			if !ok {
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# rosterbot %s completion\n# Install: %s\n\n", args[0], hint)

			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			default:
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}
