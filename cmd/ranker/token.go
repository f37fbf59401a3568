package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rohankatakam/gitranker/internal/config"
	"github.com/rohankatakam/gitranker/internal/github"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage GitHub tokens in the OS keychain",
	Long: `Store the GitHub token pool in the OS keychain instead of plaintext
config. Tokens from GITHUB_TOKENS or the config file take precedence.`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [token...]",
	Short: "Store GitHub tokens",
	Long: `Store one or more GitHub tokens, replacing the stored pool.
Without arguments the tokens are read from stdin, comma or newline separated.

Examples:
  ranker token set ghp_aaa ghp_bbb
  pass show github/ranker | ranker token set`,
	RunE: runTokenSet,
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored GitHub tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km := config.NewKeyringManager(logger)
		if err := km.DeleteGitHubTokens(); err != nil {
			return err
		}
		success("GitHub tokens removed from keychain")
		return nil
	},
}

var tokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured tokens (masked)",
	Args:  cobra.NoArgs,
	RunE:  runTokenStatus,
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenClearCmd)
	tokenCmd.AddCommand(tokenStatusCmd)
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager(logger)
	if !km.IsAvailable() {
		return fmt.Errorf("OS keychain not available on this system; use GITHUB_TOKENS instead")
	}

	tokens := args
	if len(tokens) == 0 {
		var err error
		if tokens, err = readTokens(); err != nil {
			return err
		}
	}
	for _, t := range tokens {
		for _, tok := range config.SplitList(t) {
			if strings.ContainsAny(tok, " \t") {
				return fmt.Errorf("token %s contains whitespace", config.MaskSecret(tok))
			}
		}
	}

	if err := km.SetGitHubTokens(tokens); err != nil {
		return err
	}
	success("GitHub tokens saved to keychain")
	return nil
}

// readTokens prompts on a terminal without echo, otherwise reads stdin.
func readTokens() ([]string, error) {
	if isTerminal(os.Stdin) {
		fmt.Fprint(os.Stderr, "GitHub tokens (comma separated): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read tokens: %w", err)
		}
		return config.SplitList(string(raw)), nil
	}

	var tokens []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		tokens = append(tokens, config.SplitList(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tokens: %w", err)
	}
	return tokens, nil
}

func runTokenStatus(cmd *cobra.Command, args []string) error {
	if len(cfg.GitHub.Tokens) == 0 {
		printf("No GitHub tokens configured\n")
		return nil
	}
	pool, err := github.NewPool(cfg.GitHub.Tokens, cfg.GitHub.Threshold)
	if err != nil {
		return err
	}
	printf("%d tokens, rotation threshold %d\n", pool.Size(), cfg.GitHub.Threshold)
	for _, s := range pool.Status() {
		printf("  [%d] %s\n", s.Index, s.Token)
	}
	return nil
}
