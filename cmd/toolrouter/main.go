// Package main provides the toolrouter CLI: catalog listing, one-shot
// tool calls and an interactive chat session.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/effective-security/toolrouter/agent"
	aopenai "github.com/effective-security/toolrouter/agent/openai"
	"github.com/effective-security/toolrouter/config"
	"github.com/effective-security/toolrouter/router"
	"github.com/effective-security/toolrouter/tools"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "toolrouter",
		Short: "Route tool calls from a chat agent to local and remote tool backends",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "cfg", "c", "toolrouter.yaml", "configuration file")
	rootCmd.AddCommand(toolsCmd(), callCmd(), chatCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "toolrouter:", err)
		os.Exit(1)
	}
}

// open loads the config, connects every transport and builds the
// catalog. The caller owns the returned router.
func open(ctx context.Context) (*router.Router, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	r, err := router.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := r.Start(ctx); err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}

func toolsCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the merged tool catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, _, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			descriptors := r.Catalog().Descriptors()
			if asYAML {
				return yaml.NewEncoder(cmd.OutOrStdout()).Encode(descriptors)
			}
			for _, d := range descriptors {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-10s %s\n", d.Name, d.TransportID, d.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print descriptors as YAML, including schemas")
	return cmd
}

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [arguments-json]",
		Short: "Call a single tool and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var callArgs map[string]any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
					return errors.WithMessage(err, "invalid arguments JSON")
				}
			}

			r, _, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			res := r.Dispatch(cmd.Context(), tools.NewCallRequest(args[0], callArgs))
			if res.IsError() {
				return errors.Newf("%s: %s", res.ErrorKind, res.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(res.Content))
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with tool use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, cfg, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			model := aopenai.New(aopenai.Config{
				Model:   cfg.Model.Model,
				APIKey:  cfg.Model.APIKey,
				BaseURL: cfg.Model.BaseURL,
			})
			a := agent.New(model, r).
				WithSystemPrompt(cfg.Model.SystemPrompt).
				WithMaxTurns(cfg.Model.MaxTurns)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connected, %d tools available; type 'exit' to quit\n", r.Catalog().Len())

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "exit" || input == "quit" {
					return nil
				}

				answer, err := a.Chat(cmd.Context(), input)
				if err != nil {
					fmt.Fprintln(out, "error:", err)
					continue
				}
				fmt.Fprintln(out, answer)
			}
		},
	}
}
