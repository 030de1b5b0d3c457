// xinici 是一次性邮箱的命令行客户端。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/logger"
	"xinicimail/backend/internal/provider"
)

var version = "dev"

func main() {
	var (
		verbose  bool
		resolver *provider.Resolver
		cfg      *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "xinici",
		Short:         "Disposable mailbox client",
		Long:          "xinici creates disposable addresses and reads their inboxes from the public service or a self-hosted backend.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			log := zap.NewNop()
			if verbose {
				log = logger.NewDevelopmentLogger()
			}
			resolver = provider.NewResolver(cfg.Client, nil, log)
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log provider status changes to stderr")

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a random address",
		Long: `Generate a random 8-character address.

Examples:
  xinici new
  xinici new --domain 1secmail.net`,
		RunE: func(cmd *cobra.Command, args []string) error {
			domainName, _ := cmd.Flags().GetString("domain")
			if domainName == "" {
				domains := resolver.Domains()
				if len(domains) == 0 {
					return fmt.Errorf("%w: no domains configured", domain.ErrInvalidIdentity)
				}
				domainName = domains[0]
			}
			if _, err := resolver.For(domainName); err != nil {
				return err
			}
			id, err := provider.NewAddress(domainName)
			if err != nil {
				return err
			}
			fmt.Println(boldStyle.Render(id.Address()))
			return nil
		},
	}
	newCmd.Flags().StringP("domain", "d", "", "Domain for the new address (default: first configured domain)")
	rootCmd.AddCommand(newCmd)

	domainsCmd := &cobra.Command{
		Use:   "domains",
		Short: "List available domains",
		Run: func(cmd *cobra.Command, args []string) {
			for _, d := range resolver.Domains() {
				if d == resolver.CustomDomain() {
					fmt.Printf("%s %s\n", d, dimStyle.Render("(self-hosted)"))
					continue
				}
				fmt.Println(d)
			}
		},
	}
	rootCmd.AddCommand(domainsCmd)

	inboxCmd := &cobra.Command{
		Use:   "inbox <address>",
		Short: "List messages in a mailbox",
		Long: `List messages in a mailbox, newest first.

Examples:
  xinici inbox abc12345@1secmail.com
  xinici inbox abc12345@your-domain.com --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			outputJSON, _ := cmd.Flags().GetBool("json")

			id, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !watch {
				messages, err := resolver.ListMessages(ctx, id)
				if err != nil {
					return err
				}
				if outputJSON {
					return printJSON(messages)
				}
				fmt.Print(renderInbox(messages))
				return nil
			}
			return watchInbox(ctx, resolver, id, cfg.Client)
		},
	}
	inboxCmd.Flags().BoolP("watch", "w", false, "Keep polling and print new messages as they arrive")
	inboxCmd.Flags().Bool("json", false, "Output in JSON format")
	rootCmd.AddCommand(inboxCmd)

	readCmd := &cobra.Command{
		Use:   "read <address> <id>",
		Short: "Show a single message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("json")

			id, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			msg, err := resolver.ReadMessage(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(msg)
			}
			fmt.Print(renderMessage(msg))
			return nil
		},
	}
	readCmd.Flags().Bool("json", false, "Output in JSON format")
	rootCmd.AddCommand(readCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the self-hosted backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("json")

			ctx, cancel := context.WithTimeout(cmd.Context(), provider.DefaultTimeout)
			defer cancel()

			status, err := resolver.Probe(ctx)
			if err != nil {
				status = &domain.ServerStatus{Status: domain.StatusOffline}
			}
			if outputJSON {
				return printJSON(status)
			}
			fmt.Print(renderStatus(cfg.Client.SelfHostedURL, status, err))
			return nil
		},
	}
	statusCmd.Flags().Bool("json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(exitCode(err))
	}
}

// watchInbox 按轮询间隔刷新收件箱，只打印新到的邮件。
func watchInbox(ctx context.Context, resolver *provider.Resolver, id domain.MailboxIdentity, cfg config.ClientConfig) error {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	if id.Domain == resolver.CustomDomain() {
		go resolver.WatchStatus(ctx, cfg.StatusInterval)
	}

	fmt.Println(dimStyle.Render(fmt.Sprintf("Watching %s every %s (Ctrl+C to stop)", id.Address(), interval)))

	seen := make(map[string]struct{})
	poll := func() {
		messages, err := resolver.ListMessages(ctx, id)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
			}
			return
		}
		// 列表最新在前，倒序打印保证时间顺序
		for i := len(messages) - 1; i >= 0; i-- {
			m := messages[i]
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			fmt.Println(renderSummary(m))
		}
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
