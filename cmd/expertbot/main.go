package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/higress-group/expertbot"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
	"github.com/higress-group/expertbot/metrics"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "expertbot",
		Short:         "Expert bot answering questions from a document knowledge base",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML or JSON config file")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env", []string{".env"}, "Env files loaded before the config")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(serveCmd(flags), askCmd(flags), mcpCmd(flags))
	return root
}

func setup(ctx context.Context, flags *globalFlags) (*expertbot.ExpertClient, *logger.Logger, error) {
	if err := config.LoadDotEnv(flags.envFiles...); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger failed, err: %w", err)
	}
	client, err := expertbot.NewExpertClient(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("%s %s ready, retriever=%s", cfg.App.Name, expertbot.Version, client.RetrieverType())
	return client, log, nil
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP entry point",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, log, err := setup(ctx, flags)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer client.Close()

			metrics.Register()
			app := client.Config().App
			srv := &http.Server{
				Addr:         app.Addr(),
				Handler:      expertbot.NewRouter(client, log),
				ReadTimeout:  time.Duration(app.ReadTimeoutMs) * time.Millisecond,
				WriteTimeout: time.Duration(app.WriteTimeoutMs) * time.Millisecond,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("listening on %s", app.Addr())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Infof("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(app.ShutdownTimeoutMs)*time.Millisecond)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func askCmd(flags *globalFlags) *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer client.Close()

			reply, err := client.Ask(cmd.Context(), args[0], alias)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Answer)
			if reply.Record != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "record: %s\n", reply.Record)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&alias, "alias", "a", "bss.vip", "Knowledge base alias")
	return cmd
}

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask-expert tool over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, log, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer client.Close()
			return server.ServeStdio(expertbot.NewMCPServer(client))
		},
	}
}
