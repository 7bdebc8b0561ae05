package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/egrn-tools/internal/api"
	"github.com/nexconsult/egrn-tools/internal/bot"
	"github.com/nexconsult/egrn-tools/internal/captcha"
	"github.com/nexconsult/egrn-tools/internal/config"
	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/nexconsult/egrn-tools/internal/queue"
	"github.com/nexconsult/egrn-tools/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const ledgerTTL = 30 * 24 * time.Hour

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		region     string
		headless   bool
		statusAddr string
	)

	cmd := &cobra.Command{
		Use:   "egrn-bot <accessKey> <captchaClientId> [listFilePath]",
		Short: "Submit EGRN extract requests for every object in a list file",
		Long: `Submits one extract request per cadastral object through the registry portal,
solving the captcha of each request with anti-captcha.

Objects are taken from the end of the list file, which is rewritten after each
object so an interrupted run resumes where it stopped. Outcomes are appended to
result-<list file name> next to the list.`,
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if len(args) > 0 {
				cfg.Bot.AccessKey = args[0]
			}
			if len(args) > 1 {
				cfg.Captcha.ClientKey = args[1]
			}
			if len(args) > 2 {
				cfg.Bot.ListFile = args[2]
			}
			if cmd.Flags().Changed("region") {
				cfg.Bot.Region = region
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if cmd.Flags().Changed("status-addr") {
				cfg.Status.Addr = statusAddr
			}

			if cfg.Bot.AccessKey == "" || cfg.Captcha.ClientKey == "" {
				printUsage(cmd, cfg)
				return errUsage
			}
			if err := cfg.ValidateBot(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "region typed into the search form (env EGRN_REGION)")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window (env BROWSER_HEADLESS)")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve run status over HTTP on this address (env STATUS_ADDR)")
	return cmd
}

func printUsage(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Usage: egrn-bot <accessKey> <captchaClientId> [listFilePath]")
	if cfg.Bot.AccessKey == "" {
		fmt.Fprintln(out, "Get access key at https://lk.rosreestr.ru/#/my_keys")
	}
	if cfg.Captcha.ClientKey == "" {
		fmt.Fprintln(out, "Get anticaptcha client id at https://anti-captcha.com")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	q, err := queue.Load(cfg.Bot.ListFile)
	if err != nil {
		return err
	}
	sink := queue.NewResultSink(queue.ResultPath(cfg.Bot.ListFile))

	log.WithFields(logrus.Fields{
		"list":    q.Path(),
		"result":  sink.Path(),
		"objects": q.Len(),
		"region":  cfg.Bot.Region,
	}).Info("Starting EGRN request bot...")

	redisClient := services.NewRedisClient(cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}
	ledger := services.NewLedger(redisClient, ledgerTTL, log)

	browser, err := services.NewChromeBrowser(cfg.Browser, log)
	if err != nil {
		return err
	}
	defer browser.Close()

	client := captcha.NewAntiCaptchaClient(cfg.Captcha.ClientKey, captcha.ClientOptions{
		BaseURL:     cfg.Captcha.BaseURL,
		HTTPTimeout: cfg.Captcha.HTTPTimeout,
	}, log)
	solver := captcha.NewSolver(client, captcha.SolverConfig{
		MinBalance:   cfg.Captcha.MinBalance,
		PollInterval: cfg.Captcha.PollInterval,
		PollTimeout:  cfg.Captcha.PollTimeout,
		EmptyOnError: cfg.Captcha.EmptyOnError,
	}, log)

	session := services.NewSession(browser, solver, services.NewSessionConfig(cfg), log)
	runner := bot.NewRunner(q, sink, session, ledger, cfg.Bot.RequestInterval, log)

	if cfg.Status.Addr != "" {
		if log.GetLevel() < logrus.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}
		server := api.NewServer(cfg.Status.Addr, runner, ledger, log)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Errorf("Status server forced to shutdown: %v", err)
			}
		}()
	}

	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithField("remaining", q.Len()).Warn("Interrupted, queue saved")
			return nil
		}
		return err
	}

	stats := client.GetStats()
	log.WithFields(logrus.Fields{
		"captcha_requests": stats.TotalRequests,
		"captcha_failures": stats.FailedRequests,
	}).Debug("Captcha client statistics")
	return nil
}
