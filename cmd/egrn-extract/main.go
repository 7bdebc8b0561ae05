package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexconsult/egrn-tools/internal/archive"
	"github.com/nexconsult/egrn-tools/internal/config"
	"github.com/nexconsult/egrn-tools/internal/extract"
	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/nexconsult/egrn-tools/internal/realty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

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
		concurrency int
		extension   string
		command     string
		xmlDir      string
	)

	cmd := &cobra.Command{
		Use:   "egrn-extract <archivesDirectory> [destinationDirectory]",
		Short: "Tabulate EGRN extract archives into result.csv",
		Long: `Finds every extract archive below archivesDirectory, unpacks the XML document
wrapped in each, and writes one row per premises to
<destinationDirectory>/result.csv sorted by on-plan number.`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if len(args) > 0 {
				cfg.Extract.ArchivesDir = args[0]
			}
			if len(args) > 1 {
				cfg.Extract.DestDir = args[1]
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Extract.Concurrency = concurrency
			}
			if cmd.Flags().Changed("ext") {
				cfg.Extract.Extension = extension
			}
			if cmd.Flags().Changed("command") {
				cfg.Extract.Command = command
			}
			if cmd.Flags().Changed("xml-dir") {
				cfg.Extract.XMLDir = xmlDir
			}

			if cfg.Extract.ArchivesDir == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Usage: egrn-extract <archivesDirectory> [destinationDirectory]")
				return errUsage
			}
			if err := cfg.ValidateExtract(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "archives processed at once (env EXTRACT_CONCURRENCY)")
	cmd.Flags().StringVar(&extension, "ext", "", "archive file extension (env EXTRACT_EXTENSION)")
	cmd.Flags().StringVar(&command, "command", "", "decompression command with {archive} and {dest} (env EXTRACT_COMMAND)")
	cmd.Flags().StringVar(&xmlDir, "xml-dir", "", "directory receiving unpacked XML documents (env EXTRACT_XML_DIR)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	xmlDir := cfg.Extract.XMLDir
	if xmlDir == "" {
		xmlDir = cfg.Extract.DestDir
	}

	decompressor, err := archive.NewCommandDecompressor(cfg.Extract.Command, log)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"archives":    cfg.Extract.ArchivesDir,
		"destination": cfg.Extract.DestDir,
		"xml_dir":     xmlDir,
		"concurrency": cfg.Extract.Concurrency,
	}).Info("Starting archive extraction...")

	pipeline := extract.NewPipeline(
		archive.NewWalker(log),
		archive.NewUnarchiver(decompressor, xmlDir, log),
		realty.NewExtractor(log),
		extract.Options{
			ArchivesDir: cfg.Extract.ArchivesDir,
			DestDir:     cfg.Extract.DestDir,
			Extension:   cfg.Extract.Extension,
			Concurrency: cfg.Extract.Concurrency,
		},
		log,
	)

	if _, err := pipeline.Run(ctx); err != nil {
		return err
	}
	return nil
}
