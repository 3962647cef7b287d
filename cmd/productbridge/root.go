package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productbridge/productbridge/internal/app"
	"github.com/productbridge/productbridge/internal/config"
	"github.com/productbridge/productbridge/internal/logging"
	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/pipeline"
	"github.com/productbridge/productbridge/internal/validation"
)

// extractor is the part of the pipeline the CLI drives.
type extractor interface {
	ExtractText(ctx context.Context, raw string) (pipeline.Extraction, error)
	ExtractPDF(ctx context.Context, file validation.FileInput) (pipeline.Extraction, error)
	ExtractURL(ctx context.Context, rawURL string) (pipeline.Extraction, error)
}

// buildFunc constructs the pipeline; the returned func releases it.
type buildFunc func(ctx context.Context, verbose bool) (extractor, func(), error)

func buildPipeline(ctx context.Context, verbose bool) (extractor, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	// stdout carries the JSON document only
	logCfg := cfg.Logging
	logCfg.Format = "text"
	if !verbose {
		logCfg.Level = slog.LevelWarn
	}
	logger, err := logging.NewWithWriter(logCfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return a.Pipeline, a.Close, nil
}

func newRootCmd(build buildFunc) *cobra.Command {
	var verbose bool
	var pretty bool

	root := &cobra.Command{
		Use:           "productbridge",
		Short:         "Extract structured product content from text, PDFs and web pages",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "indent the JSON output")

	extract := &cobra.Command{
		Use:   "extract",
		Short: "Run an extraction and print the result",
	}

	run := func(cmd *cobra.Command, fn func(ctx context.Context, p extractor) (pipeline.Extraction, error)) error {
		p, release, err := build(cmd.Context(), verbose)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			return err
		}
		defer release()

		result, err := fn(cmd.Context(), p)
		if err != nil {
			return printError(cmd.ErrOrStderr(), err)
		}
		return printJSON(cmd.OutOrStdout(), result, pretty)
	}

	extract.AddCommand(&cobra.Command{
		Use:   "text [file]",
		Short: "Extract from a text file, or stdin when no file or '-' is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, p extractor) (pipeline.Extraction, error) {
				return p.ExtractText(ctx, text)
			})
		},
	})

	extract.AddCommand(&cobra.Command{
		Use:   "pdf <file>",
		Short: "Extract from a PDF datasheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readPDF(args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, p extractor) (pipeline.Extraction, error) {
				return p.ExtractPDF(ctx, file)
			})
		},
	})

	extract.AddCommand(&cobra.Command{
		Use:   "url <url>",
		Short: "Scrape a manufacturer product page and extract from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, p extractor) (pipeline.Extraction, error) {
				return p.ExtractURL(ctx, args[0])
			})
		},
	})

	root.AddCommand(extract)
	return root
}

func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func readPDF(path string) (validation.FileInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return validation.FileInput{}, fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := ""
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		mimeType = "application/pdf"
	}
	return validation.FileInput{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

func printJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// printError writes a user error as JSON to w and returns it.
func printError(w io.Writer, err error) error {
	var ue *models.UserError
	if !errors.As(err, &ue) {
		fmt.Fprintf(w, "error: %v\n", err)
		return err
	}
	_ = printJSON(w, map[string]any{"error": ue}, true)
	return ue
}
