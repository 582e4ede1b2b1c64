package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heirloomhq/heirloom/internal/app"
	"github.com/heirloomhq/heirloom/internal/chunker"
	"github.com/heirloomhq/heirloom/internal/config"
	"github.com/heirloomhq/heirloom/internal/ingest"
	"github.com/heirloomhq/heirloom/internal/tier"
)

var ingestFlags struct {
	portrait     string
	file         string
	title        string
	sourceType   string
	sourceDate   string
	minTier      string
	maxChunkSize int
	overlap      int
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a document into a portrait's knowledge base",
	Long: `Ingest chunks a document, embeds every chunk, and stores the results
for retrieval. The document becomes visible to viewers at or above the
given access tier.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context())
	},
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.portrait, "portrait", "", "Portrait ID (required)")
	f.StringVar(&ingestFlags.file, "file", "", "Path to the document to ingest (required)")
	f.StringVar(&ingestFlags.title, "title", "", "Source title shown in citations")
	f.StringVar(&ingestFlags.sourceType, "type", "", "Source type (journal, letter, interview, ...)")
	f.StringVar(&ingestFlags.sourceDate, "source-date", "", "Source date (YYYY-MM-DD)")
	f.StringVar(&ingestFlags.minTier, "tier", "public", "Minimum viewer tier (public, acquaintance, colleague, family)")
	f.IntVar(&ingestFlags.maxChunkSize, "max-chunk-size", 0, "Override chunk size in characters")
	f.IntVar(&ingestFlags.overlap, "overlap", -1, "Override chunk overlap in characters")
	_ = ingestCmd.MarkFlagRequired("portrait")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context) error {
	req, err := buildIngestRequest()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	res, err := a.Ingestor.Ingest(ctx, *req)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", ingestFlags.file, err)
	}

	fmt.Printf("Ingested %s: %d chunks created\n", ingestFlags.file, res.ChunksCreated)
	return nil
}

// buildIngestRequest validates flags and reads the document before any
// expensive setup work.
func buildIngestRequest() (*ingest.Request, error) {
	portraitID, err := uuid.Parse(ingestFlags.portrait)
	if err != nil {
		return nil, fmt.Errorf("invalid --portrait %q: %w", ingestFlags.portrait, err)
	}

	minTier, err := tier.Parse(ingestFlags.minTier)
	if err != nil {
		return nil, fmt.Errorf("invalid --tier: %w", err)
	}

	var sourceDate time.Time
	if ingestFlags.sourceDate != "" {
		sourceDate, err = time.Parse("2006-01-02", ingestFlags.sourceDate)
		if err != nil {
			return nil, fmt.Errorf("invalid --source-date %q: expected YYYY-MM-DD", ingestFlags.sourceDate)
		}
	}

	content, err := os.ReadFile(ingestFlags.file)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var chunkOpts *chunker.Options
	if ingestFlags.maxChunkSize > 0 || ingestFlags.overlap >= 0 {
		opts := chunker.DefaultOptions()
		if ingestFlags.maxChunkSize > 0 {
			opts.MaxChunkSize = ingestFlags.maxChunkSize
		}
		if ingestFlags.overlap >= 0 {
			opts.Overlap = ingestFlags.overlap
		}
		chunkOpts = &opts
	}

	return &ingest.Request{
		PortraitID:   portraitID,
		Content:      string(content),
		SourceTitle:  ingestFlags.title,
		SourceType:   ingestFlags.sourceType,
		SourceDate:   sourceDate,
		MinTier:      minTier,
		ChunkOptions: chunkOpts,
	}, nil
}
