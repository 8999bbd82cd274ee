package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/faceroll/internal/config"
	"github.com/andresmejia3/faceroll/internal/gallery"
	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/store"
	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/andresmejia3/faceroll/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// Cfg is the loaded configuration shared by subcommands
	Cfg *config.Config
	// Gallery is the face gallery, loaded before every subcommand runs
	Gallery *gallery.Gallery
	// DB is set when the postgres backend is in use
	DB *store.Store
	// Log is the structured diagnostics logger
	Log *slog.Logger

	configPath  string
	galleryPath string
	dbURL       string
	verbose     bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "faceroll",
	Short:   "Face enrollment and live recognition",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if galleryPath != "" {
			Cfg.Gallery.Backend = "file"
			Cfg.Gallery.Path = galleryPath
		}
		if dbURL != "" {
			Cfg.Gallery.Backend = "postgres"
			Cfg.Gallery.DatabaseURL = dbURL
		}
		if verbose {
			Cfg.Log.Level = "debug"
		}
		if err := Cfg.Validate(); err != nil {
			return err
		}

		Log = utils.NewLogger(Cfg.Log.Level, Cfg.Log.Format)
		slog.SetDefault(Log)

		return openGallery(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Background: the command context may already be cancelled by Ctrl+C
			DB.Close(context.Background())
		}
	},
}

// openGallery picks the storage backend and loads the gallery. A corrupt
// gallery is reported and replaced by an empty one.
func openGallery(ctx context.Context) error {
	var storage gallery.Storage
	switch Cfg.Gallery.Backend {
	case "postgres":
		var err error
		DB, err = store.New(ctx, Cfg.Gallery.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		storage = DB
	default:
		storage = gallery.NewFileStorage(Cfg.Gallery.Path)
	}

	Gallery = gallery.New(storage,
		gallery.WithMatcher(matcher.New(Cfg.Matching.Threshold)),
		gallery.WithLogger(Log),
	)
	if err := Gallery.Load(ctx); err != nil {
		if !types.IsStorage(err) {
			return err
		}
		utils.ShowError("Could not load the face gallery, starting empty", err, nil)
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (default: faceroll.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&galleryPath, "gallery", "", "Gallery file (overrides config, forces the file backend)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (forces the postgres backend)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
