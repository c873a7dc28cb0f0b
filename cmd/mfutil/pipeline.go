package main

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/config"
	"github.com/mfutil/mfutil-go/internal/coverart"
	"github.com/mfutil/mfutil-go/internal/disc"
	"github.com/mfutil/mfutil-go/internal/encoder"
	"github.com/mfutil/mfutil-go/internal/importer"
	"github.com/mfutil/mfutil-go/internal/metadata"
	"github.com/mfutil/mfutil-go/internal/musicbrainz"
	"github.com/mfutil/mfutil-go/internal/network"
	"github.com/mfutil/mfutil-go/internal/rip"
	"github.com/mfutil/mfutil-go/internal/store"
)

// buildOrchestrator wires an import pipeline from configuration. db may be
// nil when the history store is disabled.
func buildOrchestrator(cfg *config.Config, drive disc.Drive, db *sql.DB, logger *zap.Logger) *importer.Orchestrator {
	clientCfg := network.DefaultClientConfig()
	clientCfg.Timeout = time.Duration(cfg.Network.Timeout) * time.Second
	clientCfg.UserAgent = cfg.MusicBrainz.UserAgent
	httpClient := network.NewClient(clientCfg)

	oc := importer.Config{
		Drive:   drive,
		Ripper:  rip.NewRipper(cfg.Import.ProgressInterval, logger),
		Encoder: encoder.New(cfg.Import.BlockSize, logger),
		Tagger:  metadata.NewTagWriter("mfutil " + version),
		Options: importer.Options{
			TrackTimeout:     time.Duration(cfg.Import.TrackTimeout) * time.Second,
			FileExtension:    cfg.Import.FileExtension,
			EmbedCoverArt:    cfg.Import.EmbedCoverArt,
			SaveCoverArtFile: cfg.Import.SaveCoverArtFile,
			LockDir:          cfg.Import.LockDir,
			OpenRetries:      cfg.Import.OpenRetries,
		},
		Logger: logger,
	}

	if cfg.MusicBrainz.Enabled {
		client := musicbrainz.NewClient(httpClient, musicbrainz.ClientOptions{
			BaseURL:        cfg.MusicBrainz.BaseURL,
			UserAgent:      cfg.MusicBrainz.UserAgent,
			RequestsPerSec: cfg.MusicBrainz.RequestsPerSec,
			MaxRetries:     cfg.Network.MaxRetries,
			Logger:         logger,
		})

		var strategies []musicbrainz.Strategy
		if cfg.MusicBrainz.UseReleaseCache && db != nil {
			strategies = append(strategies, musicbrainz.NewCacheStrategy(store.NewReleaseCache(db)))
		}
		strategies = append(strategies, musicbrainz.NewDiscIDStrategy(client))
		if cfg.MusicBrainz.SearchFallback {
			strategies = append(strategies, musicbrainz.NewSearchStrategy(client))
		}
		oc.Releases = musicbrainz.NewResolver(logger, strategies...)
	}

	if cfg.CoverArt.Enabled {
		cache, err := coverart.NewCache(cfg.CoverArt.CacheDir)
		if err != nil {
			logger.Warn("cover art cache disabled", zap.Error(err))
		}

		var sources []coverart.Source
		if cfg.CoverArt.ArchiveURL != "" {
			sources = append(sources, coverart.NewArchiveSource(cfg.CoverArt.ArchiveURL, httpClient))
		}
		if cfg.CoverArt.AudioDBURL != "" {
			sources = append(sources, coverart.NewAudioDBSource(cfg.CoverArt.AudioDBURL, httpClient))
		}
		oc.Covers = coverart.NewResolver(sources, cache, cfg.CoverArt.MaxSize, logger)
	}

	if db != nil {
		oc.History = store.NewHistoryStore(db)
	}

	return importer.New(oc)
}
