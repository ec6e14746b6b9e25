package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stratamem/strata/internal/embedding"
	"github.com/stratamem/strata/internal/horizon"
	"github.com/stratamem/strata/internal/lifecycle"
	"github.com/stratamem/strata/internal/llm"
	"github.com/stratamem/strata/internal/memory"
	"github.com/stratamem/strata/internal/server"
	"github.com/stratamem/strata/internal/store"
	"github.com/stratamem/strata/internal/tagembed"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the maintenance scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	emb := buildEmbedder(cmd.Context(), st)
	var tags *tagembed.Manager
	if emb != nil {
		tags = tagembed.New(st, emb)
	}

	maintainer := lifecycle.New(st, cfg.Lifecycle.Policy)

	var predictor *horizon.Predictor
	if client, err := llm.NewClient(cfg.LLM); err != nil {
		warnf("LLM not configured (%v), horizon prediction disabled", err)
	} else {
		predictor = horizon.New(st, client)
		log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("llm configured")
	}

	// Scheduled maintenance: full lifecycle pass, tag catch-up, horizon
	// annotation of the fresh tiers.
	var sched *cron.Cron
	if cfg.Lifecycle.Schedule != "" {
		sched = cron.New()
		_, err := sched.AddFunc(cfg.Lifecycle.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			if _, err := maintainer.RunAll(ctx); err != nil {
				log.Error().Err(err).Msg("scheduled maintenance failed")
			}
			if tags != nil {
				if _, err := tags.EmbedMissingTags(ctx); err != nil {
					log.Error().Err(err).Msg("scheduled tag sweep failed")
				}
			}
			if predictor != nil {
				for _, tier := range []memory.Tier{memory.TierWorking, memory.TierShortTerm} {
					if _, err := predictor.AnnotateTier(ctx, tier); err != nil {
						log.Error().Err(err).Str("tier", string(tier)).Msg("scheduled horizon pass failed")
					}
				}
			}
		})
		if err != nil {
			return fmt.Errorf("bad maintenance schedule %q: %w", cfg.Lifecycle.Schedule, err)
		}
		sched.Start()
		defer sched.Stop()
		log.Info().Str("schedule", cfg.Lifecycle.Schedule).Msg("maintenance scheduled")
	}

	srv := server.New(st, emb, tags, maintainer, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", addr).Str("db", st.Path()).Msg("strata serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// buildEmbedder picks the best available embedder: the configured provider
// when it responds, otherwise a TF-IDF fallback built from the stored
// corpus. Returns nil only when even the fallback cannot be built.
func buildEmbedder(ctx context.Context, st *store.MemoryStore) embedding.Embedder {
	if cfg.Embedding.Provider != "" && cfg.Embedding.Provider != embedding.ProviderTFIDF {
		emb, err := embedding.New(cfg.Embedding)
		if err != nil {
			warnf("embedding config: %v", err)
		} else if probe(ctx, emb) {
			log.Info().Str("model", emb.Model()).Msg("embedder ready")
			return emb
		} else {
			warnf("embedding provider %s unreachable, falling back to tfidf", cfg.Embedding.Provider)
		}
	}

	docs, err := corpusDocs(ctx, st)
	if err != nil {
		warnf("tfidf corpus: %v", err)
		return nil
	}
	emb := embedding.NewTFIDF(docs, 512)
	log.Info().Int("vocab", emb.Dimensions()).Msg("tfidf embedder ready")
	return emb
}

func probe(ctx context.Context, emb embedding.Embedder) bool {
	if p, ok := emb.(interface{ Probe(context.Context) bool }); ok {
		return p.Probe(ctx)
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := emb.Embed(probeCtx, "probe")
	return err == nil
}

// corpusDocs gathers chunk text across all tiers for vocabulary building.
func corpusDocs(ctx context.Context, st *store.MemoryStore) ([]string, error) {
	var docs []string
	for _, tier := range memory.Tiers {
		chunks, err := st.ListByTier(ctx, tier, 10000, 0)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			docs = append(docs, c.Content)
		}
	}
	return docs, nil
}
