// Package analysis builds the task bodies submitted to the orchestrator: one
// analysis request becomes a Work function that consults the cache, walks the
// provider fallback chain and records the outcome.
package analysis

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"veritas/internal/cache"
	"veritas/internal/file"
	"veritas/internal/history"
	"veritas/internal/metrics"
	"veritas/internal/provider"
	"veritas/internal/task"
)

type Options struct {
	Chain       *provider.Chain
	Cache       *cache.Cache       // optional
	History     history.Repository // optional
	DataDir     string
	AutoSave    bool
	Primary     string
	Fallbacks   []string
	DefaultMode string
}

type Service struct {
	chain       *provider.Chain
	cache       *cache.Cache
	history     history.Repository
	dataDir     string
	autoSave    bool
	primary     string
	fallbacks   []string
	defaultMode string
}

func NewService(opts Options) *Service {
	if opts.DefaultMode == "" {
		opts.DefaultMode = provider.ModeBalanced
	}
	return &Service{
		chain:       opts.Chain,
		cache:       opts.Cache,
		history:     opts.History,
		dataDir:     opts.DataDir,
		autoSave:    opts.AutoSave,
		primary:     opts.Primary,
		fallbacks:   opts.Fallbacks,
		defaultMode: opts.DefaultMode,
	}
}

// History exposes the repository for the HTTP layer; nil when disabled.
func (s *Service) History() history.Repository {
	return s.history
}

// Task returns the work body for one analysis request. The body completes
// with an Analysis value even when every provider fails: a total failure is
// data the caller can render, not an error. Task-level errors are reserved
// for cancellation and timeout, which the orchestrator classifies itself.
func (s *Service) Task(text, mode string) task.Work {
	if mode == "" {
		mode = s.defaultMode
	}
	return func(ctx context.Context, report func(percent int)) (any, error) {
		key := cache.Key(text, mode)

		if s.cache != nil {
			if cached, ok, err := s.cache.Get(ctx, key); err != nil {
				log.Warn().Err(err).Msg("cache lookup failed, falling through to providers")
			} else if ok {
				metrics.RecordCacheHit()
				log.Debug().Str("content_hash", key).Msg("analysis served from cache")
				report(100)
				return cached, nil
			} else {
				metrics.RecordCacheMiss()
			}
		}

		result := s.chain.AnalyzeWithFallback(ctx, text, mode, s.primary, s.fallbacks, provider.Reporter(report))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !result.Failed() {
			s.store(ctx, key, text, mode, result)
		}
		return result, nil
	}
}

// store fans a successful analysis out to the cache, the history table and
// the on-disk auto-save file. All three are best effort.
func (s *Service) store(ctx context.Context, key, text, mode string, result *provider.Analysis) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result); err != nil {
			log.Warn().Err(err).Msg("failed to cache analysis")
		}
	}
	if s.history != nil {
		rec := &history.Record{
			ContentHash:     key,
			OriginalText:    text,
			SourceType:      "api",
			Result:          result,
			AttitudeMode:    mode,
			Provider:        result.ProviderUsed,
			ConfidenceScore: result.ConfidenceScore,
		}
		if err := s.history.Save(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("failed to save analysis history")
		}
	}
	if s.autoSave && s.dataDir != "" {
		path := filepath.Join(s.dataDir, "analyses", key+".json")
		if err := file.WriteJSONAtomic(path, result); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to auto-save analysis")
		}
	}
}
