// Package pipeline sequences the four processing stages that turn a reading
// position into a synchronized audio segment: fetch, extract, rewrite,
// synthesize. Each stage is a no-op when its output artifact already exists;
// the orchestrator owns only sequencing and cache-skip decisions, never
// protocol detail.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/align"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/benchmark"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/coverage"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/events"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/extract"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/fetch"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/metrics"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/rewrite"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/storage"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/synthesize"
)

// charsPerMinute converts a target listening duration into a synthesis input
// budget. Narration runs around 150 words per minute at ~6 characters per
// word; the sentence-boundary truncation below makes the exact value
// uncritical.
const charsPerMinute = 900

// ErrUnknownProvider is returned when the request names a synthesis provider
// that is not configured.
var ErrUnknownProvider = errors.New("unknown synthesis provider")

// Request is one pipeline invocation.
type Request struct {
	ASIN                  string
	StartingPosition      int
	Provider              string
	SkipRewrite           bool
	TargetDurationMinutes int
}

// PositionRange is the span of reading positions a chunk covers.
type PositionRange struct {
	StartPositionID int `json:"start_position_id"`
	EndPositionID   int `json:"end_position_id"`
}

// Result reports what a pipeline run produced. Audio fields are the actually
// covered sub-span, which may be narrower than the chunk's range when the
// synthesis input was truncated at a sentence boundary.
type Result struct {
	ASIN                 string        `json:"asin"`
	ChunkID              string        `json:"chunk_id"`
	StagesExecuted       []string      `json:"stages_executed"`
	PositionRange        PositionRange `json:"position_range"`
	ArtifactsDir         string        `json:"artifacts_dir"`
	ArtifactID           string        `json:"artifact_id,omitempty"`
	AudioDurationSeconds float64       `json:"audio_duration_seconds,omitempty"`
	AudioStartPositionID int           `json:"audio_start_position_id,omitempty"`
	AudioEndPositionID   int           `json:"audio_end_position_id,omitempty"`
}

// Options carries the orchestrator's collaborators and tunables.
type Options struct {
	Coverage  *coverage.Store
	Resolver  *coverage.Resolver
	Data      *storage.LocalStore
	Fetcher   fetch.Fetcher
	Extractor extract.Extractor
	Rewriter  rewrite.Rewriter // nil disables the rewrite stage
	Providers map[string]synthesize.Provider
	Bus       *events.Bus // nil disables event publishing

	IntervalSeconds      float64
	DefaultTargetMinutes int
	MaxSynthesisChars    int

	Log zerolog.Logger
}

// Orchestrator is the pipeline entry point.
type Orchestrator struct {
	coverage  *coverage.Store
	resolver  *coverage.Resolver
	data      *storage.LocalStore
	fetcher   fetch.Fetcher
	extractor extract.Extractor
	rewriter  rewrite.Rewriter
	providers map[string]synthesize.Provider
	bus       *events.Bus

	intervalSeconds      float64
	defaultTargetMinutes int
	maxSynthesisChars    int

	log        zerolog.Logger
	activeRuns atomic.Int64
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	interval := opts.IntervalSeconds
	if interval <= 0 {
		interval = benchmark.DefaultIntervalSeconds
	}
	target := opts.DefaultTargetMinutes
	if target <= 0 {
		target = 10
	}
	return &Orchestrator{
		coverage:             opts.Coverage,
		resolver:             opts.Resolver,
		data:                 opts.Data,
		fetcher:              opts.Fetcher,
		extractor:            opts.Extractor,
		rewriter:             opts.Rewriter,
		providers:            opts.Providers,
		bus:                  opts.Bus,
		intervalSeconds:      interval,
		defaultTargetMinutes: target,
		maxSynthesisChars:    opts.MaxSynthesisChars,
		log:                  opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// ActiveRunCount returns the number of in-flight pipeline runs.
func (o *Orchestrator) ActiveRunCount() int {
	return int(o.activeRuns.Load())
}

// ProviderNames returns the configured synthesis provider names.
func (o *Orchestrator) ProviderNames() []string {
	names := make([]string, 0, len(o.providers))
	for name := range o.providers {
		names = append(names, name)
	}
	return names
}

// Run executes the pipeline for one request. Stages whose artifacts already
// exist are skipped; a stage that runs forces every downstream stage to run.
// The per-book lock is held for the whole run, so at most one pipeline
// execution is in flight per book.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ASIN == "" {
		return nil, fmt.Errorf("asin must not be empty")
	}
	if req.StartingPosition < 0 {
		return nil, fmt.Errorf("starting position must not be negative")
	}
	prov, ok := o.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}

	o.activeRuns.Add(1)
	defer o.activeRuns.Add(-1)

	unlock := o.coverage.Lock(req.ASIN)
	defer unlock()

	start := time.Now()
	res, err := o.run(ctx, req, prov)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		o.publish(events.TypePipelineFailed, req.ASIN, map[string]any{"error": err.Error()})
		o.log.Error().Err(err).
			Str("asin", req.ASIN).
			Int("position", req.StartingPosition).
			Msg("pipeline run failed")
		return nil, err
	}

	metrics.PipelineRunsTotal.WithLabelValues("ok").Inc()
	o.publish(events.TypePipelineCompleted, req.ASIN, map[string]any{
		"chunk_id": res.ChunkID,
		"stages":   res.StagesExecuted,
	})
	o.log.Info().
		Str("asin", req.ASIN).
		Str("chunk_id", res.ChunkID).
		Strs("stages", res.StagesExecuted).
		Dur("duration_ms", time.Since(start)).
		Msg("pipeline run complete")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, prov synthesize.Provider) (*Result, error) {
	cov := o.coverage.Load(req.ASIN)

	// Resolve-or-fetch. A fresh chunk has no prior artifacts, so a fetch
	// forces every downstream stage.
	rng, err := o.resolver.Resolve(cov, req.StartingPosition)
	fetchRan := false
	if errors.Is(err, coverage.ErrNoUsableChunk) {
		rng, err = o.runFetch(ctx, cov, req)
		if err != nil {
			return nil, err
		}
		fetchRan = true
	} else if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	chunkDir := fmt.Sprintf("%s/chunks/%s", req.ASIN, rng.ID)

	// Extract.
	textKey := chunkDir + "/extracted.txt"
	extractRan := fetchRan || !o.data.Exists(textKey)
	var extracted string
	if extractRan {
		extracted, err = o.runExtract(ctx, cov, rng, chunkDir, textKey)
		if err != nil {
			return nil, err
		}
		rng = cov.FindRange(rng.ID)
	} else {
		raw, err := o.data.Load(textKey)
		if err != nil {
			return nil, &StageError{Stage: StageExtract, Err: fmt.Errorf("load cached text: %w", err)}
		}
		extracted = string(raw)
	}

	// Rewrite. Skipped on request or when no rewriter is configured; the
	// synthesis stage then consumes the extracted text directly.
	narration := extracted
	rewriteRan := false
	if !req.SkipRewrite && o.rewriter != nil {
		rewriteKey := fmt.Sprintf("%s/rewritten_%s.txt", chunkDir, o.rewriter.Name())
		rewriteRan = extractRan || !o.data.Exists(rewriteKey)
		if rewriteRan {
			narration, err = o.runRewrite(ctx, cov, rng, extracted, rewriteKey)
			if err != nil {
				return nil, err
			}
			rng = cov.FindRange(rng.ID)
		} else {
			raw, err := o.data.Load(rewriteKey)
			if err != nil {
				return nil, &StageError{Stage: StageRewrite, Err: fmt.Errorf("load cached rewrite: %w", err)}
			}
			narration = string(raw)
		}
	}

	// Alignment maps are always refreshed: they are cheap to compute and
	// derive entirely from the narration text and the range's span.
	normalized, indexMap := align.Normalize(narration)
	textForSynthesis := align.TruncateAtSentence(normalized, o.synthesisBudget(req.TargetDurationMinutes))
	effectiveEnd := align.ProportionalEndPosition(len(textForSynthesis), len(normalized), rng.StartPositionID, rng.EndPositionID)
	charPositions := align.InterpolatePositions(len(textForSynthesis), rng.StartPositionID, effectiveEnd)

	artifactID := coverage.ArtifactID(prov.Name(), rng.StartPositionID, effectiveEnd)
	audioDir := fmt.Sprintf("%s/audio/%s", chunkDir, artifactID)

	var art *coverage.AudioArtifact
	existing := rng.FindAudio(artifactID)
	synthRan := rewriteRan || extractRan || existing == nil || !o.data.Exists(audioDir+"/benchmarks.json")
	if synthRan {
		art, err = o.runSynthesize(ctx, cov, rng, prov, synthesisInput{
			artifactID:       artifactID,
			audioDir:         audioDir,
			textForSynthesis: textForSynthesis,
			narration:        narration,
			indexMap:         indexMap,
			charPositions:    charPositions,
			startPositionID:  rng.StartPositionID,
			endPositionID:    effectiveEnd,
		})
		if err != nil {
			return nil, err
		}
	} else {
		art = existing
	}

	stages := make([]string, 0, 4)
	for _, s := range []struct {
		name string
		ran  bool
	}{
		{StageFetch, fetchRan},
		{StageExtract, extractRan},
		{StageRewrite, rewriteRan},
		{StageSynthesize, synthRan},
	} {
		if s.ran {
			stages = append(stages, s.name)
		}
	}

	return &Result{
		ASIN:           req.ASIN,
		ChunkID:        rng.ID,
		StagesExecuted: stages,
		PositionRange: PositionRange{
			StartPositionID: rng.StartPositionID,
			EndPositionID:   rng.EndPositionID,
		},
		ArtifactsDir:         o.data.Path(chunkDir),
		ArtifactID:           art.ID,
		AudioDurationSeconds: art.DurationSeconds,
		AudioStartPositionID: art.StartPositionID,
		AudioEndPositionID:   art.EndPositionID,
	}, nil
}

func (o *Orchestrator) runFetch(ctx context.Context, cov *coverage.BookCoverage, req Request) (*coverage.CoverageRange, error) {
	var rng *coverage.CoverageRange
	err := o.stage(StageFetch, req.ASIN, func() error {
		chunk, err := o.fetcher.FetchChunk(ctx, req.ASIN, req.StartingPosition)
		if err != nil {
			return err
		}

		rng = o.coverage.UpsertRange(cov, chunk.StartPositionID, chunk.EndPositionID)
		rawKey := fmt.Sprintf("%s/chunks/%s/raw.tar", req.ASIN, rng.ID)
		if err := o.data.Save(rawKey, chunk.Payload); err != nil {
			return fmt.Errorf("store payload: %w", err)
		}
		rng.RawPath = rawKey
		if err := o.coverage.Save(cov); err != nil {
			return err
		}
		// Save reorders cov.Ranges; re-resolve the pointer by ID.
		rng = cov.FindRange(rng.ID)
		return nil
	})
	return rng, err
}

func (o *Orchestrator) runExtract(ctx context.Context, cov *coverage.BookCoverage, rng *coverage.CoverageRange, chunkDir, textKey string) (string, error) {
	var text string
	err := o.stage(StageExtract, cov.ASIN, func() error {
		var err error
		text, err = o.extractor.Extract(ctx, o.data.Path(chunkDir), o.data.Path(chunkDir))
		if err != nil {
			return err
		}
		// Re-save through the atomic write path so the cache-skip stat
		// never sees a partially written file.
		if err := o.data.Save(textKey, []byte(text)); err != nil {
			return fmt.Errorf("store extracted text: %w", err)
		}
		rng.TextPath = textKey
		return o.coverage.Save(cov)
	})
	return text, err
}

func (o *Orchestrator) runRewrite(ctx context.Context, cov *coverage.BookCoverage, rng *coverage.CoverageRange, extracted, rewriteKey string) (string, error) {
	var rewritten string
	err := o.stage(StageRewrite, cov.ASIN, func() error {
		var err error
		rewritten, err = o.rewriter.Rewrite(ctx, extracted)
		if err != nil {
			return err
		}
		if err := o.data.Save(rewriteKey, []byte(rewritten)); err != nil {
			return fmt.Errorf("store rewritten text: %w", err)
		}
		if rng.RewrittenPaths == nil {
			rng.RewrittenPaths = make(map[string]string)
		}
		rng.RewrittenPaths[o.rewriter.Name()] = rewriteKey
		return o.coverage.Save(cov)
	})
	return rewritten, err
}

type synthesisInput struct {
	artifactID       string
	audioDir         string
	textForSynthesis string
	narration        string
	indexMap         []int
	charPositions    []int
	startPositionID  int
	endPositionID    int
}

func (o *Orchestrator) runSynthesize(ctx context.Context, cov *coverage.BookCoverage, rng *coverage.CoverageRange, prov synthesize.Provider, in synthesisInput) (*coverage.AudioArtifact, error) {
	var art coverage.AudioArtifact
	err := o.stage(StageSynthesize, cov.ASIN, func() error {
		res, err := prov.Synthesize(ctx, in.textForSynthesis)
		if err != nil {
			return err
		}

		entries, err := benchmark.Build(benchmark.Input{
			Spans:            res.Spans,
			Granularity:      res.Granularity,
			TextForSynthesis: in.textForSynthesis,
			RawText:          in.narration,
			IndexMap:         in.indexMap,
			CharPositions:    in.charPositions,
			TotalDuration:    res.DurationSeconds,
			IntervalSeconds:  o.intervalSeconds,
		})
		if err != nil {
			return err
		}
		metrics.BenchmarkEntriesTotal.Add(float64(len(entries)))

		benchFile, err := json.MarshalIndent(coverage.BenchmarkFile{
			TotalDurationSeconds: res.DurationSeconds,
			IntervalSeconds:      o.intervalSeconds,
			Benchmarks:           entries,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal benchmarks: %w", err)
		}

		alignment := res.RawAlignment
		if len(alignment) == 0 {
			if alignment, err = json.Marshal(res.Spans); err != nil {
				return fmt.Errorf("marshal alignment: %w", err)
			}
		}

		format := res.Format
		if format == "" {
			format = "mp3"
		}
		audioKey := fmt.Sprintf("%s/audio.%s", in.audioDir, format)
		alignKey := in.audioDir + "/alignment.json"
		benchKey := in.audioDir + "/benchmarks.json"
		sourceKey := in.audioDir + "/source_text.txt"

		for _, w := range []struct {
			key  string
			data []byte
		}{
			{audioKey, res.Audio},
			{alignKey, alignment},
			{sourceKey, []byte(in.textForSynthesis)},
			{benchKey, benchFile}, // last: its presence marks the stage done
		} {
			if err := o.data.Save(w.key, w.data); err != nil {
				return fmt.Errorf("store %s: %w", w.key, err)
			}
		}

		art = coverage.AudioArtifact{
			ID:              in.artifactID,
			Provider:        prov.Name(),
			AudioPath:       audioKey,
			AlignmentPath:   alignKey,
			BenchmarksPath:  benchKey,
			SourceTextPath:  sourceKey,
			StartPositionID: in.startPositionID,
			EndPositionID:   in.endPositionID,
			DurationSeconds: res.DurationSeconds,
			CreatedAt:       time.Now().UTC(),
		}
		o.coverage.AppendAudio(rng, art)
		return o.coverage.Save(cov)
	})
	if err != nil {
		return nil, err
	}
	return &art, nil
}

// stage wraps one adapter invocation with events, metrics, and stage-tagged
// error propagation.
func (o *Orchestrator) stage(name, asin string, fn func() error) error {
	o.publish(events.TypeStageStarted, asin, map[string]any{"stage": name})
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StageExecutionsTotal.WithLabelValues(name, "error").Inc()
		return &StageError{Stage: name, Err: err}
	}
	metrics.StageExecutionsTotal.WithLabelValues(name, "ok").Inc()
	o.publish(events.TypeStageCompleted, asin, map[string]any{"stage": name})
	return nil
}

func (o *Orchestrator) publish(eventType, asin string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventType, asin, payload)
	metrics.SSEEventsPublishedTotal.Inc()
}

// synthesisBudget converts the target listening duration into a synthesis
// input size, capped by the configured hard limit.
func (o *Orchestrator) synthesisBudget(targetMinutes int) int {
	if targetMinutes <= 0 {
		targetMinutes = o.defaultTargetMinutes
	}
	budget := targetMinutes * charsPerMinute
	if o.maxSynthesisChars > 0 && budget > o.maxSynthesisChars {
		budget = o.maxSynthesisChars
	}
	return budget
}
