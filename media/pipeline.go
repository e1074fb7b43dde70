package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/genai"
	"github.com/lumenly/coursegen/storage"
)

// DefaultClipDuration is how long each scene's still image is held.
const DefaultClipDuration = 8 * time.Second

// Pipeline assembles section videos from storyboards and merges section
// videos into lesson videos. Scratch directories are private per
// invocation and removed on every exit path.
type Pipeline struct {
	images   genai.ImageGenerator
	speech   genai.SpeechGenerator
	renderer Renderer
	blobs    storage.BlobStore
	sections content.SectionRepository
	lessons  content.LessonRepository
	logger   *slog.Logger

	scratchRoot  string
	sceneWorkers int
	clipDuration time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithScratchRoot sets the parent directory for scratch space.
func WithScratchRoot(dir string) PipelineOption {
	return func(p *Pipeline) { p.scratchRoot = dir }
}

// WithSceneWorkers bounds the per-section scene fan-out.
func WithSceneWorkers(n int) PipelineOption {
	return func(p *Pipeline) { p.sceneWorkers = n }
}

// WithClipDuration sets the per-scene clip length.
func WithClipDuration(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.clipDuration = d }
}

// FromConfig translates the engine configuration into pipeline options.
func FromConfig(cfg coursegen.Config) []PipelineOption {
	var opts []PipelineOption
	if cfg.SceneConcurrency > 0 {
		opts = append(opts, WithSceneWorkers(cfg.SceneConcurrency))
	}
	if cfg.ScratchDir != "" {
		opts = append(opts, WithScratchRoot(cfg.ScratchDir))
	}
	return opts
}

// NewPipeline creates a media assembly pipeline.
func NewPipeline(
	images genai.ImageGenerator,
	speech genai.SpeechGenerator,
	renderer Renderer,
	blobs storage.BlobStore,
	sections content.SectionRepository,
	lessons content.LessonRepository,
	logger *slog.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		images:       images,
		speech:       speech,
		renderer:     renderer,
		blobs:        blobs,
		sections:     sections,
		lessons:      lessons,
		logger:       logger,
		sceneWorkers: 4,
		clipDuration: DefaultClipDuration,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// sectionKey is the blob key for a section's rendered video.
func sectionKey(sectionID string) string {
	return "sections/" + sectionID + "/video.mp4"
}

// lessonKey is the blob key for a lesson's merged video.
func lessonKey(lessonID string) string {
	return "lessons/" + lessonID + "/video.mp4"
}

// audioKey is the blob key for a section's narration audio.
func audioKey(sectionID string) string {
	return "sections/" + sectionID + "/audio.mp3"
}

// RenderSectionAudio synthesizes narration for one section's script
// text, uploads it, and updates the section record.
func (p *Pipeline) RenderSectionAudio(ctx context.Context, section *content.ScriptSection) error {
	audio, err := p.speech.Synthesize(ctx, section.Text)
	if err != nil {
		return fmt.Errorf("media: section %s narration: %w", section.ID, err)
	}
	url, err := p.blobs.Upload(ctx, audioKey(section.ID), bytes.NewReader(audio), int64(len(audio)), "audio/mpeg")
	if err != nil {
		return fmt.Errorf("media: upload %s: %w", audioKey(section.ID), err)
	}

	section.AudioURL = url
	section.AudioStatus = content.AssetReady
	if err := p.sections.Update(ctx, section); err != nil {
		return fmt.Errorf("media: update section %s: %w", section.ID, err)
	}
	return nil
}

// RenderSection renders one section's storyboard into a video: fetch
// image + narration per scene concurrently, render per-scene clips,
// concatenate, upload, and update the section record. The previous
// stored video for the section, if any, is removed before upload.
func (p *Pipeline) RenderSection(ctx context.Context, section *content.ScriptSection, stylePrompt string) (err error) {
	sb := section.Storyboard
	if sb == nil || len(sb.Scenes) == 0 {
		return coursegen.ErrStoryboardMissing
	}
	if stylePrompt == "" {
		stylePrompt = sb.StylePrompt
	}

	dir, err := os.MkdirTemp(p.scratchRoot, "coursegen-section-")
	if err != nil {
		return fmt.Errorf("media: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// Per-scene generation is the only parallel part of the pipeline:
	// a bounded fan-out with no shared mutable state between branches.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.sceneWorkers)
	for i, scene := range sb.Scenes {
		g.Go(func() error {
			prompt := scene.VisualConcept
			if stylePrompt != "" {
				prompt = stylePrompt + ". " + prompt
			}
			img, genErr := p.images.GenerateImage(gctx, prompt)
			if genErr != nil {
				return fmt.Errorf("media: scene %d image: %w", i, genErr)
			}
			return os.WriteFile(p.scenePath(dir, i, "png"), img, 0o600)
		})
		g.Go(func() error {
			audio, genErr := p.speech.Synthesize(gctx, scene.Narration)
			if genErr != nil {
				return fmt.Errorf("media: scene %d narration: %w", i, genErr)
			}
			return os.WriteFile(p.scenePath(dir, i, "mp3"), audio, 0o600)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	clips := make([]string, len(sb.Scenes))
	for i := range sb.Scenes {
		clip := p.scenePath(dir, i, "mp4")
		if err := p.renderer.RenderClip(ctx, p.scenePath(dir, i, "png"), p.scenePath(dir, i, "mp3"), clip, p.clipDuration); err != nil {
			return err
		}
		clips[i] = clip
	}

	out := filepath.Join(dir, "section.mp4")
	if err := p.renderer.Concat(ctx, clips, out); err != nil {
		return err
	}
	duration, err := p.renderer.Duration(ctx, out)
	if err != nil {
		return err
	}

	key := sectionKey(section.ID)
	if section.VideoPath != "" {
		// No orphaned blobs: drop the previous video first.
		if rmErr := p.blobs.Remove(ctx, section.VideoPath); rmErr != nil {
			p.logger.Warn("stale section video not removed",
				slog.String("section_id", section.ID),
				slog.String("error", rmErr.Error()),
			)
		}
	}
	url, err := p.upload(ctx, key, out, "video/mp4")
	if err != nil {
		return err
	}

	section.VideoPath = key
	section.VideoURL = url
	section.VideoDurationMs = duration.Milliseconds()
	section.VideoStatus = content.AssetReady
	if err := p.sections.Update(ctx, section); err != nil {
		return fmt.Errorf("media: update section %s: %w", section.ID, err)
	}

	p.logger.Info("section video ready",
		slog.String("section_id", section.ID),
		slog.Int("scenes", len(sb.Scenes)),
		slog.Duration("duration", duration),
	)
	return nil
}

// MergeLesson concatenates every section's already-rendered video, in
// section order, into the lesson's final video. Every section must
// already have a generated video; a missing one fails fast before
// anything is downloaded so a partial merge is never uploaded.
func (p *Pipeline) MergeLesson(ctx context.Context, lesson *content.Lesson, sections []*content.ScriptSection) (err error) {
	var total time.Duration
	for _, s := range sections {
		if s.VideoStatus != content.AssetReady || s.VideoPath == "" {
			return coursegen.Fatal(fmt.Errorf("%w: section %q", coursegen.ErrSectionVideoMissing, s.ID))
		}
		total += time.Duration(s.VideoDurationMs) * time.Millisecond
	}

	dir, err := os.MkdirTemp(p.scratchRoot, "coursegen-merge-")
	if err != nil {
		return fmt.Errorf("media: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	clips := make([]string, len(sections))
	for i, s := range sections {
		local := filepath.Join(dir, fmt.Sprintf("part_%03d.mp4", i))
		f, createErr := os.Create(local)
		if createErr != nil {
			return fmt.Errorf("media: scratch file: %w", createErr)
		}
		dlErr := p.blobs.Download(ctx, s.VideoPath, f)
		f.Close()
		if dlErr != nil {
			return fmt.Errorf("media: download section %s video: %w", s.ID, dlErr)
		}
		clips[i] = local
	}

	out := filepath.Join(dir, "lesson.mp4")
	if err := p.renderer.Concat(ctx, clips, out); err != nil {
		return err
	}

	key := lessonKey(lesson.ID)
	if lesson.VideoURL != "" {
		if rmErr := p.blobs.Remove(ctx, key); rmErr != nil {
			p.logger.Warn("stale lesson video not removed",
				slog.String("lesson_id", lesson.ID),
				slog.String("error", rmErr.Error()),
			)
		}
	}
	url, err := p.upload(ctx, key, out, "video/mp4")
	if err != nil {
		return err
	}

	lesson.VideoURL = url
	lesson.VideoStatus = content.AssetReady
	lesson.DurationMinutes = total.Minutes()
	if err := p.lessons.Update(ctx, lesson); err != nil {
		return fmt.Errorf("media: update lesson %s: %w", lesson.ID, err)
	}

	p.logger.Info("lesson video merged",
		slog.String("lesson_id", lesson.ID),
		slog.Int("sections", len(sections)),
		slog.Duration("duration", total),
	)
	return nil
}

func (p *Pipeline) scenePath(dir string, i int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("scene_%03d.%s", i, ext))
}

// upload streams a scratch file into the blob store.
func (p *Pipeline) upload(ctx context.Context, key, path, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("media: read %s: %w", path, err)
	}
	url, err := p.blobs.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", fmt.Errorf("media: upload %s: %w", key, err)
	}
	return url, nil
}
