package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/genai"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/media"
	"github.com/lumenly/coursegen/stream"
)

// ReasonTypeNotSupported is the summary reason for lesson types that
// have no automatic asset generation.
const ReasonTypeNotSupported = "type_not_supported_for_auto_asset_generation"

// Assets runs the batch assets job: one pass over the target lessons,
// generating whatever asset each lesson type calls for. Item failures
// stay isolated; the job itself completes with a per-lesson summary.
type Assets struct {
	t        tracker
	lessons  content.LessonRepository
	sections content.SectionRepository
	pipeline *media.Pipeline
	reg      *genai.Registry
	logger   *slog.Logger

	articleGen genai.ArticleGenerator
	quizGen    genai.QuizGenerator
	storyGen   genai.StoryboardGenerator
}

// NewAssets wires a batch assets orchestrator. Default generator
// capabilities resolve against the registry fallback at construction;
// a job payload naming explicit providers overrides them per run.
func NewAssets(
	records job.RecordStore,
	bus *stream.Bus,
	reg *genai.Registry,
	lessons content.LessonRepository,
	sections content.SectionRepository,
	pipeline *media.Pipeline,
	logger *slog.Logger,
) (*Assets, error) {
	if logger == nil {
		logger = slog.Default()
	}
	articleGen, err := genai.Resolve[genai.ArticleGenerator](reg, "")
	if err != nil {
		return nil, err
	}
	quizGen, err := genai.Resolve[genai.QuizGenerator](reg, "")
	if err != nil {
		return nil, err
	}
	storyGen, err := genai.Resolve[genai.StoryboardGenerator](reg, "")
	if err != nil {
		return nil, err
	}
	return &Assets{
		t:          tracker{records: records, bus: bus, logger: logger},
		lessons:    lessons,
		sections:   sections,
		pipeline:   pipeline,
		reg:        reg,
		logger:     logger,
		articleGen: articleGen,
		quizGen:    quizGen,
		storyGen:   storyGen,
	}, nil
}

// Handle implements the batch job. The batch loop never aborts on an
// item error; only infrastructure failures (record updates, payload
// decoding) fail the job as a whole.
func (o *Assets) Handle(ctx context.Context, j *job.Job, p *job.Payload) error {
	in, err := job.Decode[job.AssetsInput](p)
	if err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}

	if err := o.t.enterPhase(ctx, j, job.PhaseAssetsPrepare, 5); err != nil {
		return o.t.fail(ctx, j, err)
	}
	// Explicit provider names must resolve before any lesson is touched.
	articleGen, quizGen, storyGen, err := o.resolveOverrides(in.Providers)
	if err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}
	if err := o.t.completePhase(ctx, j, 10); err != nil {
		return o.t.fail(ctx, j, err)
	}

	if err := o.t.enterPhase(ctx, j, job.PhaseAssetsProcessing, 10); err != nil {
		return o.t.fail(ctx, j, err)
	}
	var summary job.Summary
	total := len(in.LessonIDs)
	for i, lessonID := range in.LessonIDs {
		var item job.SummaryItem
		// Load first: a lesson that does not exist never "started".
		lesson, err := o.lessons.Get(ctx, lessonID)
		if err != nil {
			item = job.SummaryItem{LessonID: lessonID, Status: job.ItemFailed}
			if errors.Is(err, coursegen.ErrLessonNotFound) {
				item.Error = "lesson not found"
			} else {
				item.Error = err.Error()
			}
		} else {
			o.t.bus.Publish(ctx, stream.New(stream.EventLessonStarted, j.ID.String(), stream.LessonData{
				LessonID:   lessonID,
				LessonType: string(lesson.Type),
			}))
			item = o.runItem(ctx, lesson, articleGen, quizGen, storyGen)
		}
		summary.Add(item)

		switch item.Status {
		case job.ItemFailed:
			o.logger.Warn("lesson asset generation failed",
				slog.String("job_id", j.ID.String()),
				slog.String("lesson_id", lessonID),
				slog.String("error", item.Error),
			)
			o.t.bus.Publish(ctx, stream.New(stream.EventLessonFailed, j.ID.String(), stream.LessonData{
				LessonID:   lessonID,
				LessonType: item.LessonType,
				Error:      item.Error,
			}))
		default:
			o.t.bus.Publish(ctx, stream.New(stream.EventLessonCompleted, j.ID.String(), stream.LessonData{
				LessonID:   lessonID,
				LessonType: item.LessonType,
			}))
		}

		prog := batchProgress(i+1, total)
		if err := o.t.progress(ctx, j, prog); err != nil {
			return o.t.fail(ctx, j, err)
		}
		o.t.bus.Publish(ctx, stream.New(stream.EventLessonProgress, j.ID.String(), stream.LessonData{
			LessonID: lessonID,
			Progress: prog,
		}))
	}

	if err := o.t.enterPhase(ctx, j, job.PhaseAssetsFinalize, 95); err != nil {
		return o.t.fail(ctx, j, err)
	}
	o.t.bus.Publish(ctx, stream.New(stream.EventAssetsSummary, j.ID.String(), summary))
	if err := o.t.complete(ctx, j, job.Metadata{"summary": summary}); err != nil {
		return o.t.fail(ctx, j, err)
	}
	return nil
}

// batchProgress maps item completion onto the 10..95 band of the job's
// progress: finishing the batch never claims the finalize phase's tail.
func batchProgress(done, total int) int {
	if total == 0 {
		return 95
	}
	p := int(math.Round(float64(done)/float64(total)*80)) + 10
	return min(95, p)
}

// runItem generates one loaded lesson's asset and reports the outcome.
// A panic inside an item is an item failure, not a batch failure.
func (o *Assets) runItem(
	ctx context.Context,
	lesson *content.Lesson,
	articleGen genai.ArticleGenerator,
	quizGen genai.QuizGenerator,
	storyGen genai.StoryboardGenerator,
) (item job.SummaryItem) {
	item = job.SummaryItem{
		LessonID:   lesson.ID,
		LessonType: string(lesson.Type),
		Status:     job.ItemSuccess,
	}
	defer func() {
		if r := recover(); r != nil {
			item.Status = job.ItemFailed
			item.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	var err error
	switch lesson.Type {
	case content.LessonVideo:
		err = o.generateVideo(ctx, lesson, storyGen)
	case content.LessonAudio:
		err = o.generateAudio(ctx, lesson)
	case content.LessonArticle:
		err = o.generateArticle(ctx, lesson, articleGen)
	case content.LessonQuiz:
		err = o.generateQuiz(ctx, lesson, quizGen)
	default:
		item.Status = job.ItemSkipped
		item.Error = ReasonTypeNotSupported
		return item
	}
	if err != nil {
		item.Status = job.ItemFailed
		item.Error = err.Error()
	}
	return item
}

// generateVideo renders every section of a video lesson, storyboarding
// sections that have none yet, then merges them into the lesson video.
func (o *Assets) generateVideo(ctx context.Context, lesson *content.Lesson, storyGen genai.StoryboardGenerator) error {
	sections, err := o.sections.ListByLesson(ctx, lesson.ID)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		return fmt.Errorf("lesson %s has no script sections", lesson.ID)
	}
	for _, s := range sections {
		if s.Storyboard == nil || len(s.Storyboard.Scenes) == 0 {
			sb, genErr := storyGen.GenerateStoryboard(ctx, s.Text)
			if genErr != nil {
				return fmt.Errorf("storyboard section %s: %w", s.ID, genErr)
			}
			s.Storyboard = sb
			if updErr := o.sections.Update(ctx, s); updErr != nil {
				return updErr
			}
		}
		if s.VideoStatus == content.AssetReady {
			continue
		}
		if err := o.pipeline.RenderSection(ctx, s, s.Storyboard.StylePrompt); err != nil {
			return err
		}
	}
	return o.pipeline.MergeLesson(ctx, lesson, sections)
}

// generateAudio narrates every section of an audio lesson.
func (o *Assets) generateAudio(ctx context.Context, lesson *content.Lesson) error {
	sections, err := o.sections.ListByLesson(ctx, lesson.ID)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		return fmt.Errorf("lesson %s has no script sections", lesson.ID)
	}
	for _, s := range sections {
		if s.AudioStatus == content.AssetReady {
			continue
		}
		if err := o.pipeline.RenderSectionAudio(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// generateArticle writes article body text onto the lesson.
func (o *Assets) generateArticle(ctx context.Context, lesson *content.Lesson, articleGen genai.ArticleGenerator) error {
	desc := lesson.Description
	if desc == "" {
		desc = lesson.Title
	}
	body, err := articleGen.GenerateArticle(ctx, lesson.Title, desc)
	if err != nil {
		return err
	}
	lesson.Content = body
	return o.lessons.Update(ctx, lesson)
}

// generateQuiz replaces the lesson's quiz questions.
func (o *Assets) generateQuiz(ctx context.Context, lesson *content.Lesson, quizGen genai.QuizGenerator) error {
	questions, err := quizGen.GenerateQuiz(ctx, lesson)
	if err != nil {
		return err
	}
	return o.lessons.SetQuiz(ctx, lesson.ID, questions)
}

// resolveOverrides swaps in explicitly selected providers, keeping the
// construction-time defaults where the selection is empty.
func (o *Assets) resolveOverrides(sel job.ProviderSelection) (genai.ArticleGenerator, genai.QuizGenerator, genai.StoryboardGenerator, error) {
	articleGen, quizGen, storyGen := o.articleGen, o.quizGen, o.storyGen
	if sel.Text != "" {
		var err error
		if articleGen, err = genai.Resolve[genai.ArticleGenerator](o.reg, sel.Text); err != nil {
			return nil, nil, nil, err
		}
		if quizGen, err = genai.Resolve[genai.QuizGenerator](o.reg, sel.Text); err != nil {
			return nil, nil, nil, err
		}
		if storyGen, err = genai.Resolve[genai.StoryboardGenerator](o.reg, sel.Text); err != nil {
			return nil, nil, nil, err
		}
	}
	return articleGen, quizGen, storyGen, nil
}
