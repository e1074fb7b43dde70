package orchestrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/genai"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/media"
	"github.com/lumenly/coursegen/stream"
)

// Course runs the multi-phase course generation job: structure, demo
// script, demo storyboard, then a best-effort demo section video. The
// course tree is usable as soon as the structure phase finishes; the
// redirect-ready event tells the caller so.
type Course struct {
	t        tracker
	courses  content.CourseRepository
	sections content.SectionRepository
	samples  content.SampleTracker
	pipeline *media.Pipeline
	logger   *slog.Logger

	courseGen genai.CourseGenerator
	scriptGen genai.ScriptGenerator
	storyGen  genai.StoryboardGenerator
}

// NewCourse wires a course orchestrator, resolving its generator
// capabilities against the registry's fallback provider up front so a
// misconfigured deployment fails at startup, not mid-job.
func NewCourse(
	records job.RecordStore,
	bus *stream.Bus,
	reg *genai.Registry,
	courses content.CourseRepository,
	sections content.SectionRepository,
	samples content.SampleTracker,
	pipeline *media.Pipeline,
	logger *slog.Logger,
) (*Course, error) {
	if logger == nil {
		logger = slog.Default()
	}
	courseGen, err := genai.Resolve[genai.CourseGenerator](reg, "")
	if err != nil {
		return nil, err
	}
	scriptGen, err := genai.Resolve[genai.ScriptGenerator](reg, "")
	if err != nil {
		return nil, err
	}
	storyGen, err := genai.Resolve[genai.StoryboardGenerator](reg, "")
	if err != nil {
		return nil, err
	}
	return &Course{
		t:         tracker{records: records, bus: bus, logger: logger},
		courses:   courses,
		sections:  sections,
		samples:   samples,
		pipeline:  pipeline,
		logger:    logger,
		courseGen: courseGen,
		scriptGen: scriptGen,
		storyGen:  storyGen,
	}, nil
}

// Handle implements the course job. Any error before the done phase
// marks the job failed; the worker decides whether it retries.
func (o *Course) Handle(ctx context.Context, j *job.Job, p *job.Payload) error {
	in, err := job.Decode[job.CourseInput](p)
	if err != nil {
		return o.abort(ctx, j, coursegen.Fatal(err))
	}

	// Phase 1: generate and persist the full course tree.
	if err := o.t.enterPhase(ctx, j, job.PhaseStructure, 5); err != nil {
		return o.abort(ctx, j, err)
	}
	course, err := o.courseGen.GenerateCourse(ctx, genai.CourseRequest{
		Title:       in.Title,
		Description: in.Description,
		Audience:    in.Audience,
		Tone:        in.Tone,
		Language:    in.Language,
		SourceName:  in.SourceName,
		SourceBytes: in.SourceBytes,
	})
	if err != nil {
		return o.abort(ctx, j, fmt.Errorf("generate course: %w", err))
	}
	courseID, err := o.courses.CreateTree(ctx, j.UserID, course)
	if err != nil {
		return o.abort(ctx, j, fmt.Errorf("persist course tree: %w", err))
	}
	if in.FreemiumSample {
		if err := o.samples.MarkConsumed(ctx, j.UserID); err != nil {
			return o.abort(ctx, j, fmt.Errorf("consume freemium sample: %w", err))
		}
	}
	if err := o.t.persist(ctx, j, job.Update{CourseID: &courseID}); err != nil {
		return o.abort(ctx, j, err)
	}
	// The course tree exists: the caller's UI can navigate now, while
	// the demo assets are still rendering.
	o.t.bus.Publish(ctx, stream.New(stream.EventRedirectReady, j.ID.String(), stream.RedirectData{CourseID: courseID}))
	if err := o.t.completePhase(ctx, j, 30); err != nil {
		return o.abort(ctx, j, err)
	}

	// Phase 2: script the first lesson of the course as the demo.
	if err := o.t.enterPhase(ctx, j, job.PhaseDemoScript, 30); err != nil {
		return o.abort(ctx, j, err)
	}
	mod, lesson, ok := course.FirstLesson()
	if !ok {
		return o.abort(ctx, j, coursegen.Fatal(coursegen.ErrCourseStructureMissing))
	}
	secs, err := o.scriptGen.GenerateScript(ctx, lesson)
	if err != nil {
		return o.abort(ctx, j, fmt.Errorf("generate demo script: %w", err))
	}
	if len(secs) == 0 {
		return o.abort(ctx, j, coursegen.Fatal(fmt.Errorf("%w: demo script has no sections", coursegen.ErrCourseStructureMissing)))
	}
	if err := o.sections.CreateBatch(ctx, lesson.ID, secs); err != nil {
		return o.abort(ctx, j, fmt.Errorf("persist demo script: %w", err))
	}
	if err := o.t.completePhase(ctx, j, 65); err != nil {
		return o.abort(ctx, j, err)
	}

	// Phase 3: storyboard the first section.
	if err := o.t.enterPhase(ctx, j, job.PhaseDemoStoryboard, 65); err != nil {
		return o.abort(ctx, j, err)
	}
	first := secs[0]
	sb, err := o.storyGen.GenerateStoryboard(ctx, first.Text)
	if err != nil {
		return o.abort(ctx, j, fmt.Errorf("generate demo storyboard: %w", err))
	}
	first.Storyboard = sb
	if err := o.sections.Update(ctx, first); err != nil {
		return o.abort(ctx, j, fmt.Errorf("persist demo storyboard: %w", err))
	}
	if err := o.t.completePhase(ctx, j, 90); err != nil {
		return o.abort(ctx, j, err)
	}

	// Demo preview video is best effort: its failure never fails a
	// course whose content is already generated.
	demoStatus := "missing"
	if o.pipeline != nil {
		demoStatus = "ready"
		if err := o.pipeline.RenderSection(ctx, first, sb.StylePrompt); err != nil {
			demoStatus = "failed"
			o.logger.Warn("demo section video failed",
				slog.String("job_id", j.ID.String()),
				slog.String("section_id", first.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	meta := job.Metadata{
		"moduleId":               mod.ID,
		"lessonId":               lesson.ID,
		"sectionId":              first.ID,
		"sectionCount":           len(secs),
		"sceneCount":             len(sb.Scenes),
		"demoSectionVideoStatus": demoStatus,
	}
	o.t.bus.Publish(ctx, stream.New(stream.EventDemoReady, j.ID.String(), stream.LessonData{LessonID: lesson.ID}))
	if err := o.t.complete(ctx, j, meta); err != nil {
		return o.abort(ctx, j, err)
	}
	return nil
}

// abort records the failure and hands the error to the worker.
func (o *Course) abort(ctx context.Context, j *job.Job, err error) error {
	return o.t.fail(ctx, j, err)
}
