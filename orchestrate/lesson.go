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

// Lessons runs the single-lesson jobs: narration audio for a lesson,
// video for one section, and the final per-lesson video merge.
type Lessons struct {
	t        tracker
	lessons  content.LessonRepository
	sections content.SectionRepository
	pipeline *media.Pipeline
	storyGen genai.StoryboardGenerator
	logger   *slog.Logger
}

// NewLessons wires the single-lesson job handlers.
func NewLessons(
	records job.RecordStore,
	bus *stream.Bus,
	reg *genai.Registry,
	lessons content.LessonRepository,
	sections content.SectionRepository,
	pipeline *media.Pipeline,
	logger *slog.Logger,
) (*Lessons, error) {
	if logger == nil {
		logger = slog.Default()
	}
	storyGen, err := genai.Resolve[genai.StoryboardGenerator](reg, "")
	if err != nil {
		return nil, err
	}
	return &Lessons{
		t:        tracker{records: records, bus: bus, logger: logger},
		lessons:  lessons,
		sections: sections,
		pipeline: pipeline,
		storyGen: storyGen,
		logger:   logger,
	}, nil
}

// HandleAudio narrates every section of one lesson.
func (o *Lessons) HandleAudio(ctx context.Context, j *job.Job, p *job.Payload) error {
	in, err := job.Decode[job.LessonAudioInput](p)
	if err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}
	if err := o.t.enterPhase(ctx, j, job.PhaseAudioProcessing, 10); err != nil {
		return o.t.fail(ctx, j, err)
	}

	if _, err := o.lessons.Get(ctx, in.LessonID); err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}
	sections, err := o.sections.ListByLesson(ctx, in.LessonID)
	if err != nil {
		return o.t.fail(ctx, j, err)
	}
	if len(sections) == 0 {
		return o.t.fail(ctx, j, coursegen.Fatal(fmt.Errorf("lesson %s has no script sections", in.LessonID)))
	}

	for i, s := range sections {
		if err := o.pipeline.RenderSectionAudio(ctx, s); err != nil {
			return o.t.fail(ctx, j, err)
		}
		if err := o.t.progress(ctx, j, 10+(i+1)*85/len(sections)); err != nil {
			return o.t.fail(ctx, j, err)
		}
	}
	return o.t.complete(ctx, j, job.Metadata{
		"lessonId":     in.LessonID,
		"sectionCount": len(sections),
	})
}

// HandleSectionVideo renders one section's video, generating the
// storyboard first if the section does not have one yet. Unlike the
// demo preview of a course job, a render failure here fails the job:
// the video is the only thing this job was asked for.
func (o *Lessons) HandleSectionVideo(ctx context.Context, j *job.Job, p *job.Payload) error {
	in, err := job.Decode[job.SectionVideoInput](p)
	if err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}
	if err := o.t.enterPhase(ctx, j, job.PhaseVideoProcessing, 10); err != nil {
		return o.t.fail(ctx, j, err)
	}

	section, err := o.sections.Get(ctx, in.SectionID)
	if err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}
	if section.Storyboard == nil || len(section.Storyboard.Scenes) == 0 {
		sb, genErr := o.storyGen.GenerateStoryboard(ctx, section.Text)
		if genErr != nil {
			return o.t.fail(ctx, j, fmt.Errorf("generate storyboard: %w", genErr))
		}
		section.Storyboard = sb
		if updErr := o.sections.Update(ctx, section); updErr != nil {
			return o.t.fail(ctx, j, updErr)
		}
	}
	if err := o.t.progress(ctx, j, 35); err != nil {
		return o.t.fail(ctx, j, err)
	}

	style := in.StylePrompt
	if style == "" {
		style = section.Storyboard.StylePrompt
	}
	if err := o.pipeline.RenderSection(ctx, section, style); err != nil {
		return o.t.fail(ctx, j, err)
	}
	return o.t.complete(ctx, j, job.Metadata{
		"lessonId":   in.LessonID,
		"sectionId":  in.SectionID,
		"videoUrl":   section.VideoURL,
		"durationMs": section.VideoDurationMs,
	})
}

// HandleMergeVideo concatenates a lesson's section videos into the
// lesson video. Missing section videos fail the job before any
// download happens.
func (o *Lessons) HandleMergeVideo(ctx context.Context, j *job.Job, p *job.Payload) error {
	in, err := job.Decode[job.MergeVideoInput](p)
	if err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}
	if err := o.t.enterPhase(ctx, j, job.PhaseVideoMerge, 10); err != nil {
		return o.t.fail(ctx, j, err)
	}

	lesson, err := o.lessons.Get(ctx, in.LessonID)
	if err != nil {
		return o.t.fail(ctx, j, coursegen.Fatal(err))
	}
	sections, err := o.sections.ListByLesson(ctx, in.LessonID)
	if err != nil {
		return o.t.fail(ctx, j, err)
	}
	if len(sections) == 0 {
		return o.t.fail(ctx, j, coursegen.Fatal(fmt.Errorf("lesson %s has no script sections", in.LessonID)))
	}
	if err := o.t.progress(ctx, j, 30); err != nil {
		return o.t.fail(ctx, j, err)
	}

	if err := o.pipeline.MergeLesson(ctx, lesson, sections); err != nil {
		return o.t.fail(ctx, j, err)
	}
	return o.t.complete(ctx, j, job.Metadata{
		"lessonId":        in.LessonID,
		"videoUrl":        lesson.VideoURL,
		"durationMinutes": lesson.DurationMinutes,
	})
}
