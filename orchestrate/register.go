package orchestrate

import (
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/worker"
)

// Register binds every orchestrator to its job type in the worker's
// handler registry.
func Register(reg *worker.Registry, course *Course, assets *Assets, lessons *Lessons) {
	reg.Register(job.TypeCourseGeneration, course.Handle)
	reg.Register(job.TypeAssetsGeneration, assets.Handle)
	reg.Register(job.TypeLessonAudio, lessons.HandleAudio)
	reg.Register(job.TypeLessonSectionVideo, lessons.HandleSectionVideo)
	reg.Register(job.TypeLessonMergeVideo, lessons.HandleMergeVideo)
}
