package coursegen

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("coursegen: no store configured")
	ErrStoreClosed = errors.New("coursegen: store closed")

	// Not found errors.
	ErrJobNotFound     = errors.New("coursegen: job not found")
	ErrPayloadNotFound = errors.New("coursegen: job payload not found")
	ErrLessonNotFound  = errors.New("coursegen: lesson not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("coursegen: job already exists")

	// Configuration errors.
	ErrProviderNotRegistered = errors.New("coursegen: provider not registered")
	ErrNoHandler             = errors.New("coursegen: no handler registered for job type")

	// Structural errors. These are never retried: the job's input is
	// incomplete in a way that a retry cannot fix.
	ErrCourseStructureMissing = errors.New("coursegen: course has no module or lesson to generate a demo from")
	ErrSectionVideoMissing    = errors.New("coursegen: every section needs a generated video before the lesson can be merged")
	ErrStoryboardMissing      = errors.New("coursegen: script section has no storyboard")

	// State errors.
	ErrInvalidTransition = errors.New("coursegen: invalid phase transition")
)

// fatalError marks an error as structural: the queue must not retry the
// job because re-running it cannot succeed.
type fatalError struct {
	err error
}

func (f *fatalError) Error() string { return f.err.Error() }

func (f *fatalError) Unwrap() error { return f.err }

// Fatal wraps err so that IsFatal reports true. Wrapping nil returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err (or any error in its chain) was marked
// with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}
