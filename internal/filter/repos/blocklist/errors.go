package blocklist

import "fmt"

// SourceLoadError reports a category source that could not be read. The
// source is skipped and the index is built from the rest.
type SourceLoadError struct {
	Source string
	Err    error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("blocklist source %q: %v", e.Source, e.Err)
}

func (e *SourceLoadError) Unwrap() error { return e.Err }
