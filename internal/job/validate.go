package job

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition is matched by every *ValidationError
var ErrInvalidDefinition = errors.New("invalid job definition")

// ValidationError lists every problem found in a definition
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidDefinition, strings.Join(e.Messages, "; "))
}

// Is makes errors.Is(err, ErrInvalidDefinition) work
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

// Validate returns the list of validation messages, empty when the definition is valid
func (d *Definition) Validate() []string {
	var msgs []string

	if strings.TrimSpace(d.Name) == "" {
		msgs = append(msgs, "name is required")
	}
	if !d.Direction.IsValid() {
		msgs = append(msgs, fmt.Sprintf("direction %q must be %q or %q", d.Direction, DirectionUpload, DirectionDownload))
	}
	if strings.TrimSpace(d.SourcePath) == "" {
		msgs = append(msgs, "source path is required")
	}
	if strings.TrimSpace(d.DestinationPath) == "" {
		msgs = append(msgs, "destination path is required")
	}
	if d.IntervalValue <= 0 {
		msgs = append(msgs, fmt.Sprintf("interval value must be positive (got %d)", d.IntervalValue))
	}
	if d.IntervalUnit.Duration() == 0 {
		msgs = append(msgs, fmt.Sprintf("interval unit %q must be seconds, minutes or hours", d.IntervalUnit))
	}
	if d.MaxRetries < 0 {
		msgs = append(msgs, "max retries cannot be negative")
	}
	if d.RetryDelaySeconds < 0 {
		msgs = append(msgs, "retry delay cannot be negative")
	}

	f := d.Filter
	if f.MinSizeBytes < 0 || f.MaxSizeBytes < 0 {
		msgs = append(msgs, "filter size bounds cannot be negative")
	}
	if f.MaxSizeBytes > 0 && f.MinSizeBytes > f.MaxSizeBytes {
		msgs = append(msgs, fmt.Sprintf("filter min size %d is greater than max size %d", f.MinSizeBytes, f.MaxSizeBytes))
	}
	for i, p := range f.ExcludePatterns {
		if strings.TrimSpace(p) == "" {
			msgs = append(msgs, fmt.Sprintf("exclude pattern #%d is empty", i+1))
		}
	}

	return msgs
}

// Check returns a *ValidationError when the definition is invalid
func (d *Definition) Check() error {
	if msgs := d.Validate(); len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}
