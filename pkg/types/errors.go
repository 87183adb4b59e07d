package types

import "fmt"

// AcquisitionError reports that no frame could be obtained.
type AcquisitionError struct {
	Source string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("frame acquisition failed: %v", e.Err)
	}
	return fmt.Sprintf("frame acquisition from %s failed: %v", e.Source, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// DetectionError reports a classifier failure.
type DetectionError struct {
	Backend string
	Err     error
}

func (e *DetectionError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("detection failed: %v", e.Err)
	}
	return fmt.Sprintf("%s detection failed: %v", e.Backend, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// ConfigurationError reports an out-of-range setting found at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
