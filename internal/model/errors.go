package model

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure so callers and subscribers can report it precisely.
type Code string

const (
	CodeUploadFailed       Code = "UPLOAD_FAILED"
	CodeInvalidFormat      Code = "INVALID_FORMAT"
	CodeFileTooLarge       Code = "FILE_TOO_LARGE"
	CodeDuplicateID        Code = "DUPLICATE_ID"
	CodeNoFile             Code = "NO_FILE"
	CodeTranscodeFailed    Code = "TRANSCODE_FAILED"
	CodeFFmpegError        Code = "FFMPEG_ERROR"
	CodeMetadataExtraction Code = "METADATA_EXTRACTION_FAILED"
	CodeDiskFull           Code = "DISK_FULL"
	CodeNotFound           Code = "NOT_FOUND"
	CodeShuttingDown       Code = "SHUTTING_DOWN"
)

var (
	ErrUploadFailed       = errors.New("upload failed")
	ErrInvalidFormat      = errors.New("invalid format")
	ErrFileTooLarge       = errors.New("file too large")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrNoFile             = errors.New("no file")
	ErrTranscodeFailed    = errors.New("transcode failed")
	ErrFFmpeg             = errors.New("ffmpeg error")
	ErrMetadataExtraction = errors.New("metadata extraction failed")
	ErrDiskFull           = errors.New("disk full")
	ErrNotFound           = errors.New("not found")
	ErrShuttingDown       = errors.New("shutting down")
)

var sentinels = map[Code]error{
	CodeUploadFailed:       ErrUploadFailed,
	CodeInvalidFormat:      ErrInvalidFormat,
	CodeFileTooLarge:       ErrFileTooLarge,
	CodeDuplicateID:        ErrDuplicateID,
	CodeNoFile:             ErrNoFile,
	CodeTranscodeFailed:    ErrTranscodeFailed,
	CodeFFmpegError:        ErrFFmpeg,
	CodeMetadataExtraction: ErrMetadataExtraction,
	CodeDiskFull:           ErrDiskFull,
	CodeNotFound:           ErrNotFound,
	CodeShuttingDown:       ErrShuttingDown,
}

// PipelineError carries the context a caller needs to report a failure: which upload,
// which video, at which stage, and why.
type PipelineError struct {
	Code     Code
	UploadID string
	VideoID  string
	Stage    Stage
	Err      error
}

// NewError wraps err with the given code. A nil err is replaced by the code's sentinel.
func NewError(code Code, err error) *PipelineError {
	if err == nil {
		err = sentinels[code]
	}
	return &PipelineError{Code: code, Err: err}
}

// Errorf is NewError with a formatted cause.
func Errorf(code Code, format string, a ...any) *PipelineError {
	return &PipelineError{Code: code, Err: fmt.Errorf(format, a...)}
}

func (e *PipelineError) Error() string {
	msg := string(e.Code)
	if e.UploadID != "" {
		msg += " upload=" + e.UploadID
	}
	if e.VideoID != "" {
		msg += " video=" + e.VideoID
	}
	if e.Stage != "" {
		msg += " stage=" + string(e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's code, so errors.Is(err, ErrDiskFull) works on wrapped values.
func (e *PipelineError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// Message returns the cause without the code prefix, for end users and events.
func (e *PipelineError) Message() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return e.Err.Error()
}

// WithUpload fills in identifiers that are not already set.
func (e *PipelineError) WithUpload(uploadID, videoID string) *PipelineError {
	if e.UploadID == "" {
		e.UploadID = uploadID
	}
	if e.VideoID == "" {
		e.VideoID = videoID
	}
	return e
}

// WithStage sets the stage if not already set.
func (e *PipelineError) WithStage(stage Stage) *PipelineError {
	if e.Stage == "" {
		e.Stage = stage
	}
	return e
}

// CodeOf returns the code of the first PipelineError in err's chain, falling back to sentinel matching.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	for code, s := range sentinels {
		if errors.Is(err, s) {
			return code
		}
	}
	return ""
}

// AsPipelineError returns err as a *PipelineError, wrapping it with fallback when it is not one.
func AsPipelineError(err error, fallback Code) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	if code := CodeOf(err); code != "" {
		return NewError(code, err)
	}
	return NewError(fallback, err)
}
