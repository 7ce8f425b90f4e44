// Package domain contains the core domain models for the whisper-vault service.
package domain

import "errors"

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidState is returned when an operation is attempted against an
// entity whose current status does not permit it (e.g. publishing a
// confession that is not approved).
var ErrInvalidState = errors.New("invalid state for operation")

// ErrUnknownPlatform is returned when a platform identifier does not map to
// a supported platform.
var ErrUnknownPlatform = errors.New("unknown platform")

// ErrPlatformNotInJob is returned when a dispatch result references a
// platform outside the job's fixed platform set. This indicates a
// programming error; the job is aborted with a diagnostic.
var ErrPlatformNotInJob = errors.New("platform not in job platform set")

// ErrInvalidConfession is returned when creating a confession with invalid fields.
var ErrInvalidConfession = errors.New("invalid confession")

// ErrInvalidPublishJob is returned when creating a publish job with invalid fields.
var ErrInvalidPublishJob = errors.New("invalid publish job")

// ErrDuplicateContent is returned when identical confession content was
// already submitted recently.
var ErrDuplicateContent = errors.New("duplicate confession content")
