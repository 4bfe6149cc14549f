package certs

import (
	"errors"
	"fmt"
)

// Kind classifies a per-record failure
type Kind string

const (
	KindMissingTemplate        Kind = "MissingTemplate"
	KindInvalidBackgroundImage Kind = "InvalidBackgroundImage"
	KindMissingFieldPositions  Kind = "MissingFieldPositions"
	KindMissingRecordData      Kind = "MissingRecordData"
	KindRenderIOFailure        Kind = "RenderIOFailure"
	KindArchiveWriteFailure    Kind = "ArchiveWriteFailure"
)

// Retryable - only canvas/file-system failures get the single regeneration
func (k Kind) Retryable() bool {
	return k == KindRenderIOFailure
}

// Recoverable - whether an already rendered file may stand in for the failed render
func (k Kind) Recoverable() bool {
	return k != KindMissingRecordData && k != ""
}

type Error struct {
	Kind     Kind
	RecordID string // empty when not bound to a record
	Err      error
}

func NewError(kind Kind, recordID string, err error) *Error {
	return &Error{Kind: kind, RecordID: recordID, Err: err}
}

func (e *Error) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: record %s: %v", e.Kind, e.RecordID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, so errors.Is(err, certs.ErrMissingTemplate) works
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.RecordID == "" && t.Err == nil
	}
	return false
}

// Kind sentinels for errors.Is
var (
	ErrMissingTemplate        = &Error{Kind: KindMissingTemplate}
	ErrInvalidBackgroundImage = &Error{Kind: KindInvalidBackgroundImage}
	ErrMissingFieldPositions  = &Error{Kind: KindMissingFieldPositions}
	ErrMissingRecordData      = &Error{Kind: KindMissingRecordData}
	ErrRenderIOFailure        = &Error{Kind: KindRenderIOFailure}
	ErrArchiveWriteFailure    = &Error{Kind: KindArchiveWriteFailure}
)

// KindOf extracts the Kind of err. Unclassified errors are RenderIOFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRenderIOFailure
}

// WithRecord returns err bound to recordID, keeping its kind
func WithRecord(err error, recordID string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.RecordID == recordID {
			return err
		}
		return &Error{Kind: e.Kind, RecordID: recordID, Err: e.Err}
	}
	return &Error{Kind: KindRenderIOFailure, RecordID: recordID, Err: err}
}
