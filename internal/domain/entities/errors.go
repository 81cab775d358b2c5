package entities

import "errors"

var (
	// ErrMalformedExtraction means extractor output could not be parsed into
	// candidate characters. The whole chapter is rejected.
	ErrMalformedExtraction = errors.New("malformed extraction output")

	// ErrNotFound means a referenced book, chapter or character does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCrossBookMerge means a merge was requested across two books.
	ErrCrossBookMerge = errors.New("cannot merge characters from different books")

	// ErrSelfMerge means a merge was requested with source equal to target.
	ErrSelfMerge = errors.New("cannot merge a character into itself")

	// ErrAnalysisInProgress means another analysis for the same book is running.
	ErrAnalysisInProgress = errors.New("analysis already in progress for this book")

	// ErrInvalidChapter means a chapter number is not a positive integer.
	ErrInvalidChapter = errors.New("chapter number must be positive")
)
