package storage

import "github.com/wa-platform/core/pkg/apperror"

// ErrNotFound is returned by every repository's single-record lookup when
// gorm reports ErrRecordNotFound, translated into the shared error kind
// middleware.Recovery already knows how to map to a 404.
var ErrNotFound = apperror.NotFound("record not found")
