package provider

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// contentType sniffs the MIME type of the file at localPath for the
// Content-Type header of an upload.
func contentType(localPath string) string {
	mtype, err := mimetype.DetectFile(localPath)
	if err != nil {
		return defaultContentType
	}
	return mtype.String()
}

// JoinKey joins object key segments with forward slashes and drops any
// leading slash, whatever the host path separator.
func JoinKey(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}
