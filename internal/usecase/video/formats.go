package video

import (
	"path/filepath"
	"strings"
)

var mimeTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4v":  "video/x-m4v",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
	"avi":  "video/x-msvideo",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
	"ts":   "video/mp2t",
	"flv":  "video/x-flv",
	"wmv":  "video/x-ms-wmv",
	"3gp":  "video/3gpp",
}

// FormatOf returns the lowercase extension of name without its dot.
func FormatOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func MimeTypeOf(format string) string {
	if mt, ok := mimeTypes[format]; ok {
		return mt
	}
	return "application/octet-stream"
}
