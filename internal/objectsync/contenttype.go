package objectsync

import (
	"path"
	"strings"
)

// defaultContentType is used for every extension missing from contentTypes.
const defaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".html": "text/html",
	".txt":  "text/plain",
	".json": "application/json",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
	".css":  "text/css",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".map":  "binary/octet-stream",
}

// ContentType returns the Content-Type used when uploading key.
func ContentType(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return defaultContentType
}
