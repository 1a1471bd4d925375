package batch

import (
	"path/filepath"
	"strconv"
	"strings"
)

// VariantFilename derives the output name of image idx from the base name by
// inserting "_{idx}" before the last extension, or appending "_{idx}.png"
// when there is none.
func VariantFilename(base string, idx int) string {
	suffix := "_" + strconv.Itoa(idx)
	ext := filepath.Ext(base)
	if ext == "" || ext == "." {
		return strings.TrimSuffix(base, ".") + suffix + ".png"
	}
	return strings.TrimSuffix(base, ext) + suffix + ext
}
