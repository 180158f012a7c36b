package batch

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"cardpress/internal/render"
)

var unsafeName = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

// Filename builds the output name for the record at index (0-based). The
// template is interpolated against the record; a blank result falls back to
// image_<index+1>. The format extension is appended unless already present.
func Filename(tmpl string, record render.Record, index int, format render.Format) string {
	name := strings.TrimSpace(render.Interpolate(tmpl, record))
	name = unsafeName.Replace(norm.NFC.String(name))
	if name == "" || name == "." || name == ".." {
		name = fmt.Sprintf("image_%d", index+1)
	}

	ext := format.Extension()
	if !hasExtension(name, format) {
		name += ext
	}
	return name
}

func hasExtension(name string, format render.Format) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, format.Extension()) {
		return true
	}
	return format == render.FormatJPEG && strings.HasSuffix(lower, ".jpeg")
}

// Dedupe makes names unique by inserting _2, _3, ... before the extension of
// repeated names. The first occurrence keeps its name.
func Dedupe(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, n := range names {
		candidate := n
		if used[strings.ToLower(candidate)] {
			base, ext := splitExt(n)
			for k := 2; ; k++ {
				candidate = fmt.Sprintf("%s_%d%s", base, k, ext)
				if !used[strings.ToLower(candidate)] {
					break
				}
			}
		}
		used[strings.ToLower(candidate)] = true
		out[i] = candidate
	}
	return out
}

func splitExt(name string) (string, string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}
