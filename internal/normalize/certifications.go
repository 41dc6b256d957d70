package normalize

import (
	"sort"
	"strings"
)

// Header labels that appear above certification blocks on profile pages.
// Lines matching these exactly, or prefixed by them, carry no data.
var certHeaderLabels = []string{
	"Certifications & Awards",
	"Certifications and Awards",
	"Certifications",
	"Awards",
	"Award",
	"Certification",
}

// Certifications cleans a raw certification list: multi-line blocks are split,
// header labels and short fragments dropped, duplicates removed, and the
// result sorted lexicographically for stable storage.
func Certifications(raw []string) []string {
	if len(raw) == 0 {
		return []string{}
	}

	seen := make(map[string]struct{})

	for _, block := range raw {
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || isHeaderLabel(line) {
				continue
			}

			for _, label := range certHeaderLabels {
				if rest, ok := strings.CutPrefix(line, label+":"); ok {
					line = strings.TrimSpace(rest)
					break
				}
			}

			if len(line) > 3 && !isHeaderLabel(line) {
				seen[line] = struct{}{}
			}
		}
	}

	cleaned := make([]string, 0, len(seen))
	for cert := range seen {
		cleaned = append(cleaned, cert)
	}
	sort.Strings(cleaned)
	return cleaned
}

func isHeaderLabel(line string) bool {
	for _, label := range certHeaderLabels {
		if line == label {
			return true
		}
	}
	return false
}
