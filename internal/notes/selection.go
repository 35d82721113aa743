package notes

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nhle/notafiscal/internal/model"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// baseKey normalizes a filename to its lowercase stem with everything but
// ASCII letters and digits removed, so "NFe-123.pdf" and "nfe_123.xml"
// collide.
func baseKey(filename string) string {
	lower := strings.ToLower(filename)
	stem := strings.TrimSuffix(lower, filepath.Ext(lower))
	return nonAlnum.ReplaceAllString(stem, "")
}

// PreferXML collapses selections that share a UID and base name. When a
// group holds an XML document it is kept instead of its DANFE PDF;
// otherwise the first entry of the group is kept. Group order follows the
// first appearance of each group.
func PreferXML(selections []model.Selection) []model.Selection {
	type groupKey struct{ uid, base string }

	var order []groupKey
	groups := make(map[groupKey][]model.Selection)
	for _, s := range selections {
		k := groupKey{uid: s.UID, base: baseKey(s.Filename)}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	out := make([]model.Selection, 0, len(order))
	for _, k := range order {
		group := groups[k]
		chosen := group[0]
		for _, s := range group {
			if isXML(s) {
				chosen = s
				break
			}
		}
		out = append(out, chosen)
	}
	return out
}

func isXML(s model.Selection) bool {
	return strings.EqualFold(string(s.Kind), string(model.KindXML)) ||
		model.KindFromFilename(s.Filename) == model.KindXML
}
