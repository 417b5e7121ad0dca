package publish

import (
	"regexp"
	"strings"

	appbsky "github.com/bluesky-social/indigo/api/bsky"
)

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// linkFacets marks every http(s) URL in text as a link. Indexes are UTF-8
// byte offsets.
func linkFacets(text string) []*appbsky.RichtextFacet {
	var facets []*appbsky.RichtextFacet
	for _, loc := range linkPattern.FindAllStringIndex(text, -1) {
		uri := strings.TrimRight(text[loc[0]:loc[1]], `.,;:!?)]}'"…`)
		if len(uri) <= len("https://") {
			continue
		}
		facets = append(facets, &appbsky.RichtextFacet{
			Features: []*appbsky.RichtextFacet_Features_Elem{
				{RichtextFacet_Link: &appbsky.RichtextFacet_Link{Uri: uri}},
			},
			Index: &appbsky.RichtextFacet_ByteSlice{
				ByteStart: int64(loc[0]),
				ByteEnd:   int64(loc[0] + len(uri)),
			},
		})
	}
	return facets
}
