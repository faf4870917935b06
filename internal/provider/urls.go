package provider

import (
	"net/url"
	"strings"
)

// ExtractVideoID pulls the provider video id out of a URL. Query-string
// forms are checked first, then the known path-segment forms. Returns the
// empty string when nothing matches.
func ExtractVideoID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	if v := u.Query().Get("v"); v != "" {
		return stripTrailing(v)
	}

	path := u.Path
	for _, prefix := range []string{"/v/", "/embed/", "/shorts/"} {
		if idx := strings.Index(path, prefix); idx >= 0 {
			return firstSegment(path[idx+len(prefix):])
		}
	}

	// Legacy hash-bang player URLs: /#p/u/1/<id>
	if frag := u.Fragment; strings.HasPrefix(frag, "p/") {
		parts := strings.Split(frag, "/")
		if len(parts) > 0 {
			return stripTrailing(parts[len(parts)-1])
		}
	}

	if strings.Contains(u.Host, "youtu.be") {
		return firstSegment(strings.TrimPrefix(path, "/"))
	}

	return ""
}

// ChannelPlaylistsURL builds the playlists-tab URL for a channel id
func ChannelPlaylistsURL(channelID string) string {
	return "https://www.youtube.com/channel/" + channelID + "/playlists"
}

// ExtractPlaylistID pulls the provider playlist id out of a URL
func ExtractPlaylistID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if list := u.Query().Get("list"); list != "" {
		return stripTrailing(list)
	}
	if idx := strings.Index(u.Path, "/playlist/"); idx >= 0 {
		return firstSegment(u.Path[idx+len("/playlist/"):])
	}
	return ""
}

func firstSegment(s string) string {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = s[:idx]
	}
	return stripTrailing(s)
}

// stripTrailing removes timestamp fragments and stray query leftovers that
// survive naive URL splitting.
func stripTrailing(s string) string {
	for _, sep := range []string{"#t=", "#", "&", "?"} {
		if idx := strings.Index(s, sep); idx >= 0 {
			s = s[:idx]
		}
	}
	return s
}
