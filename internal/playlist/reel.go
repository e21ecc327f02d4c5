package playlist

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
)

// DefaultEntryDuration is used for projects with no known running time.
const DefaultEntryDuration = 30.0

// Reel renders the whole rotation as a VOD playlist that starts at the
// currently featured project. Entries point at the video endpoint under
// baseURL, which may be empty for relative URIs.
func (r *Rotation) Reel(baseURL string) (string, error) {
	r.mu.RLock()
	projects := r.windowFrom(r.position, len(r.projects))
	r.mu.RUnlock()

	capacity := uint(len(projects))
	if capacity == 0 {
		capacity = 1
	}

	p, err := m3u8.NewMediaPlaylist(0, capacity)
	if err != nil {
		return "", fmt.Errorf("create reel playlist: %w", err)
	}
	p.MediaType = m3u8.VOD

	base := strings.TrimRight(baseURL, "/")
	for _, proj := range projects {
		duration := proj.Duration
		if duration <= 0 {
			duration = DefaultEntryDuration
		}
		uri := base + "/video/" + url.PathEscape(proj.VideoID)
		if err := p.Append(uri, duration, entryTitle(proj.Title)); err != nil {
			return "", fmt.Errorf("append %q to reel: %w", proj.ID, err)
		}
	}
	p.Close()

	return p.String(), nil
}

// entryTitle keeps a title on its #EXTINF line.
func entryTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
