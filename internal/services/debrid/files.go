package debrid

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".webm": true,
	".flv": true, ".m4v": true, ".wmv": true, ".ts": true, ".m2ts": true,
}

var archiveExtensions = map[string]bool{
	".rar": true, ".zip": true, ".7z": true, ".tar": true, ".gz": true,
}

var (
	episodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)s(\d{1,2})[ ._-]?e(\d{1,3})`),
		regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(\d{1,2})x(\d{2,3})(?:[^0-9]|$)`),
	}
	extrasPattern = regexp.MustCompile(`(?i)(^|[^a-z])(samples?|trailers?|featurettes?|extras?)([^a-z]|$)`)
)

// fileCandidate is one file of a provider cache, in provider-neutral form
type fileCandidate struct {
	ID   string
	Path string
	Size int64
	Link string
}

func isVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}

func isArchiveFile(name string) bool {
	return archiveExtensions[strings.ToLower(path.Ext(name))]
}

func isPlayable(name string) bool {
	return isVideoFile(name) && !isArchiveFile(name) && !extrasPattern.MatchString(name)
}

// parseEpisode extracts season and episode numbers from a release file path
func parseEpisode(name string) (season, episode int, ok bool) {
	base := path.Base(name)
	for _, re := range episodePatterns {
		m := re.FindStringSubmatch(base)
		if len(m) < 3 {
			continue
		}
		s, err1 := strconv.Atoi(m[1])
		e, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			return s, e, true
		}
	}
	return 0, 0, false
}

// selectFile picks the file matching the selector, largest first. Archives,
// samples and non-video files are never selected.
func selectFile(files []fileCandidate, sel FileSelector) (fileCandidate, error) {
	var best *fileCandidate
	for i := range files {
		f := &files[i]
		if !isPlayable(f.Path) {
			continue
		}
		if sel.IsEpisode() {
			s, e, ok := parseEpisode(f.Path)
			if !ok || e != sel.Episode || (sel.Season > 0 && s != sel.Season) {
				continue
			}
		}
		if best == nil || f.Size > best.Size {
			best = f
		}
	}
	if best == nil {
		return fileCandidate{}, ErrNoPlayableFile
	}
	return *best, nil
}
