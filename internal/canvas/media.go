package canvas

import (
	"net/url"
	"path"
	"strings"
)

type MediaKind string

const (
	MediaFrame      MediaKind = "frame"
	MediaVideo      MediaKind = "video"
	MediaImage      MediaKind = "image"
	MediaScene3D    MediaKind = "scene-3d"
	MediaSolidModel MediaKind = "solid-model"
	MediaWebpage    MediaKind = "webpage"
)

// Media is the single rich payload a surface's media pane can hold. Source is
// a URL for frame, video and image, and inline code or markup otherwise.
type Media struct {
	Kind   MediaKind `json:"kind"`
	Source string    `json:"source"`
}

// IsCode reports whether Source is executable code rather than a URL.
func (k MediaKind) IsCode() bool {
	return k == MediaScene3D || k == MediaSolidModel || k == MediaWebpage
}

var mediaAliases = map[string]MediaKind{
	"frame":       MediaFrame,
	"iframe":      MediaFrame,
	"url":         MediaFrame,
	"link":        MediaFrame,
	"video":       MediaVideo,
	"youtube":     MediaVideo,
	"vimeo":       MediaVideo,
	"image":       MediaImage,
	"img":         MediaImage,
	"scene-3d":    MediaScene3D,
	"threejs":     MediaScene3D,
	"three":       MediaScene3D,
	"3d":          MediaScene3D,
	"solid-model": MediaSolidModel,
	"manifold":    MediaSolidModel,
	"webpage":     MediaWebpage,
	"html":        MediaWebpage,
}

// ParseMediaKind maps the type names agents use onto a MediaKind.
func ParseMediaKind(s string) (MediaKind, bool) {
	k, ok := mediaAliases[normalize(s)]
	return k, ok
}

var videoExts = map[string]bool{".mp4": true, ".webm": true, ".mov": true}

// IsVideoURL reports whether raw points at a known video host or a direct
// video file.
func IsVideoURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch host {
	case "youtube.com":
		return youtubeID(u) != ""
	case "youtu.be":
		return strings.Trim(u.Path, "/") != ""
	case "vimeo.com", "player.vimeo.com":
		return vimeoID(u) != ""
	}
	return videoExts[strings.ToLower(path.Ext(u.Path))]
}

// EmbedURL rewrites watch links into their embeddable form. Other URLs are
// returned unchanged.
func EmbedURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch host {
	case "youtube.com":
		if id := youtubeID(u); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	case "vimeo.com":
		if id := vimeoID(u); id != "" {
			return "https://player.vimeo.com/video/" + id
		}
	}
	return raw
}

func youtubeID(u *url.URL) string {
	if v := u.Query().Get("v"); v != "" && u.Path == "/watch" {
		return v
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
		return parts[1]
	}
	return ""
}

func vimeoID(u *url.URL) string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := parts[len(parts)-1]
	if last == "" {
		return ""
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return last
}

// ClassifyPreview decides what a preview puts in the media pane.
func ClassifyPreview(p Preview) (*Media, error) {
	kind, known := ParseMediaKind(p.Type)
	if code := strings.TrimSpace(p.Code); code != "" {
		if !known || !kind.IsCode() {
			kind = MediaScene3D
		}
		return &Media{Kind: kind, Source: p.Code}, nil
	}

	link := strings.TrimSpace(p.URL)
	if link == "" {
		return nil, ErrEmptyPreview
	}
	switch {
	case IsVideoURL(link), known && kind == MediaVideo:
		return &Media{Kind: MediaVideo, Source: EmbedURL(link)}, nil
	case known && kind == MediaImage:
		return &Media{Kind: MediaImage, Source: link}, nil
	default:
		return &Media{Kind: MediaFrame, Source: link}, nil
	}
}

// Placement says where an add_block lands on a surface.
type Placement int

const (
	PlaceText Placement = iota
	PlaceImage
	PlaceCode
	PlaceMedia
)

// ClassifyBlock decides whether a block appends to the text body or replaces
// the media pane. Text and image blocks never touch media, and media blocks
// never touch text.
func ClassifyBlock(b Block) (Placement, *Media) {
	switch t := normalize(b.Type); t {
	case "", "text", "md", "markdown", "note":
		if link := strings.TrimSpace(b.Body); !strings.ContainsAny(link, " \n") && IsVideoURL(link) {
			return PlaceMedia, &Media{Kind: MediaVideo, Source: EmbedURL(link)}
		}
		return PlaceText, nil
	case "image", "img":
		return PlaceImage, nil
	case "code":
		return PlaceCode, nil
	default:
		kind, ok := ParseMediaKind(t)
		if !ok {
			return PlaceCode, nil
		}
		if kind == MediaImage {
			return PlaceImage, nil
		}
		src := b.Body
		if !kind.IsCode() {
			src = strings.TrimSpace(src)
			if kind == MediaVideo || IsVideoURL(src) {
				return PlaceMedia, &Media{Kind: MediaVideo, Source: EmbedURL(src)}
			}
		}
		return PlaceMedia, &Media{Kind: kind, Source: src}
	}
}
