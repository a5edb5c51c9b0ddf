package platform

import (
	"fmt"
	"strconv"
	"strings"
)

type Platform string

const (
	TikTok         Platform = "tiktok"
	YouTube        Platform = "youtube"
	YouTubeShorts  Platform = "youtube_shorts"
	Instagram      Platform = "instagram"
	InstagramReels Platform = "instagram_reels"
	Facebook       Platform = "facebook"
)

const Default = TikTok

type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// AspectRatio is the width:height ratio in the form the video services expect.
func (d Dimensions) AspectRatio() string {
	g := gcd(d.Width, d.Height)
	if g == 0 {
		return "0:0"
	}
	return fmt.Sprintf("%d:%d", d.Width/g, d.Height/g)
}

var dimensions = map[Platform]Dimensions{
	TikTok:         {Width: 720, Height: 1280},
	YouTube:        {Width: 1280, Height: 720},
	YouTubeShorts:  {Width: 720, Height: 1280},
	Instagram:      {Width: 1080, Height: 1080},
	InstagramReels: {Width: 720, Height: 1280},
	Facebook:       {Width: 1280, Height: 720},
}

var aliases = map[string]Platform{
	"tiktok":          TikTok,
	"youtube":         YouTube,
	"youtube_shorts":  YouTubeShorts,
	"youtube-shorts":  YouTubeShorts,
	"shorts":          YouTubeShorts,
	"instagram":       Instagram,
	"instagram_reels": InstagramReels,
	"instagram-reels": InstagramReels,
	"reels":           InstagramReels,
	"facebook":        Facebook,
}

// Parse maps a user supplied platform name to a Platform. Names are case
// insensitive; unknown names are an error.
func Parse(name string) (Platform, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Default, nil
	}
	if p, ok := aliases[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", name)
}

func (p Platform) Dimensions() Dimensions {
	if d, ok := dimensions[p]; ok {
		return d
	}
	return dimensions[Default]
}

func (p Platform) Valid() bool {
	_, ok := dimensions[p]
	return ok
}

// All returns every supported platform in a stable order.
func All() []Platform {
	return []Platform{TikTok, YouTube, YouTubeShorts, Instagram, InstagramReels, Facebook}
}

// ParseResolution parses a "WIDTHxHEIGHT" string, falling back to the default
// platform dimensions when it is malformed.
func ParseResolution(res string) Dimensions {
	parts := strings.Split(strings.ToLower(res), "x")
	if len(parts) != 2 {
		return Default.Dimensions()
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return Default.Dimensions()
	}
	return Dimensions{Width: w, Height: h}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
