package platform

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Platform
		wantErr bool
	}{
		{name: "tiktok", input: "TikTok", want: TikTok},
		{name: "shortsAlias", input: "shorts", want: YouTubeShorts},
		{name: "reelsAlias", input: " Reels ", want: InstagramReels},
		{name: "emptyDefaults", input: "", want: Default},
		{name: "unknown", input: "myspace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDimensions(t *testing.T) {
	tests := []struct {
		platform Platform
		want     Dimensions
		ratio    string
	}{
		{TikTok, Dimensions{720, 1280}, "9:16"},
		{YouTube, Dimensions{1280, 720}, "16:9"},
		{Instagram, Dimensions{1080, 1080}, "1:1"},
		{Platform("unknown"), Dimensions{720, 1280}, "9:16"},
	}

	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			got := tt.platform.Dimensions()
			if got != tt.want {
				t.Errorf("Dimensions() = %v, want %v", got, tt.want)
			}
			if got.AspectRatio() != tt.ratio {
				t.Errorf("AspectRatio() = %q, want %q", got.AspectRatio(), tt.ratio)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input string
		want  Dimensions
	}{
		{"1080x1920", Dimensions{1080, 1920}},
		{"640X480", Dimensions{640, 480}},
		{"garbage", Default.Dimensions()},
		{"0x100", Default.Dimensions()},
		{"axb", Default.Dimensions()},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseResolution(tt.input); got != tt.want {
				t.Errorf("ParseResolution(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
