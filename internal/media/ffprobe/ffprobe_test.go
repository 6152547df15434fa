package ffprobe

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sampleOutput = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "duration": "12.000"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"filename": "clip.mp4", "duration": "12.480", "format_name": "mov,mp4"}
}`

func TestParseHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleOutput))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.DurationSeconds() != 12.48 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if res := result.Resolution(); res.Width != 1280 || res.Height != 720 {
		t.Fatalf("unexpected resolution: %v", res)
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Duration: "9.5"}},
		Format:  Format{Duration: "N/A"},
	}
	if result.DurationSeconds() != 9.5 {
		t.Fatalf("expected stream duration, got %v", result.DurationSeconds())
	}
	if d := (Result{Format: Format{Duration: "bad"}}).DurationSeconds(); !math.IsNaN(d) {
		t.Fatalf("expected NaN, got %v", d)
	}
}

func TestLocalPath(t *testing.T) {
	cases := map[string]string{
		"/media/clip.mp4":              "/media/clip.mp4",
		"/media/clip.mp4#t=0,4":        "/media/clip.mp4",
		"file:///media/clip.mp4#t=4,8": "/media/clip.mp4",
	}
	for in, want := range cases {
		got, err := LocalPath(in)
		if err != nil || got != want {
			t.Fatalf("LocalPath(%q) = %q, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "#t=0,1", "https://example.com/clip.mp4", "file://"} {
		if _, err := LocalPath(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func writeStub(t *testing.T, output string) string {
	t.Helper()
	dir := t.TempDir()
	payload := filepath.Join(dir, "probe.json")
	if err := os.WriteFile(payload, []byte(output), 0o644); err != nil {
		t.Fatal(err)
	}
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat " + payload + "\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return stub
}

func TestProberUsesBinaryOutput(t *testing.T) {
	prober := Prober{Binary: writeStub(t, sampleOutput)}
	d, err := prober.Probe(context.Background(), "file:///media/clip.mp4")
	if err != nil || d != 12.48 {
		t.Fatalf("Probe = %v, %v", d, err)
	}

	audioOnly := Prober{Binary: writeStub(t, `{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`)}
	if _, err := audioOnly.Probe(context.Background(), "/media/song.m4a"); !errors.Is(err, ErrNoVideo) {
		t.Fatalf("expected ErrNoVideo, got %v", err)
	}
}

func TestProberReportsMissingBinary(t *testing.T) {
	prober := Prober{Binary: filepath.Join(t.TempDir(), "missing-ffprobe")}
	if _, err := prober.Probe(context.Background(), "/media/clip.mp4"); err == nil {
		t.Fatal("expected missing binary to fail")
	}
}
