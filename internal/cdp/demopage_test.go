package cdp

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDemoPageHTML(t *testing.T) {
	expectedStrings := []string{
		"<!DOCTYPE html>",
		"<title>tts_inspect Demo</title>",
		`class="screen active"`,
		"window.ttsUI",
		"ttsService",
		"getActiveScreen()",
		"getCurrentScreenSummary()",
		"extractReadableText(el)",
		"speak(text, language)",
		"testCurrentScreen()",
		"pipelineCache",
		"new CustomEvent('screenChanged', { detail: { screenId: id } })",
	}

	for _, expected := range expectedStrings {
		if !strings.Contains(DemoPageHTML, expected) {
			t.Errorf("DemoPageHTML should contain %q", expected)
		}
	}
}

func TestDemoPageURL(t *testing.T) {
	u := DemoPageURL()

	const prefix = "data:text/html;base64,"
	if !strings.HasPrefix(u, prefix) {
		t.Fatalf("expected %q prefix, got %q", prefix, u[:min(len(u), 40)])
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(u, prefix))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if string(decoded) != DemoPageHTML {
		t.Error("decoded demo page does not match DemoPageHTML")
	}
}
