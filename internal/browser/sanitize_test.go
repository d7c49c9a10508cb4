package browser

import (
	"strings"
	"testing"
)

func TestSanitizeStripsActiveContent(t *testing.T) {
	in := `<html><head><style>body{}</style></head><body>
		<script>alert(1)</script>
		<noscript>fallback</noscript>
		<div onclick="steal()" data-track="x" data-price="19.99" data-itemid="abc" class="item">
			<a href="/p/1" onmouseover="x()">Widget</a>
		</div>
	</body></html>`

	out, err := Sanitize(in)
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}

	for _, banned := range []string{"<script", "<style", "<noscript", "onclick", "onmouseover", "data-track"} {
		if strings.Contains(out, banned) {
			t.Fatalf("sanitized output still contains %q:\n%s", banned, out)
		}
	}
	for _, kept := range []string{`data-price="19.99"`, `data-itemid="abc"`, `class="item"`, `href="/p/1"`, "Widget"} {
		if !strings.Contains(out, kept) {
			t.Fatalf("sanitized output lost %q:\n%s", kept, out)
		}
	}
}

func TestDetectChallenge(t *testing.T) {
	if phrase := detectChallenge("<html><body>Please VERIFY you are a HUMAN</body></html>"); phrase == "" {
		t.Fatal("challenge not detected")
	}
	if phrase := detectChallenge("<html><body>Birthday list</body></html>"); phrase != "" {
		t.Fatalf("false positive: %q", phrase)
	}
}
