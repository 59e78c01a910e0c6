package integration

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/AlexRogalskiy/turborepo/internal/cli"
	"github.com/AlexRogalskiy/turborepo/internal/version"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	code := cli.Execute(context.Background(), []string{"version"}, cli.Streams{Out: &stdout, Err: &stderr})
	if code != 0 {
		t.Fatalf("version exited %d: %s", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != version.String() {
		t.Errorf("expected %q, got %q", version.String(), got)
	}
}
