package browser

import (
	"io"
	"log/slog"
	"testing"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/humanize"
)

func TestHumanlyFollowsConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig().Humanize

	cfg.Enabled = true
	if p := (&Page{human: humanize.New(cfg, logger)}); !p.humanly() {
		t.Error("enabled humanizer should drive input")
	}

	cfg.Enabled = false
	if p := (&Page{human: humanize.New(cfg, logger)}); p.humanly() {
		t.Error("disabled humanizer should fall back to direct input")
	}

	if p := (&Page{}); p.humanly() {
		t.Error("page without a humanizer should use direct input")
	}
}
