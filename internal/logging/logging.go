package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/dgplabs/dgpscan/internal/config"
)

// Setup points the standard logger at stdout plus a daily rotated file under
// cfg.Dir and returns the combined writer for the HTTP access log. Closing the
// returned closer releases the current log file.
func Setup(cfg config.LogConfig) (io.Writer, io.Closer, error) {
	if err := os.MkdirAll(cfg.Dir, os.ModePerm); err != nil {
		return nil, nil, fmt.Errorf("logging: create %s: %w", cfg.Dir, err)
	}

	rl, err := rotatelogs.New(
		filepath.Join(cfg.Dir, "dgpscan.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(cfg.Dir, "dgpscan.log")),
		rotatelogs.WithMaxAge(cfg.MaxAge),
		rotatelogs.WithRotationTime(cfg.RotationTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: rotate: %w", err)
	}

	var w io.Writer = rl
	if !cfg.Quiet {
		w = io.MultiWriter(os.Stdout, rl)
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return w, rl, nil
}
