// Package pairing publishes the session pairing code as a terminal QR and as
// a PNG served from the public directory.
package pairing

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	qrcode "github.com/skip2/go-qrcode"
)

// ImageName is the file written into the public directory.
const ImageName = "qrcode.png"

const imageSize = 256

// Publisher renders pairing codes.
type Publisher struct {
	PublicDir string
	BaseURL   string
	Out       io.Writer // terminal QR destination; nil disables it

	mu   sync.Mutex
	last string
}

// Publish writes code to <PublicDir>/qrcode.png, prints it to Out and returns
// the URL the image is served at.
func (p *Publisher) Publish(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty pairing code")
	}
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encoding pairing code: %w", err)
	}

	if p.Out != nil {
		fmt.Fprintln(p.Out, "Scan this code with WhatsApp (Linked devices):")
		fmt.Fprint(p.Out, qr.ToSmallString(false))
	}

	if err := os.MkdirAll(p.PublicDir, 0755); err != nil {
		return "", fmt.Errorf("creating public dir: %w", err)
	}
	if err := qr.WriteFile(imageSize, p.ImagePath()); err != nil {
		return "", fmt.Errorf("writing %s: %w", ImageName, err)
	}

	p.mu.Lock()
	p.last = code
	p.mu.Unlock()
	return p.URL(), nil
}

// Published reports whether a code has been published since the last Clear.
func (p *Publisher) Published() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last != ""
}

// Clear forgets the published code and removes the image once the session is
// paired.
func (p *Publisher) Clear() error {
	p.mu.Lock()
	p.last = ""
	p.mu.Unlock()
	if err := os.Remove(p.ImagePath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ImagePath is the on-disk location of the PNG.
func (p *Publisher) ImagePath() string {
	return filepath.Join(p.PublicDir, ImageName)
}

// URL is where the PNG is reachable over HTTP.
func (p *Publisher) URL() string {
	return strings.TrimRight(p.BaseURL, "/") + "/" + ImageName
}

// BaseURL picks the externally reachable address of the web server:
// configured, then RENDER_EXTERNAL_URL, then FLY_APP_URL, then localhost.
func BaseURL(configured string, port int) string {
	for _, v := range []string{configured, os.Getenv("RENDER_EXTERNAL_URL"), os.Getenv("FLY_APP_URL")} {
		if v = strings.TrimSpace(v); v != "" {
			return strings.TrimRight(v, "/")
		}
	}
	return fmt.Sprintf("http://localhost:%d", port)
}
