// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotsync/internal/services"
)

// NoSleep skips backoff delays while still honouring cancellation.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}

// NewFakeClient builds a [services.Client] over f that never sleeps.
func NewFakeClient(f *FakeSpotify, opts ...services.ClientOption) *services.Client {
	base := []services.ClientOption{services.WithSleep(NoSleep), services.WithLogger(DiscardLogger())}
	return services.NewClient(f, append(base, opts...)...)
}

// NewFakeSession authorizes identity against f without a handshake.
func NewFakeSession(identity string, f *FakeSpotify, opts ...services.ClientOption) *services.AuthSession {
	user := services.SpotifyUser{ID: f.UserID, DisplayName: f.UserID}
	return services.NewAuthSession(identity, user, services.NewSpotifyService(NewFakeClient(f, opts...), services.WithImageFetcher(f)))
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
