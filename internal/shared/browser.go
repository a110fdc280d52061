package shared

import (
	"os/exec"
	"runtime"

	"github.com/cockroachdb/errors"
)

var getRuntime = func() string { return runtime.GOOS }

// OpenBrowser opens the default system browser to the authorization URL.
//
// Supports macOS, Linux, and Windows platforms. The launcher is started and not waited on.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch rt := getRuntime(); rt {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return errors.Newf("unsupported platform: %s", rt)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to open browser")
	}
	return nil
}
