package oauth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser launches the platform browser opener for the given URL and
// returns without waiting for the process. Callers that print the URL for
// manual opening do so through FlowConfig.OnAuthURL before this runs.
func OpenBrowser(url string) error {
	var name string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "cmd", []string{"/c", "start"}
	case "linux":
		name = "xdg-open"
	default:
		return fmt.Errorf("no browser opener for %s", runtime.GOOS)
	}
	args = append(args, url)

	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
