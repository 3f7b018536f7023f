package platform

import (
	"os/exec"
	"runtime"
)

// OpenBrowser opens the given URL in the user's default browser. Failures
// are ignored; the console URL is printed at startup either way.
func OpenBrowser(url string) {
	switch runtime.GOOS {
	case "darwin":
		exec.Command("open", url).Start()
	case "linux":
		exec.Command("xdg-open", url).Start()
	case "windows":
		exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	}
}
