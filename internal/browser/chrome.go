package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// BrowserKind identifies the type of Chromium-based browser.
type BrowserKind string

const (
	BrowserChrome   BrowserKind = "chrome"
	BrowserBrave    BrowserKind = "brave"
	BrowserEdge     BrowserKind = "edge"
	BrowserChromium BrowserKind = "chromium"
	BrowserCustom   BrowserKind = "custom"
)

// BrowserExecutable represents a found browser binary.
type BrowserExecutable struct {
	Kind BrowserKind
	Path string
}

// LaunchSpec describes how to start the browser daemon.
type LaunchSpec struct {
	ExecutablePath string
	CDPPort        int
	UserDataDir    string
	Headless       bool
	NoSandbox      bool
	ExtraArgs      []string
	StartURL       string

	// LogPath receives the daemon's stdout and stderr. Empty discards them.
	LogPath string
}

type candidate struct {
	kind BrowserKind
	path string
}

// FindChromeExecutable finds a Chrome/Chromium browser on the system.
// A non-empty customPath must exist and is used as-is.
func FindChromeExecutable(customPath string) (*BrowserExecutable, error) {
	if customPath != "" {
		if !fileExists(customPath) {
			return nil, fmt.Errorf("browser executable not found: %s", customPath)
		}
		return &BrowserExecutable{Kind: BrowserCustom, Path: customPath}, nil
	}

	var candidates []candidate
	switch runtime.GOOS {
	case "darwin":
		candidates = macCandidates()
	case "linux":
		candidates = linuxCandidates()
	case "windows":
		candidates = windowsCandidates()
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	for _, c := range candidates {
		if fileExists(c.path) {
			return &BrowserExecutable{Kind: c.kind, Path: c.path}, nil
		}
	}

	// Last chance: whatever is on PATH.
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return &BrowserExecutable{Kind: BrowserChromium, Path: p}, nil
		}
	}

	return nil, fmt.Errorf("no supported browser found (Chrome/Brave/Edge/Chromium)")
}

// BuildArgs returns the command line for a detached daemon serving CDP on spec.CDPPort.
func BuildArgs(spec LaunchSpec) []string {
	port := spec.CDPPort
	if port == 0 {
		port = DefaultCDPPort
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-component-update",
		"--disable-features=Translate,MediaRouter",
		"--disable-session-crashed-bubble",
		"--hide-crash-restore-bubble",
		"--password-store=basic",
	}
	if spec.UserDataDir != "" {
		args = append(args, "--user-data-dir="+spec.UserDataDir)
	}

	if spec.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	if spec.NoSandbox {
		args = append(args, "--no-sandbox", "--disable-setuid-sandbox")
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--disable-dev-shm-usage")
	}

	args = append(args, spec.ExtraArgs...)

	// Always open a tab so a page target exists.
	start := spec.StartURL
	if start == "" {
		start = "about:blank"
	}
	return append(args, start)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func macCandidates() []candidate {
	home := os.Getenv("HOME")
	apps := []struct {
		kind BrowserKind
		app  string
	}{
		{BrowserChrome, "Google Chrome.app/Contents/MacOS/Google Chrome"},
		{BrowserBrave, "Brave Browser.app/Contents/MacOS/Brave Browser"},
		{BrowserEdge, "Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		{BrowserChromium, "Chromium.app/Contents/MacOS/Chromium"},
	}

	var out []candidate
	for _, a := range apps {
		out = append(out,
			candidate{a.kind, filepath.Join("/Applications", a.app)},
			candidate{a.kind, filepath.Join(home, "Applications", a.app)},
		)
	}
	return out
}

func linuxCandidates() []candidate {
	return []candidate{
		{BrowserChrome, "/usr/bin/google-chrome"},
		{BrowserChrome, "/usr/bin/google-chrome-stable"},
		{BrowserChrome, "/usr/bin/chrome"},
		{BrowserBrave, "/usr/bin/brave-browser"},
		{BrowserBrave, "/usr/bin/brave"},
		{BrowserEdge, "/usr/bin/microsoft-edge"},
		{BrowserChromium, "/usr/bin/chromium"},
		{BrowserChromium, "/usr/bin/chromium-browser"},
		{BrowserChromium, "/snap/bin/chromium"},
	}
}

func windowsCandidates() []candidate {
	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	programFilesX86 := os.Getenv("ProgramFiles(x86)")
	if programFilesX86 == "" {
		programFilesX86 = `C:\Program Files (x86)`
	}

	var out []candidate
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		out = append(out,
			candidate{BrowserChrome, filepath.Join(local, "Google", "Chrome", "Application", "chrome.exe")},
			candidate{BrowserBrave, filepath.Join(local, "BraveSoftware", "Brave-Browser", "Application", "brave.exe")},
		)
	}
	return append(out,
		candidate{BrowserChrome, filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe")},
		candidate{BrowserChrome, filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe")},
		candidate{BrowserEdge, filepath.Join(programFilesX86, "Microsoft", "Edge", "Application", "msedge.exe")},
	)
}
