// Package ffmpegbin locates the ffmpeg and ffprobe executables shared by the
// decoder, encoder and capture adapters.
package ffmpegbin

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg executable can be located.
	ErrFFmpegNotFound = errors.New("ffmpegbin: ffmpeg not found")
	// ErrFFprobeNotFound is returned when no ffprobe executable can be located.
	ErrFFprobeNotFound = errors.New("ffmpegbin: ffprobe not found")
)

var (
	mu         sync.RWMutex
	customPath string

	encodersOnce sync.Once
	encoders     string
)

// SetPath overrides discovery with an explicit ffmpeg path. An empty path
// restores discovery.
func SetPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	customPath = path
	encodersOnce = sync.Once{}
	encoders = ""
}

// Available reports whether ffmpeg can be found.
func Available() bool {
	_, err := Find()
	return err == nil
}

// Find searches for ffmpeg.
// Priority: 1) SetPath, 2) FFMPEG_PATH env, 3) PATH, 4) common locations
func Find() (string, error) {
	mu.RLock()
	custom := customPath
	mu.RUnlock()

	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	if p, ok := lookup("ffmpeg"); ok {
		return p, nil
	}
	return "", ErrFFmpegNotFound
}

// FindProbe locates ffprobe, preferring the directory ffmpeg was found in.
func FindProbe() (string, error) {
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name = "ffprobe.exe"
	}
	if ff, err := Find(); err == nil {
		p := filepath.Join(filepath.Dir(ff), name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if p, ok := lookup("ffprobe"); ok {
		return p, nil
	}
	return "", ErrFFprobeNotFound
}

func lookup(tool string) (string, bool) {
	execName := tool
	if runtime.GOOS == "windows" {
		execName = tool + ".exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, true
	}

	var dirs []string
	switch runtime.GOOS {
	case "windows":
		dirs = []string{`C:\ffmpeg\bin`, `C:\Program Files\ffmpeg\bin`, `C:\Program Files (x86)\ffmpeg\bin`}
	case "darwin":
		dirs = []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}
	default:
		dirs = []string{"/usr/bin", "/usr/local/bin", "/opt/homebrew/bin", "/snap/bin"}
	}
	for _, d := range dirs {
		p := filepath.Join(d, execName)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// HasEncoder reports whether the located ffmpeg was built with the named encoder,
// such as "libx264" or "mpeg4". The encoder list is read once per path.
func HasEncoder(name string) bool {
	path, err := Find()
	if err != nil {
		return false
	}
	mu.RLock()
	once := &encodersOnce
	mu.RUnlock()
	once.Do(func() {
		var out bytes.Buffer
		cmd := exec.Command(path, "-hide_banner", "-encoders")
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			mu.Lock()
			encoders = out.String()
			mu.Unlock()
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	for _, line := range strings.Split(encoders, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
