package pipeline

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/callops/call-transcriber/internal/callstore"
)

// maxNameRunes bounds the source filename portion of generated names so
// deep date trees never exceed filesystem limits.
const maxNameRunes = 40

// Layout maps a call record to its on-disk locations.
type Layout struct {
	AudioBase string
	TextBase  string
}

// CallPaths are the resolved locations for one call.
type CallPaths struct {
	AudioPath      string
	TranscriptPath string
	SidecarPath    string
}

// For places a call under <base>/<year>/<month>/<day>/call_<id>/ with
// the user type prefixed to the source filename. A missing audio
// extension defaults to .wav.
func (l Layout) For(call callstore.CallRecord) CallPaths {
	day := filepath.Join(
		fmt.Sprintf("%d", call.FechaLlamada.Year()),
		fmt.Sprintf("%02d", call.FechaLlamada.Month()),
		fmt.Sprintf("%02d", call.FechaLlamada.Day()),
		fmt.Sprintf("call_%d", call.ID),
	)

	// source ref may be a URL path, so split with path, not filepath
	original := path.Base(call.AudioPath)
	ext := path.Ext(original)
	base := truncateRunes(strings.TrimSuffix(original, ext), maxNameRunes)
	if ext == "" {
		ext = ".wav"
	}

	userType := call.UserType
	if userType == "" {
		userType = "unknown"
	}

	return CallPaths{
		AudioPath:      filepath.Join(l.AudioBase, day, userType+"_"+base+ext),
		TranscriptPath: filepath.Join(l.TextBase, day, userType+"_"+base+".txt"),
		SidecarPath:    filepath.Join(l.TextBase, day, userType+"_"+base+".json"),
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
