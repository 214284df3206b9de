package imagepipeline

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ferrex-media/ferrex/internal/ferrors"
)

const ffmpegTimeout = 2 * time.Minute

// runFFmpegWithTimeout starts ffmpeg in its own process group and kills the
// whole group if it exceeds the timeout. exec.CommandContext with
// CombinedOutput can block on pipe drain even after the process is
// signaled, so the teardown is explicit, via x/sys/unix.
func runFFmpegWithTimeout(cmd *exec.Cmd, timeout time.Duration) ([]byte, error) {
	// cmd.SysProcAttr is pinned to the stdlib syscall type by os/exec; the
	// process-group teardown below uses x/sys/unix instead.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "start ffmpeg", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return buf.Bytes(), ferrors.Wrap(ferrors.Internal, "ffmpeg exited non-zero", err)
		}
		return buf.Bytes(), nil
	case <-time.After(timeout):
		if pgid, err := unix.Getpgid(cmd.Process.Pid); err == nil {
			_ = unix.Kill(-pgid, unix.SIGKILL)
		} else {
			_ = cmd.Process.Kill()
		}
		<-done
		return buf.Bytes(), ferrors.New(ferrors.Internal, fmt.Sprintf("ffmpeg timed out after %v", timeout))
	}
}

// extractFrameRGB24 extracts a single raw RGB24 frame at targetPct (0..1)
// into durationSec of a video, scaled to exactly width x height so the
// returned buffer is always width*height*3 bytes.
func extractFrameRGB24(ffmpegPath, sourcePath string, durationSec int, targetPct float64, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, ferrors.New(ferrors.InvalidMedia, "frame dimensions must be non-zero")
	}
	seekTo := int(float64(durationSec) * targetPct)
	if seekTo < 1 {
		seekTo = 1
	}

	outPath, err := tempFramePath()
	if err != nil {
		return nil, err
	}
	defer os.Remove(outPath)

	cmd := exec.Command(ffmpegPath,
		"-ss", fmt.Sprintf("%d", seekTo),
		"-i", sourcePath,
		"-vframes", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-y",
		outPath,
	)
	if _, err := runFFmpegWithTimeout(cmd, ffmpegTimeout); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "read extracted frame", err)
	}
	if err := validateRGB24(data, width, height); err != nil {
		return nil, err
	}
	return data, nil
}

func tempFramePath() (string, error) {
	f, err := os.CreateTemp("", "frame-*.rgb")
	if err != nil {
		return "", ferrors.Wrap(ferrors.Io, "create temp frame file", err)
	}
	name := f.Name()
	f.Close()
	return name, nil
}
