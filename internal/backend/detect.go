package backend

import (
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/lhoume/jukebox/internal/config"
)

// Detect probes for an available player once at startup, mpv first.
// The result should be passed to the orchestrator by reference; detection is
// never repeated at play time.
func Detect(cfg config.BackendConfig, log *logrus.Entry) (Backend, error) {
	switch cfg.Preferred {
	case "mpv":
		if !binaryAvailable(cfg.MpvPath) {
			return nil, fmt.Errorf("configured player %q not found: %w", cfg.MpvPath, ErrNoBackend)
		}
		return NewMPV(cfg.MpvPath, cfg.SocketDir, log), nil
	case "ffplay":
		if !binaryAvailable(cfg.FfplayPath) {
			return nil, fmt.Errorf("configured player %q not found: %w", cfg.FfplayPath, ErrNoBackend)
		}
		return NewFfplay(cfg.FfplayPath, log), nil
	default:
		if binaryAvailable(cfg.MpvPath) {
			log.WithField("backend", "mpv").Info("audio backend selected")
			return NewMPV(cfg.MpvPath, cfg.SocketDir, log), nil
		}
		if binaryAvailable(cfg.FfplayPath) {
			log.WithField("backend", "ffplay").Info("audio backend selected")
			return NewFfplay(cfg.FfplayPath, log), nil
		}
		return nil, ErrNoBackend
	}
}

func binaryAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
