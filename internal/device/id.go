// Package device holds per-installation concerns of the scoreboard
// controller: its stable identity and the heartbeat it reports to the
// aggregator.
package device

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// IDPrefix starts every generated device id.
const IDPrefix = "dev-"

// hardwareAddrs lists interface MAC addresses. Replaced in tests.
var hardwareAddrs = func() []net.HardwareAddr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var addrs []net.HardwareAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) < 3 {
			continue
		}
		addrs = append(addrs, iface.HardwareAddr)
	}
	return addrs
}

// LoadOrCreateID returns the id stored at path, generating and persisting
// one on first use. A persist failure is logged and the generated id is
// still returned.
func LoadOrCreateID(path string) (string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			slog.Debug("device: loaded id", "path", path, "device_id", id)
			return id, nil
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return "", fmt.Errorf("read device id %s: %w", path, err)
	}

	id := GenerateID()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("device: persist id failed", "path", path, "error", err)
			return id, nil
		}
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		slog.Error("device: persist id failed", "path", path, "error", err)
		return id, nil
	}
	slog.Info("device: generated id", "path", path, "device_id", id)
	return id, nil
}

// GenerateID derives "dev-" plus the last three bytes of the first
// hardware address, or eight random hex digits without one.
func GenerateID() string {
	for _, mac := range hardwareAddrs() {
		tail := mac[len(mac)-3:]
		return fmt.Sprintf("%s%02x%02x%02x", IDPrefix, tail[0], tail[1], tail[2])
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	slog.Warn("device: no hardware address, using random id")
	return IDPrefix + random[:8]
}
