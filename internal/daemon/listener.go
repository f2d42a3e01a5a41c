// SPDX-License-Identifier: MIT

package daemon

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/vosync/vosync/internal/config"
	"github.com/vosync/vosync/internal/log"
)

// listenCandidates returns the addresses to try binding, in order. An
// explicitly configured address is tried alone; only the default gets the
// 18080-18089 walk and the final ephemeral-port escape hatch.
func listenCandidates(addr string) []string {
	candidates := []string{addr}
	if addr != config.DefaultListenAddr {
		return candidates
	}
	for port := 18080; port < 18090; port++ {
		candidate := fmt.Sprintf("127.0.0.1:%d", port)
		if candidate == addr {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return append(candidates, "127.0.0.1:0")
}

// bindListener walks the candidate addresses until one binds. Each failed
// bind is logged, and landing on a fallback is called out so users notice
// the daemon is not where they configured it.
func bindListener(addr string, logger zerolog.Logger) (net.Listener, error) {
	for _, candidate := range listenCandidates(addr) {
		ln, err := net.Listen("tcp", candidate)
		if err != nil {
			logger.Warn().
				Str(log.FieldEvent, "daemon.bind_failed").
				Str(log.FieldAddr, candidate).
				Err(err).
				Msg("bind failed, trying next candidate")
			continue
		}
		if candidate != addr {
			logger.Warn().
				Str(log.FieldEvent, "daemon.bind_fallback").
				Str("configured", addr).
				Str(log.FieldAddr, ln.Addr().String()).
				Msg("configured address unavailable, bound fallback port")
		}
		return ln, nil
	}
	return nil, fmt.Errorf("failed to bind server; consider setting %s", config.EnvListenAddr)
}
