// SPDX-License-Identifier: MIT

package daemon

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeAddrFile publishes the bound address for local player UIs. The write
// is atomic so a reader polling the file never sees a half-written address,
// which matters once the daemon lands on a fallback port.
func writeAddrFile(path, addr string) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending addr file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := fmt.Fprintln(pending, addr); err != nil {
		return fmt.Errorf("write addr file: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace addr file: %w", err)
	}
	return nil
}
