package channel

import (
	"context"
	"fmt"
)

// SeedAgentCredentials installs an agent API token inside the
// environment so agent invocations launched by tasks can
// authenticate. The token never transits the event log.
func SeedAgentCredentials(ctx context.Context, ch Channel, envHandle, token string) error {
	if token == "" {
		return fmt.Errorf("empty agent token")
	}
	cmd := fmt.Sprintf(
		"mkdir -p ~/.gantry && umask 077 && printf '%%s' '%s' > ~/.gantry/agent-token",
		token,
	)
	exitCode, err := ch.RunCommand(ctx, envHandle, cmd, nil)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("seeding agent credentials exited %d", exitCode)
	}
	return nil
}
