package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

// newAgentTokenCmd generates a shared secret suitable for MALLARD_AGENT_TOKEN
// on both the agent and its clients.
func newAgentTokenCmd() *cobra.Command {
	var byteLen int

	cmd := &cobra.Command{
		Use:   "agent-token",
		Short: "Generate a random agent token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if byteLen < 16 {
				return fmt.Errorf("token must be at least 16 bytes, got %d", byteLen)
			}
			raw := make([]byte, byteLen)
			if _, err := rand.Read(raw); err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(raw))
			return nil
		},
	}
	cmd.Flags().IntVar(&byteLen, "bytes", 32, "Token length in bytes before hex encoding")
	return cmd
}
