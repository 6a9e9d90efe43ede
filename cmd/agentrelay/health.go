package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/BaSui01/agentrelay/internal/tlsutil"
)

// newHealthCmd 创建 `agentrelay health` 命令，供容器 HEALTHCHECK 使用
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if err := checkHealth(addr, timeout); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().String("addr", "http://localhost:8080", "server address")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	return cmd
}

func checkHealth(addr string, timeout time.Duration) error {
	client := tlsutil.SecureHTTPClient(timeout)
	resp, err := client.Get(strings.TrimRight(addr, "/") + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}
