package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect and manage provider circuit breakers on a running server",
}

var providersStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker state for every provider",
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		body, err := adminGet(cmd.Context(), addr+"/v1/providers")
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(body))
	},
}

var providersResetCmd = &cobra.Command{
	Use:   "reset <provider|all>",
	Short: "Manually close a provider's circuit breaker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		body, err := adminPost(cmd.Context(), fmt.Sprintf("%s/v1/providers/%s/reset", addr, args[0]))
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(body))
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersStatusCmd)
	providersCmd.AddCommand(providersResetCmd)
	providersCmd.PersistentFlags().String("addr", "http://localhost:8080", "Base URL of the running server")
}

func adminGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return doAdmin(req)
}

func adminPost(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	return doAdmin(req)
}

func doAdmin(req *http.Request) ([]byte, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	return body, nil
}
