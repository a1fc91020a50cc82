package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	httpserver "github.com/fyrsmithlabs/hmochat/internal/http"
)

// apiClient talks to a running hmochat server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr httpserver.ErrorResponse
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) welcome(ctx context.Context) (string, error) {
	var resp httpserver.WelcomeResponse
	err := c.do(ctx, http.MethodGet, "/welcome", nil, &resp)
	return resp.Message, err
}

func (c *apiClient) chat(ctx context.Context, req httpserver.ChatRequest) (*httpserver.ChatResponse, error) {
	var resp httpserver.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func newChatCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server",
		Long: `Start an interactive conversation with a running hmochat server.
History and the resolved profile are kept locally and sent with every turn.
Type "exit" or press Ctrl-D to quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(serverURL, timeout)
			return chatLoop(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-turn request timeout")
	return cmd
}

// chatLoop reads one user turn per line until "exit" or EOF. A failed turn is
// reported and not added to the history.
func chatLoop(ctx context.Context, client *apiClient, in io.Reader, out io.Writer) error {
	welcome, err := client.welcome(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Bot: %s\n", welcome)

	history := []httpserver.HistoryEntry{{Role: string(conversation.RoleAssistant), Content: welcome}}
	var profile *conversation.Profile

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			return nil
		}

		resp, err := client.chat(ctx, httpserver.ChatRequest{
			Message:             line,
			UserProfile:         profile,
			ConversationHistory: history,
		})
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}

		fmt.Fprintf(out, "Bot: %s\n", resp.Message)
		history = append(history,
			httpserver.HistoryEntry{Role: string(conversation.RoleUser), Content: line},
			httpserver.HistoryEntry{Role: string(conversation.RoleAssistant), Content: resp.Message},
		)
		if resp.UserProfile != nil {
			profile = resp.UserProfile
		}
		if resp.RequiresConfirmation && profile != nil {
			fmt.Fprintf(out, "[profile saved: %s, %s %s]\n", profile.Name(), profile.HMO, profile.InsuranceTier)
		}
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(serverURL, 10*time.Second)
			var st httpserver.StatsResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/vector-store/stats", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:     %s\n", st.Status)
			fmt.Fprintf(out, "Documents:  %d\n", st.TotalDocuments)
			fmt.Fprintf(out, "Dimension:  %d\n", st.Dimension)
			fmt.Fprintf(out, "Index type: %s\n", st.IndexType)
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(serverURL, 5*time.Second)
			var h httpserver.HealthResponse
			if err := client.do(cmd.Context(), http.MethodGet, "/health", nil, &h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", h.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", serverURL)
			return nil
		},
	}
}
