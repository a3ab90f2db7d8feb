package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "video-dl",
		Short: "video-dl - queue-based video downloader built around yt-dlp",
		Long: `A command-line interface for downloading videos from Vimeo, YouTube,
Kinescope, GetCourse and direct HLS streams, either one-shot or through
the queue server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func postJSON(path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(data)
	}
	return http.Post(serverURL+path, "application/json", body)
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		password, _ := cmd.Flags().GetString("password")
		filename, _ := cmd.Flags().GetString("name")

		payload := map[string]string{"url": args[0]}
		if password != "" {
			payload["password"] = password
		}
		if filename != "" {
			payload["filename"] = filename
		}

		resp, err := postJSON("/api/v1/jobs", payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Job added to queue\n")
		fmt.Printf("ID: %s\n", result["id"])
		fmt.Printf("Status: %s\n", result["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs in the queue",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		url := serverURL + "/api/v1/jobs"
		if status != "" {
			url += "?status=" + status
		}

		resp, err := http.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var jobs []map[string]interface{}
		json.Unmarshal(body, &jobs)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tSOURCE\tSTATUS\tPROGRESS")
		for _, j := range jobs {
			source, _ := j["source"].(string)
			progress, _ := j["progress"].(float64)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f%%\n",
				truncate(stringField(j, "id"), 8),
				truncate(stringField(j, "url"), 40),
				source,
				stringField(j, "status"),
				progress)
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/jobs/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Queue Statistics:")
		fmt.Printf("  Total:       %v\n", stats["total"])
		fmt.Printf("  Queued:      %v\n", stats["queued"])
		fmt.Printf("  Analyzing:   %v\n", stats["analyzing"])
		fmt.Printf("  Ready:       %v\n", stats["ready"])
		fmt.Printf("  Blocked:     %v\n", stats["blocked"])
		fmt.Printf("  Downloading: %v\n", stats["downloading"])
		fmt.Printf("  Completed:   %v\n", stats["completed"])
		fmt.Printf("  Error:       %v\n", stats["error"])
		fmt.Printf("  Cancelled:   %v\n", stats["cancelled"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get job details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := http.Get(serverURL + "/api/v1/jobs/" + args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var job map[string]interface{}
		json.Unmarshal(body, &job)

		fmt.Printf("Job Details:\n")
		fmt.Printf("  ID:       %s\n", job["id"])
		fmt.Printf("  URL:      %s\n", job["url"])
		fmt.Printf("  Source:   %s\n", job["source"])
		fmt.Printf("  Status:   %s\n", job["status"])
		fmt.Printf("  Progress: %.1f%%\n", job["progress"])
		fmt.Printf("  Created:  %s\n", job["created_at"])
		if job["speed"] != nil {
			fmt.Printf("  Speed:    %s\n", job["speed"])
		}
		if job["eta"] != nil {
			fmt.Printf("  ETA:      %s\n", job["eta"])
		}
		if job["block_reason"] != nil {
			fmt.Printf("  Blocked:  %s\n", job["block_reason"])
		}
		if job["error_message"] != nil {
			fmt.Printf("  Error:    %s\n", job["error_message"])
		}
		if job["file_path"] != nil {
			fmt.Printf("  File:     %s\n", job["file_path"])
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := postJSON("/api/v1/jobs/"+args[0]+"/cancel", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Cancellation requested")
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue [id]",
	Short: "Requeue a blocked, failed or cancelled job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		password, _ := cmd.Flags().GetString("password")

		var payload interface{}
		if password != "" {
			payload = map[string]string{"password": password}
		}
		resp, err := postJSON("/api/v1/jobs/"+args[0]+"/requeue", payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Job requeued")
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a job from the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		req, _ := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/jobs/"+args[0], nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Job removed")
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear-completed",
	Short: "Remove all completed, failed and cancelled jobs",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := postJSON("/api/v1/jobs/clear-completed", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Removed %v jobs\n", result["removed"])
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the queue (running downloads continue, no new ones start)",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := postJSON("/api/v1/queue/pause", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		fmt.Println("Queue paused")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the queue",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		resp, err := postJSON("/api/v1/queue/resume", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		fmt.Println("Queue resumed")
	},
}

func init() {
	addCmd.Flags().StringP("password", "p", "", "Password for protected videos")
	addCmd.Flags().StringP("name", "n", "", "Output filename (without extension)")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	requeueCmd.Flags().StringP("password", "p", "", "Password for protected videos")
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
