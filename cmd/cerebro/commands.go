package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthcerebrum/cerebro/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a question against the knowledge base",
	Long: `Ask a question against the knowledge base.

Examples:
  cerebro ask "what does the deployment doc say about rollbacks?"
  cerebro ask --set work --session 4f1f… "and what about canaries?"
  cerebro ask --no-rag "write a haiku about databases"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, _ := cmd.Flags().GetString("set")
		sessionID, _ := cmd.Flags().GetString("session")
		noRAG, _ := cmd.Flags().GetBool("no-rag")
		noStream, _ := cmd.Flags().GetBool("no-stream")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"query":        args[0],
			"knowledgeSet": set,
			"sessionId":    sessionID,
			"useMemory":    sessionID != "",
			"useRag":       !noRAG,
			"stream":       !noStream,
		}

		if noStream {
			resp, err := client.post("/api/query", req)
			if err != nil {
				return err
			}
			var result struct {
				SessionID string `json:"sessionId"`
				Text      string `json:"text"`
				Sources   []struct {
					File  string  `json:"file"`
					Score float32 `json:"score"`
				} `json:"sources"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			fmt.Println(result.Text)
			for _, s := range result.Sources {
				printStatus("Source", "%s (%.2f)", s.File, s.Score)
			}
			printStatus("Session", "%s", result.SessionID)
			return nil
		}

		resp, err := client.postStream("/api/query", req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return decodeJSON(resp, &struct{}{})
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var line struct {
				Response  string `json:"response"`
				Done      bool   `json:"done"`
				SessionID string `json:"sessionId"`
				Sources   []struct {
					File  string  `json:"file"`
					Score float32 `json:"score"`
				} `json:"sources"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				continue
			}
			switch {
			case line.Done:
				fmt.Println()
				if line.SessionID != "" {
					printStatus("Session", "%s", line.SessionID)
				}
			case len(line.Sources) > 0:
				for _, s := range line.Sources {
					printStatus("Source", "%s (%.2f)", s.File, s.Score)
				}
			default:
				fmt.Print(line.Response)
			}
		}
		return scanner.Err()
	},
}

func init() {
	askCmd.Flags().String("set", "", "knowledge set to ground against (default: default)")
	askCmd.Flags().String("session", "", "continue an existing session with memory")
	askCmd.Flags().Bool("no-rag", false, "answer without retrieval grounding")
	askCmd.Flags().Bool("no-stream", false, "wait for the full answer instead of streaming")
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Semantic search over a knowledge set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, _ := cmd.Flags().GetString("set")
		if set == "" {
			set = "default"
		}
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/knowledge-sets/%s/search?q=%s&k=%d", url.PathEscape(set), url.QueryEscape(args[0]), limit)
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var result struct {
			Results []struct {
				SourceFile string  `json:"sourceFile"`
				Text       string  `json:"text"`
				Score      float32 `json:"score"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Results) == 0 {
			printWarning("No matches")
			return nil
		}
		for i, r := range result.Results {
			fmt.Printf("%s %s\n", colorize(colorBold, fmt.Sprintf("%d. [%.2f]", i+1, r.Score)), r.SourceFile)
			fmt.Printf("   %s\n", strings.ReplaceAll(r.Text, "\n", "\n   "))
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().String("set", "", "knowledge set to search (default: default)")
	recallCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest files into a knowledge set",
	Long: `Ingest files into a knowledge set.

Examples:
  cerebro ingest notes.md
  cerebro ingest --set work report.pdf minutes.txt
  cerebro ingest --text "postgres runs on port 5433 here"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, _ := cmd.Flags().GetString("set")
		if set == "" {
			set = "default"
		}
		text, _ := cmd.Flags().GetString("text")
		chunkSize, _ := cmd.Flags().GetInt("chunk-size")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if text != "" {
			resp, err := client.post("/api/knowledge", map[string]any{
				"text":         text,
				"knowledgeSet": set,
			})
			if err != nil {
				return err
			}
			var job struct {
				Name string `json:"name"`
			}
			if err := decodeJSON(resp, &job); err != nil {
				return err
			}
			printSuccess("Stored %s into %q", job.Name, set)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("provide files to ingest or --text")
		}

		type fileUpload struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		files := make([]fileUpload, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			files = append(files, fileUpload{
				Name:    path,
				Content: base64.StdEncoding.EncodeToString(data),
			})
		}

		resp, err := client.postStream("/api/knowledge-sets/"+url.PathEscape(set)+"/ingest", map[string]any{
			"files":     files,
			"chunkSize": chunkSize,
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return decodeJSON(resp, &struct{}{})
		}

		failed := 0
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var job struct {
				Name   string `json:"name"`
				Status string `json:"status"`
				Error  string `json:"error"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &job); err != nil {
				continue
			}
			switch job.Status {
			case "stored":
				printSuccess("%s stored", job.Name)
			case "error":
				failed++
				printError("%s failed: %s", job.Name, job.Error)
			default:
				printStep("%s: %s", job.Name, job.Status)
			}
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d file(s) failed", failed)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("set", "", "target knowledge set (default: default)")
	ingestCmd.Flags().String("text", "", "ingest a text snippet instead of files")
	ingestCmd.Flags().Int("chunk-size", 0, "chunk size in characters (0 = default)")
}

// --- sets ---

var setsCmd = &cobra.Command{
	Use:   "sets",
	Short: "Manage knowledge sets",
}

var setsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge sets with chunk counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/knowledge-sets")
		if err != nil {
			return err
		}
		var body struct {
			Sets []string `json:"sets"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		for _, name := range body.Sets {
			countResp, err := client.get("/api/knowledge-sets/" + url.PathEscape(name) + "/count")
			if err != nil {
				return err
			}
			var count struct {
				Count int `json:"count"`
			}
			if err := decodeJSON(countResp, &count); err != nil {
				return err
			}
			fmt.Printf("  %s %d chunks\n", colorize(colorBold, name+":"), count.Count)
		}
		return nil
	},
}

var setsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a knowledge set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/knowledge-sets", map[string]string{"name": args[0]})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &struct{}{}); err != nil {
			return err
		}
		printSuccess("Created knowledge set %q", args[0])
		return nil
	},
}

var setsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a knowledge set and all its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete knowledge set %q and all its chunks. Use --confirm to proceed.", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/api/knowledge-sets/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &struct{}{}); err != nil {
			return err
		}
		printSuccess("Deleted knowledge set %q", args[0])
		return nil
	},
}

func init() {
	setsDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	setsCmd.AddCommand(setsListCmd)
	setsCmd.AddCommand(setsCreateCmd)
	setsCmd.AddCommand(setsDeleteCmd)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/sessions")
		if err != nil {
			return err
		}
		var body struct {
			Sessions []struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				UpdatedAt int64  `json:"updatedAt"`
			} `json:"sessions"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Sessions) == 0 {
			printWarning("No sessions")
			return nil
		}
		for _, s := range body.Sessions {
			when := time.UnixMilli(s.UpdatedAt).Format("2006-01-02 15:04")
			fmt.Printf("  %s  %s  %s\n", colorize(colorBold, s.ID), when, s.Title)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/sessions/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var sess struct {
			Title    string `json:"title"`
			Messages []struct {
				Role string `json:"role"`
				Text string `json:"text"`
			} `json:"messages"`
		}
		if err := decodeJSON(resp, &sess); err != nil {
			return err
		}

		fmt.Println(colorize(colorBold, sess.Title))
		for _, m := range sess.Messages {
			fmt.Printf("\n%s %s\n", colorize(colorCyan, "["+m.Role+"]"), m.Text)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/api/sessions/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &struct{}{}); err != nil {
			return err
		}
		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.Load()
		fmt.Println(colorize(colorBold, "Process settings:"))
		fmt.Printf("  port = %d\n", settings.Server.Port)
		fmt.Printf("  ollama.url = %s\n", settings.Ollama.BaseURL)
		fmt.Printf("  ollama.genModel = %s\n", settings.Ollama.GenModel)
		fmt.Printf("  ollama.embedModel = %s\n", settings.Ollama.EmbedModel)
		fmt.Printf("  retrieval.topK = %d\n", settings.Retrieval.TopK)
		fmt.Printf("  dataRoot = %s\n", settings.DataRoot)

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get("/api/config")
		if err != nil {
			printWarning("server not running, engine config unavailable")
			return nil
		}
		var cfg config.EngineConfig
		if err := decodeJSON(resp, &cfg); err != nil {
			return err
		}
		fmt.Println(colorize(colorBold, "Engine config:"))
		fmt.Printf("  modelsDir = %s\n", cfg.ModelsDir)
		fmt.Printf("  dataDir = %s\n", cfg.DataDir)
		fmt.Printf("  engine.threads = %d\n", cfg.Engine.Threads)
		fmt.Printf("  engine.gpuLayers = %d\n", cfg.Engine.GPULayers)
		fmt.Printf("  engine.quantization = %s\n", cfg.Engine.Quantization)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set an engine config value",
	Long: `Set an engine config value on the running server.

Keys: modelsDir, dataDir, engine.threads, engine.gpuLayers, engine.quantization`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := buildConfigPatch(args[0], args[1])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post("/api/config", patch)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &struct{}{}); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func buildConfigPatch(key, value string) (map[string]any, error) {
	switch key {
	case "modelsDir", "dataDir":
		return map[string]any{key: value}, nil
	case "engine.quantization":
		return map[string]any{"engine": map[string]any{"quantization": value}}, nil
	case "engine.threads", "engine.gpuLayers":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
			return nil, fmt.Errorf("%s must be an integer", key)
		}
		field := strings.TrimPrefix(key, "engine.")
		return map[string]any{"engine": map[string]any{field: n}}, nil
	default:
		return nil, fmt.Errorf("unknown config key %q", key)
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available in Ollama",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/models")
		if err != nil {
			return err
		}
		var body struct {
			Models []string `json:"models"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		for _, m := range body.Models {
			fmt.Printf("  %s\n", m)
		}
		return nil
	},
}
