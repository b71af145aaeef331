package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/core"
)

func main() {
	flags := flag.NewFlagSet("gotherm-cli", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "Output JSON")
	addr := flags.String("addr", "", "Daemon address (defaults to $GOTHERM_ADDR or config)")
	_ = flags.Parse(os.Args[1:])
	args := flags.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := &apiClient{
		base: resolveBaseURL(*addr),
		http: &http.Client{Timeout: 10 * time.Second},
	}

	switch args[0] {
	case "plugins":
		pluginsCmd(ctx, client, args[1:], *jsonOut)
	case "netatmo":
		netatmoCmd(ctx, client, args[1:], *jsonOut)
	default:
		usage()
		os.Exit(2)
	}
}

func pluginsCmd(ctx context.Context, client *apiClient, args []string, jsonOutput bool) {
	out := outputMode{json: jsonOutput}
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		var summaries []core.PluginSummary
		if err := client.getJSON(ctx, "/api/core/plugins", &summaries); err != nil {
			fatal("list plugins", err)
		}
		if out.json {
			out.printJSON(summaries)
			return
		}
		rows := [][]string{{"PLUGIN", "NAME", "VERSION", "STATUS"}}
		for _, plugin := range summaries {
			rows = append(rows, []string{plugin.PluginID, plugin.DisplayName, plugin.Version, plugin.Status})
		}
		out.table(rows)
	case "describe":
		if len(args) < 2 {
			fatal("describe", fmt.Errorf("missing plugin id"))
		}
		var descriptor core.PluginDescriptor
		if err := client.getJSON(ctx, "/api/core/plugins/"+url.PathEscape(args[1]), &descriptor); err != nil {
			fatal("describe plugin", err)
		}
		if out.json {
			out.printJSON(descriptor)
			return
		}
		fmt.Printf("id: %s\n", descriptor.PluginID)
		fmt.Printf("name: %s\n", descriptor.DisplayName)
		fmt.Printf("version: %s\n", descriptor.Version)
		fmt.Printf("status: %s\n", descriptor.Status)
		if descriptor.HealthMessage != "" {
			fmt.Printf("health: %s\n", descriptor.HealthMessage)
		}
		if len(descriptor.Routes) > 0 {
			fmt.Println("routes:")
			for _, route := range descriptor.Routes {
				fmt.Printf("  - %s\n", route)
			}
		}
		if len(descriptor.Dashboards) > 0 {
			fmt.Println("dashboards:")
			for _, dash := range descriptor.Dashboards {
				fmt.Printf("  - %s (%s)\n", dash.Name, dash.Path)
			}
		}
	default:
		usage()
		os.Exit(2)
	}
}

type apiClient struct {
	base string
	http *http.Client
}

type apiError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (http %d)", apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func resolveBaseURL(override string) string {
	addr := override
	if addr == "" {
		addr = os.Getenv("GOTHERM_ADDR")
	}
	if addr == "" {
		if cfg, err := config.Load(config.DefaultPath); err == nil {
			addr = cfg.Core.HTTPAddr
		}
	}
	if addr == "" {
		addr = "localhost:8080"
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(normalizeWildcardHost(addr), "/")
}

// normalizeWildcardHost maps listen-any addresses to loopback so the
// daemon's own http_addr works unchanged as a client target.
func normalizeWildcardHost(base string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	host := parsed.Hostname()
	if host != "0.0.0.0" && host != "::" && host != "" {
		return base
	}
	port := parsed.Port()
	if port == "" {
		port = "8080"
	}
	parsed.Host = net.JoinHostPort("localhost", port)
	return parsed.String()
}

func usage() {
	fmt.Println("gotherm-cli [--json] [--addr <host:port>] <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  plugins list")
	fmt.Println("  plugins describe <plugin_id>")
	fmt.Println("  netatmo homes")
	fmt.Println("  netatmo home <name-or-id>")
	fmt.Println("  netatmo thermmode [--until <duration>] [--schedule <name-or-id>] <home> <mode>")
	fmt.Println("  netatmo schedule <home> <name-or-id>")
	fmt.Println("  netatmo refresh")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
