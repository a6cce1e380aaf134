package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/reqlab/reqlab/internal/catalog"
	"github.com/reqlab/reqlab/internal/collection"
	"github.com/reqlab/reqlab/internal/config"
	"github.com/reqlab/reqlab/internal/draft"
	"github.com/reqlab/reqlab/internal/engine"
	"github.com/reqlab/reqlab/internal/env"
	"github.com/reqlab/reqlab/internal/history"
	"github.com/reqlab/reqlab/internal/httpclient"
	"github.com/reqlab/reqlab/internal/notify"
	"github.com/reqlab/reqlab/internal/storage"
	"github.com/reqlab/reqlab/internal/telemetry"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type keyValueFlag struct {
	values map[string]string
}

func (f *keyValueFlag) String() string {
	pairs := make([]string, 0, len(f.values))
	for key, value := range f.values {
		pairs = append(pairs, key+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (f *keyValueFlag) Set(raw string) error {
	key, value, found := strings.Cut(raw, "=")
	if !found || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[strings.TrimSpace(key)] = value
	return nil
}

func main() {
	var (
		listEndpoints  bool
		endpointName   string
		methodOverride string
		urlOverride    string
		nameOverride   string
		bodyOverride   string
		headerFlags    keyValueFlag
		paramFlags     keyValueFlag
		setVarFlags    keyValueFlag
		envName        string
		send           bool
		showHistory    bool
		clearHistory   bool
		showDraft      bool
		saveSnapshot   bool
		saveTo         string
		ping           bool
		timeout        time.Duration
		insecure       bool
		follow         bool
		proxyURL       string
		showVersion    bool
	)

	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)

	flag.BoolVar(&listEndpoints, "list", false, "List the endpoint catalog and exit")
	flag.StringVar(&endpointName, "endpoint", "", "Seed the draft from a catalog entry by name")
	flag.StringVar(&methodOverride, "method", "", "Override the draft method")
	flag.StringVar(&urlOverride, "url", "", "Override the draft URL")
	flag.StringVar(&nameOverride, "name", "", "Override the draft name")
	flag.StringVar(&bodyOverride, "body", "", "Override the draft body (raw text, may contain {{vars}})")
	flag.Var(&headerFlags, "header", "Set a draft header (key=value, repeatable)")
	flag.Var(&paramFlags, "param", "Set a draft query param (key=value, repeatable)")
	flag.Var(&setVarFlags, "set", "Set a variable on the active environment (key=value, repeatable)")
	flag.StringVar(&envName, "env", "", "Activate the named environment")
	flag.BoolVar(&send, "send", false, "Send the current draft and print the result")
	flag.BoolVar(&showHistory, "history", false, "Print request history, newest first")
	flag.BoolVar(&clearHistory, "clear-history", false, "Empty request history")
	flag.BoolVar(&showDraft, "draft", false, "Print the current draft")
	flag.BoolVar(&saveSnapshot, "save", false, "Snapshot the draft into history without sending")
	flag.StringVar(&saveTo, "save-to", "", "Snapshot the draft into the named request collection")
	flag.BoolVar(&ping, "ping", false, "Probe the demo backend and exit")
	flag.DurationVar(&timeout, "timeout", 0, "Request timeout (defaults to settings)")
	flag.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	flag.BoolVar(&follow, "follow", false, "Follow redirects")
	flag.StringVar(&proxyURL, "proxy", "", "HTTP proxy URL")
	flag.BoolVar(&showVersion, "version", false, "Show reqlab version")
	flag.Parse()

	if showVersion {
		fmt.Printf("reqlab %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		return
	}

	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	if timeout <= 0 {
		timeout = settings.Timeout
	}
	if telemetryCfg.Endpoint == "" {
		telemetryCfg.Endpoint = settings.OTelEndpoint
		telemetryCfg.Insecure = settings.OTelInsecure
	}
	telemetryCfg.Version = version

	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("load catalog: %v", err)
	}

	if listEndpoints {
		printCatalog(cat)
		return
	}

	if ping {
		if err := pingServer(settings.BaseURL, timeout); err != nil {
			log.Fatalf("ping %s: %v", settings.BaseURL, err)
		}
		fmt.Printf("%s is up\n", settings.BaseURL)
		return
	}

	backend, err := storage.OpenSQLite(config.StatePath())
	if err != nil {
		log.Fatalf("open state store: %v", err)
	}
	defer backend.Close()

	notifier := notify.NewLog()
	drafts := draft.NewStore(storage.NewRepository(backend, storage.KeyActiveRequest), settings.BaseURL)
	envs := env.NewStore(storage.NewRepository(backend, storage.KeyEnvironments), notifier)
	hist := history.NewStore(storage.NewRepository(backend, storage.KeyRequestHistory), settings.HistoryLimit)
	collections := collection.NewStore(storage.NewRepository(backend, storage.KeyCollections), notifier)

	if envName != "" {
		target, ok := envs.ByName(envName)
		if !ok {
			id := envs.Create(envName)
			envs.SetActive(id)
		} else {
			envs.SetActive(target.ID)
		}
	}
	for key, value := range setVarFlags.values {
		active := envs.Active()
		if active == nil {
			log.Fatalf("no active environment")
		}
		envs.SetVariable(active.ID, env.Variable{Key: key, Value: value, Enabled: true})
	}

	if endpointName != "" {
		ep, ok := cat.ByName(endpointName)
		if !ok {
			log.Fatalf("unknown endpoint %q, use -list to see the catalog", endpointName)
		}
		drafts.Load(draftFromEndpoint(ep, settings.BaseURL))
	}

	patch := draft.Patch{}
	if methodOverride != "" {
		patch.Method = &methodOverride
	}
	if urlOverride != "" {
		patch.URL = &urlOverride
	}
	if nameOverride != "" {
		patch.Name = &nameOverride
	}
	if len(headerFlags.values) > 0 {
		patch.Headers = headerFlags.values
	}
	if len(paramFlags.values) > 0 {
		patch.Params = paramFlags.values
	}
	if bodyOverride != "" {
		body := draft.RawBody(bodyOverride)
		patch.Body = &body
	}
	drafts.Update(patch)

	if saveSnapshot {
		hist.Push(drafts.Current().Snapshot())
	}

	if saveTo != "" {
		target := findCollection(collections, saveTo)
		collections.AddRequest(target, drafts.Current())
	}

	if clearHistory {
		hist.Clear()
		fmt.Println("history cleared")
	}

	if showHistory {
		printHistory(hist)
	}

	if showDraft {
		printJSON(drafts.Current())
	}

	if send {
		instr, err := telemetry.New(telemetryCfg)
		if err != nil {
			log.Printf("telemetry disabled: %v", err)
			instr = telemetry.Noop()
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = instr.Shutdown(shutdownCtx)
		}()

		client := httpclient.NewClient()
		client.SetTelemetry(instr)
		session := engine.NewSession(client, envs, hist, notifier, httpclient.Options{
			Timeout:            timeout,
			FollowRedirects:    follow || settings.FollowRedirects,
			InsecureSkipVerify: insecure,
			ProxyURL:           proxyURL,
		})

		result, err := session.Send(context.Background(), drafts.Current())
		if err != nil {
			log.Fatalf("send: %v", err)
		}
		printJSON(result)
	}
}

func printCatalog(cat *catalog.Catalog) {
	for _, group := range cat.ByCategory() {
		fmt.Printf("%s\n", group.Name)
		for _, ep := range group.Endpoints {
			fmt.Printf("  %-18s %-6s %s\n", ep.Name, ep.Method, ep.Path)
		}
	}
}

func printHistory(hist *history.Store) {
	entries := hist.Entries()
	if len(entries) == 0 {
		fmt.Println("history is empty")
		return
	}
	for i, entry := range entries {
		fmt.Printf("%2d  %-6s %-40s %s\n", i, entry.Method, entry.URL, entry.CreatedAt.Format(time.RFC3339))
	}
}

func printJSON(v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(encoded))
}

func draftFromEndpoint(ep catalog.EndpointDefinition, baseURL string) draft.Draft {
	d := draft.Default(baseURL)
	d.Name = ep.Name
	d.Method = ep.Method
	d.URL = strings.TrimRight(baseURL, "/") + ep.Path
	if ep.ExampleRequest != nil {
		if encoded, err := json.MarshalIndent(ep.ExampleRequest, "", "  "); err == nil {
			d.Body = draft.RawBody(string(encoded))
		}
	}
	return d
}

func findCollection(store *collection.Store, name string) string {
	for _, col := range store.Collections() {
		if col.Name == name {
			return col.ID
		}
	}
	created := store.Create(name, "")
	return created.ID
}

func pingServer(baseURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var body string
	return requests.
		URL(baseURL).
		ToString(&body).
		Fetch(ctx)
}
