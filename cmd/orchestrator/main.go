// Command orchestrator runs the Thread, Tool, Delegation, and Compaction
// processors (spec.md §4) against a shared event store. It owns no HTTP or
// gRPC surface of its own: a stream is driven entirely by events appended to
// it by whatever upstream system owns the user-facing API.
//
// # Configuration
//
// Environment variables:
//
//	ORCHESTRATOR_STREAMS         - comma-separated stream IDs to serve (default: "default")
//	EVENT_STORE_BACKEND          - "mem" or "mongo" (default: "mem")
//	MONGO_URI                    - Mongo connection string (required if EVENT_STORE_BACKEND=mongo)
//	MONGO_DATABASE               - Mongo database name (required if EVENT_STORE_BACKEND=mongo)
//	ANTHROPIC_API_KEY            - Anthropic API key (required)
//	ANTHROPIC_DEFAULT_MODEL      - default model id (default: "claude-sonnet-4-5")
//	SANDBOX_DOCKER_HOST          - Docker daemon address (optional, defaults to the SDK's own env resolution)
//	SANDBOX_IMAGE                - image every sandbox container is created from (required)
//	COMPACTION_THRESHOLD_BYTES   - tool output size above which it is routed to compaction (default: 4000)
//	LLM_CALL_TIMEOUT             - per-LLM-call timeout (default: "60s")
//	SANDBOX_EXEC_TIMEOUT         - per-tool-call timeout (default: "60s")
//	COMPACTION_MODEL             - model the compaction worker's summarization thread uses (default: same as ANTHROPIC_DEFAULT_MODEL)
//	DONE_VALIDATE_COMMAND        - shell command run in the sandbox before the "done" tool reports success (default: none, a no-op validator)
//
// # Example
//
//	ANTHROPIC_API_KEY=sk-... SANDBOX_IMAGE=orchestrator-sandbox:latest \
//	  ORCHESTRATOR_STREAMS=default go run ./cmd/orchestrator
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/eventlog/memstore"
	"github.com/agentloom/orchestrator/eventlog/mongostore"
	"github.com/agentloom/orchestrator/llm/anthropic"
	"github.com/agentloom/orchestrator/processor/compaction"
	"github.com/agentloom/orchestrator/processor/delegation"
	"github.com/agentloom/orchestrator/processor/threadproc"
	"github.com/agentloom/orchestrator/processor/toolproc"
	"github.com/agentloom/orchestrator/sandbox"
	"github.com/agentloom/orchestrator/sandbox/dockersandbox"
	"github.com/agentloom/orchestrator/telemetry"
	"github.com/agentloom/orchestrator/tool"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streams := strings.Split(envOr("ORCHESTRATOR_STREAMS", "default"), ",")

	store, closeStore, err := newStore(ctx)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer closeStore()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required")
	}
	defaultModel := envOr("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-5")
	llmClient, err := anthropic.NewFromAPIKey(apiKey, defaultModel)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	sandboxImage := os.Getenv("SANDBOX_IMAGE")
	if sandboxImage == "" {
		return errors.New("SANDBOX_IMAGE is required")
	}
	dockerCli, err := newDockerClient()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	sandboxes := sandbox.NewPool(func(ctx context.Context) (sandbox.Sandbox, error) {
		return dockersandbox.New(ctx, dockerCli, dockersandbox.Options{Image: sandboxImage})
	})

	registry := tool.NewRegistry()
	if err := registry.Register(tool.Done(doneValidator())); err != nil {
		return fmt.Errorf("register done tool: %w", err)
	}

	log := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()

	threadProc := threadproc.New(store, llmClient, registry, threadproc.Options{
		CallTimeout: envDurationOr("LLM_CALL_TIMEOUT", 60*time.Second),
		Logger:      log,
		Metrics:     metrics,
	})
	toolProc := toolproc.New(store, sandboxes, registry, toolproc.Options{
		CompactionThresholdBytes: envIntOr("COMPACTION_THRESHOLD_BYTES", toolproc.DefaultCompactionThreshold),
		ExecTimeout:              envDurationOr("SANDBOX_EXEC_TIMEOUT", 60*time.Second),
		Logger:                   log,
		Metrics:                  metrics,
	})
	delegationProc := delegation.New(store, delegationProfiles(), log)
	compactionProc := compaction.New(store, compaction.Config{
		Model:     envOr("COMPACTION_MODEL", defaultModel),
		Recipient: "compaction",
	}, log)

	var wg sync.WaitGroup
	errs := make(chan error, len(streams)*4)
	runOn := func(name string, r func(ctx context.Context, stream string) error, stream string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s[%s]: %w", name, stream, err)
			}
		}()
	}

	for _, stream := range streams {
		stream = strings.TrimSpace(stream)
		if stream == "" {
			continue
		}
		log.Info(ctx, "orchestrator: serving stream", "stream", stream)
		runOn("threadproc", threadProc.Run, stream)
		runOn("toolproc", toolProc.Run, stream)
		runOn("delegation", delegationProc.Run, stream)
		runOn("compaction", compactionProc.Run, stream)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		log.Error(ctx, "orchestrator: processor exited with error", "error", err)
	}
	return nil
}

// delegationProfiles lists the trigger tool names that spawn a delegated
// child thread instead of running through the ordinary tool registry.
// Domain deployments register their own trigger tools here; none ship
// built in.
func delegationProfiles() map[string]delegation.Profile {
	return map[string]delegation.Profile{}
}

func newStore(ctx context.Context) (eventlog.Store, func(), error) {
	switch backend := envOr("EVENT_STORE_BACKEND", "mem"); backend {
	case "mem":
		return memstore.New(memstore.Options{}), func() {}, nil
	case "mongo":
		uri := os.Getenv("MONGO_URI")
		db := os.Getenv("MONGO_DATABASE")
		if uri == "" || db == "" {
			return nil, nil, errors.New("MONGO_URI and MONGO_DATABASE are required when EVENT_STORE_BACKEND=mongo")
		}
		mongoClient, err := mongo.Connect(options.Client().ApplyURI(uri))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		store, err := mongostore.New(ctx, mongostore.Options{Client: mongoClient, Database: db})
		if err != nil {
			return nil, nil, fmt.Errorf("create mongostore: %w", err)
		}
		return store, func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				log.Printf("disconnect mongo: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown EVENT_STORE_BACKEND %q", backend)
	}
}

func newDockerClient() (*client.Client, error) {
	if host := os.Getenv("SANDBOX_DOCKER_HOST"); host != "" {
		return client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
	}
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// doneValidator builds the validator the "done" tool runs before reporting
// success. Deployments that have nothing to verify leave
// DONE_VALIDATE_COMMAND unset and get NoOpValidator's always-pass behavior.
func doneValidator() tool.Validator {
	cmd := os.Getenv("DONE_VALIDATE_COMMAND")
	if cmd == "" {
		return tool.NoOpValidator{}
	}
	return tool.NewCommandValidator("sh", "-c", cmd)
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
