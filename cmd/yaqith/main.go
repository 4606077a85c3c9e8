package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/yaqith/yaqith/pkg/classify"
	"github.com/yaqith/yaqith/pkg/config"
	"github.com/yaqith/yaqith/pkg/dispatch"
	"github.com/yaqith/yaqith/pkg/fusion"
	"github.com/yaqith/yaqith/pkg/gateway"
	"github.com/yaqith/yaqith/pkg/store"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runHTTPServer()
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: yaqith scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("Yaqith v%s\n", Version)
		fmt.Println("Multi-modality phishing and fraud analysis gateway")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Yaqith v%s - Phishing & Fraud Analysis Gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  yaqith serve          Start HTTP server (default: :8090)")
	fmt.Println("  yaqith scan <text>    Analyze text from the command line")
	fmt.Println("  yaqith version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  YAQITH_LISTEN_ADDR       HTTP bind address")
	fmt.Println("  YAQITH_POSTGRES_DSN      Postgres DSN for the audit store (default: in-memory)")
	fmt.Println("  YAQITH_REDIS_ADDR        Redis address for the verdict cache (default: disabled)")
	fmt.Println("  YAQITH_TEXT_MODEL_PATH   ONNX model directory for the text classifier")
	fmt.Println("  YAQITH_OLLAMA_URL        Embedding server for semantic matching")
	fmt.Println("  YAQITH_VISION_ENDPOINT   Logo analysis service URL")
	fmt.Println("  YAQITH_CONFIG_FILE       Optional YAML config overlay")
}

// buildClassifiers assembles the modality adapters. The optional layers
// degrade to disabled when their backends are absent.
func buildClassifiers(cfg *config.Config) []classify.Classifier {
	textOpts := []classify.TextOption{classify.WithTriggerThreshold(cfg.TriggerThreshold)}

	hcfg := classify.DefaultHugotConfig()
	if cfg.TextModelPath != "" {
		hcfg.ModelPath = cfg.TextModelPath
	}
	if hugotModel := classify.NewHugotTextModel(hcfg); hugotModel != nil {
		textOpts = append(textOpts, classify.WithHugotModel(hugotModel))
	}

	if cfg.OllamaURL != "" {
		semantic, err := classify.NewSemanticMatcher(cfg.OllamaURL)
		if err != nil {
			log.Printf("○ semantic layer disabled (init failed: %v)", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			if err := semantic.LoadCorpus(ctx); err != nil {
				log.Printf("○ semantic layer disabled (corpus load failed: %v)", err)
			} else {
				textOpts = append(textOpts, classify.WithSemanticMatcher(semantic))
			}
			cancel()
		}
	}

	return []classify.Classifier{
		classify.NewTextClassifier(textOpts...),
		classify.NewURLClassifier(),
		classify.NewLogoClassifier(cfg.VisionEndpoint, cfg.VisionToken),
	}
}

// buildStore picks Postgres when a DSN is configured, otherwise the
// in-memory store.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func()) {
	if cfg.PostgresDSN == "" {
		log.Println("○ audit store: in-memory (no Postgres DSN; records do not survive restarts)")
		return store.NewMemoryStore(), func() {}
	}

	pg, err := store.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("FATAL: Postgres audit store unavailable: %v", err)
	}
	log.Println("✓ audit store: Postgres connected")
	return pg, pg.Close
}

func buildOrchestrator(ctx context.Context, cfg *config.Config) (*gateway.Orchestrator, func()) {
	st, closeStore := buildStore(ctx, cfg)

	cache := dispatch.NewVerdictCache(cfg.RedisAddr, cfg.CacheTTL)
	dispatcher := dispatch.New(buildClassifiers(cfg),
		dispatch.WithCache(cache),
		dispatch.WithAdapterTimeout(cfg.AdapterTimeout),
		dispatch.WithConcurrencyLimit(cfg.ConcurrencyLimit),
	)

	engine := fusion.NewEngine(fusion.WithThresholds(cfg.SafeThreshold, cfg.DangerThreshold))

	orch := gateway.New(st, dispatcher, engine,
		gateway.WithCombinedAttempts(cfg.CombinedAttempts),
		gateway.WithHistoryLimit(cfg.HistoryLimit),
	)

	cleanup := func() {
		_ = cache.Close()
		closeStore()
	}
	return orch, cleanup
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

func runHTTPServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	ctx := context.Background()
	orch, cleanup := buildOrchestrator(ctx, cfg)
	defer cleanup()

	app := fiber.New(fiber.Config{
		AppName: "Yaqith",
	})

	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Yaqith Multi-Agent Safety System",
			"version": Version,
		})
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(orch.Health(c.Context()))
	})

	// analyzeHandler builds one handler per single-modality endpoint; the
	// request shape is the same, only the input field differs.
	analyzeHandler := func(build func(sessionID, input string) gateway.AnalyzeRequest) fiber.Handler {
		return func(c fiber.Ctx) error {
			var req struct {
				SessionID string `json:"session_id"`
				Text      string `json:"text"`
				URL       string `json:"url"`
				ImageRef  string `json:"image_ref"`
			}
			if err := c.Bind().Body(&req); err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
			}
			if req.SessionID == "" {
				req.SessionID = "default"
			}

			input := req.Text
			if input == "" {
				input = req.URL
			}
			if input == "" {
				input = req.ImageRef
			}

			analysis, err := orch.Analyze(c.Context(), build(req.SessionID, input))
			if err != nil {
				return errorResponse(c, err)
			}
			return c.JSON(analysis)
		}
	}

	app.Post("/analyze/text", analyzeHandler(func(sid, in string) gateway.AnalyzeRequest {
		return gateway.AnalyzeRequest{SessionID: sid, Text: in}
	}))
	app.Post("/analyze/url", analyzeHandler(func(sid, in string) gateway.AnalyzeRequest {
		return gateway.AnalyzeRequest{SessionID: sid, URL: in}
	}))
	app.Post("/analyze/logo", analyzeHandler(func(sid, in string) gateway.AnalyzeRequest {
		return gateway.AnalyzeRequest{SessionID: sid, ImageRef: in}
	}))

	app.Post("/analyze/all", func(c fiber.Ctx) error {
		var req gateway.AnalyzeRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.SessionID == "" {
			req.SessionID = "default"
		}
		analysis, err := orch.Analyze(c.Context(), req)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(analysis)
	})

	app.Post("/chat", func(c fiber.Ctx) error {
		var req gateway.ChatRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.SessionID == "" {
			req.SessionID = "default"
		}
		if req.Message == "" {
			return c.Status(400).JSON(fiber.Map{"error": "message field is required"})
		}
		result, err := orch.Chat(c.Context(), req)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(result)
	})

	app.Get("/chat/history", func(c fiber.Ctx) error {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			limit, _ = strconv.Atoi(raw)
		}
		history, err := orch.History(c.Context(), c.Query("session_id"), limit)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(history)
	})

	log.Printf("Yaqith HTTP server starting on %s", cfg.ListenAddr)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health        - Component health")
	log.Printf("  POST /analyze/text  - Analyze a text message")
	log.Printf("  POST /analyze/url   - Analyze a URL")
	log.Printf("  POST /analyze/logo  - Analyze a logo image reference")
	log.Printf("  POST /analyze/all   - Analyze any combination of inputs")
	log.Printf("  POST /chat          - Conversational analysis")
	log.Printf("  GET  /chat/history  - Recorded chat turns")

	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

// errorResponse maps the error taxonomy onto HTTP status codes.
func errorResponse(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidIdentity):
		return c.Status(400).JSON(fiber.Map{"error": "session_id must not be empty"})
	case errors.Is(err, store.ErrUnknownSession):
		return c.Status(404).JSON(fiber.Map{"error": "unknown session"})
	case errors.Is(err, store.ErrStorageUnavailable):
		return c.Status(503).JSON(fiber.Map{"error": "audit store unavailable"})
	}
	return c.Status(500).JSON(fiber.Map{"error": err.Error()})
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLIScan(text string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// One-shot scans use an in-memory store regardless of DSN.
	dispatcher := dispatch.New(buildClassifiers(cfg),
		dispatch.WithAdapterTimeout(cfg.AdapterTimeout),
	)
	engine := fusion.NewEngine(fusion.WithThresholds(cfg.SafeThreshold, cfg.DangerThreshold))
	orch := gateway.New(store.NewMemoryStore(), dispatcher, engine)

	analysis, err := orch.Analyze(context.Background(), gateway.AnalyzeRequest{
		SessionID: "cli",
		Text:      text,
	})
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}

	output, _ := json.MarshalIndent(analysis, "", "  ")
	fmt.Println(string(output))
}
