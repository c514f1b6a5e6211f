package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/priya/fete/internal/agent"
	"github.com/priya/fete/internal/confirm"
	"github.com/priya/fete/internal/finalize"
	"github.com/priya/fete/internal/gateway"
	"github.com/priya/fete/internal/governance"
	"github.com/priya/fete/internal/observability"
	"github.com/priya/fete/internal/orchestrator"
	"github.com/priya/fete/internal/store"
	"github.com/priya/fete/internal/tools"
	"github.com/priya/fete/pkg/config"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	st, err := store.NewStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}

	// Initialize Tools
	registry := tools.NewRegistry()

	renderer := tools.NewPageRenderer()
	defer renderer.Close()
	registry.Register(tools.NewRecipeImportTool(renderer))

	searchTool, err := tools.NewIdeaSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize idea search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	var library *tools.DishLibrary
	if cfg.Wizard.DishLibraryPath != "" {
		library, err = tools.LoadDishLibrary(cfg.Wizard.DishLibraryPath)
		if err != nil {
			log.Printf("Warning: Failed to load dish library: %v", err)
		}
	}
	if library == nil {
		library = &tools.DishLibrary{}
	}
	registry.Register(tools.NewDishLibraryTool(library))

	prompts := agent.NewPromptManager(cfg.Wizard.PromptsDir)
	logger := observability.NewLogger()

	pol := governance.NewStepPolicyEngine()
	// Default safety rules: keep untrusted schemes out of recipe payloads.
	_ = pol.DenyPayload(`file://`)
	_ = pol.DenyPayload(`javascript:`)

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	assistant := agent.NewAssistant(llm, prompts, registry, library, st, logger)
	assistant.HistoryWindow = cfg.Wizard.HistoryWindow

	fin := finalize.NewFinalizer(st, cfg.App.PlansDir)
	orch := orchestrator.New(st, assistant, pol, confirm.NewEngine(), fin, logger)
	orch.AgentTimeout = time.Duration(cfg.Wizard.AgentTimeoutSec) * time.Second

	var gateways []gateway.Messenger
	if gwCfg, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(gwCfg.Token, orch)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, tg)
	}
	if gwCfg, ok := cfg.GetGateway("discord"); ok {
		dc, err := gateway.NewDiscordGateway(gwCfg.Token, orch)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, dc)
	}
	if len(gateways) == 0 {
		log.Fatal("No gateway is enabled in config")
	}

	// Start Background Scheduler with a cancelable context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := agent.NewScheduler(st, gateways[0], logger)
	scheduler.Interval = time.Duration(cfg.Wizard.ReminderPollSec) * time.Second
	go scheduler.Start(ctx)

	// Start Live Resource Dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	// Start gateways in goroutines so we can wait for context in the main loop
	for _, gw := range gateways {
		gw := gw
		go func() {
			if err := gw.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop() // stop caller if gateway dies
			}
		}()
	}

	// Wait for shutdown signal
	<-ctx.Done()

	for _, gw := range gateways {
		_ = gw.Stop()
	}

	// Reset terminal aesthetics
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] PLANNER DE-INITIALIZED. GOODBYE.\033[0m")
}
