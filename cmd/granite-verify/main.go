package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/granite-verify/internal/config"
	"github.com/23skdu/granite-verify/internal/export"
	"github.com/23skdu/granite-verify/internal/logger"
	"github.com/23skdu/granite-verify/internal/model"
	"github.com/23skdu/granite-verify/internal/rope"
)

var (
	configPath  = flag.String("config", "", "Path to JSON model config (defaults built in)")
	scalingType = flag.String("rope-scaling", "", "RoPE scaling type: linear, dynamic or yarn")
	scalingFact = flag.Float64("rope-factor", 10.0, "RoPE scaling factor")
	seqLen      = flag.Int("seq", 32, "Sequence length for the table dump and smoke pass")
	genTokens   = flag.Int("n", 16, "Number of tokens to generate in the smoke pass")
	seed        = flag.Int64("seed", 42, "Weight initialization seed")
	flightAddr  = flag.String("flight", "", "host:port of an Arrow Flight collector (optional)")
	metricsAddr = flag.String("metrics", ":9090", "Address to serve Prometheus metrics")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat   = flag.String("log-format", "console", "Log format: console or json")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Log.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	cfg.Seed = *seed
	if *scalingType != "" {
		cfg.Scaling = &config.RopeScaling{Type: *scalingType, Factor: *scalingFact}
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Log.Info("metrics serving", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Log.Warn("metrics server error", "error", err)
		}
	}()

	lm, err := model.NewForCausalLM(cfg)
	if err != nil {
		logger.Log.Error("failed to build model", "error", err)
		os.Exit(1)
	}

	positions := make([][]int32, 1)
	positions[0] = make([]int32, *seqLen)
	for i := range positions[0] {
		positions[0][i] = int32(i)
	}
	tables, err := lm.Rotary().Tables(positions, rope.F32)
	if err != nil {
		logger.Log.Error("table build failed", "error", err)
		os.Exit(1)
	}
	kind := lm.Rotary().Kind()
	if kind == "" {
		kind = "none"
	}
	logger.Log.Info("rope tables built",
		"kind", kind, "seq", tables.SeqLen, "head_dim", tables.Dim,
		"attention_scale", lm.Rotary().AttentionScale())

	if *flightAddr != "" {
		if err := publishTables(tables, kind); err != nil {
			logger.Log.Warn("table export failed", "error", err)
		}
	}

	prompt := []int32{1, 2, 3, 4}
	start := time.Now()
	generated, err := lm.Generate(prompt, *genTokens, model.SamplerConfig{Seed: *seed})
	if err != nil {
		logger.Log.Error("generation failed", "error", err)
		os.Exit(1)
	}
	logger.Log.Info("smoke generation complete",
		"tokens", len(generated), "duration", time.Since(start))

	parts := make([]string, len(generated))
	for i, tok := range generated {
		parts[i] = fmt.Sprintf("%d", tok)
	}
	fmt.Println(strings.Join(parts, " "))
}

func publishTables(tables *rope.Tables, kind string) error {
	host, port := splitHostPort(*flightAddr)
	pub := export.NewPublisher(host, port)
	if err := pub.Connect(); err != nil {
		return err
	}
	defer pub.Close()

	rec, err := export.TableRecord(tables)
	if err != nil {
		return err
	}
	defer rec.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return pub.Publish(ctx, "rope/"+kind, rec)
}

func splitHostPort(addr string) (string, int) {
	host := addr
	port := export.DefaultPort
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
		fmt.Sscanf(addr[i+1:], "%d", &port)
	}
	return host, port
}
