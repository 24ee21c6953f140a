package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/tradepost/pkg/app/core/market"
)

type API struct {
	Addr        string
	CORSOrigins []string
}

type Engine struct {
	// SequencerBuffer is the command queue depth per instrument. Callers
	// block once it is full.
	SequencerBuffer int
	// DispatchBuffer is the number of batches that may wait for the journal
	// and sinks before engines block.
	DispatchBuffer int
	ExpirySweep    time.Duration // 0 disables the good-till sweeper
	SinkTimeout    time.Duration
}

type Storage struct {
	Journal   string // "pebble" or "memory"
	DataDir   string
	AuditFile string // JSON-lines event log; empty disables
}

type Kafka struct {
	Brokers []string // empty disables the sink
	Topic   string
}

type Postgres struct {
	URL string // empty disables the sink
}

// Loadgen drives synthetic order flow into the exchange at startup.
type Loadgen struct {
	Enabled bool
	Mode    string // "default" or "high"
}

type Log struct {
	File  string
	Level string
}

type Config struct {
	API         API
	Engine      Engine
	Storage     Storage
	Kafka       Kafka
	Postgres    Postgres
	Log         Log
	Loadgen     Loadgen
	Instruments []market.Instrument
}

func Default() Config {
	return Config{
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Engine: Engine{
			SequencerBuffer: 1024,
			DispatchBuffer:  4096,
			ExpirySweep:     time.Second,
			SinkTimeout:     5 * time.Second,
		},
		Storage: Storage{
			Journal: "pebble",
			DataDir: "data/journal",
		},
		Kafka: Kafka{
			Topic: "tradepost.events",
		},
		Log: Log{
			File:  "logs/tradepost.log",
			Level: "info",
		},
		Loadgen: Loadgen{
			Mode: "default",
		},
		Instruments: []market.Instrument{
			mustInstrument("IRON_SWORD", market.Item, "0.01", 1),
			mustInstrument("DRAGON_SCALE", market.Item, "0.01", 1),
			mustInstrument("GUILD", market.Equity, "0.01", 1),
		},
	}
}

func mustInstrument(id string, kind market.Kind, tick string, lot int64) market.Instrument {
	in, err := market.NewInstrument(id, kind, decimal.RequireFromString(tick), lot)
	if err != nil {
		panic(err)
	}
	return in
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.CORSOrigins = splitList(origins)
	}

	if n, ok := getInt("SEQUENCER_BUFFER"); ok && n > 0 {
		cfg.Engine.SequencerBuffer = n
	}
	if n, ok := getInt("DISPATCH_BUFFER"); ok && n > 0 {
		cfg.Engine.DispatchBuffer = n
	}
	if ms, ok := getInt("EXPIRY_SWEEP_MS"); ok && ms >= 0 {
		cfg.Engine.ExpirySweep = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := getInt("SINK_TIMEOUT_MS"); ok && ms > 0 {
		cfg.Engine.SinkTimeout = time.Duration(ms) * time.Millisecond
	}

	cfg.Storage.Journal = strings.ToLower(getEnv("JOURNAL", cfg.Storage.Journal))
	switch cfg.Storage.Journal {
	case "pebble", "memory":
	default:
		return Config{}, fmt.Errorf("JOURNAL must be pebble or memory, got %q", cfg.Storage.Journal)
	}
	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.AuditFile = getEnv("AUDIT_FILE", cfg.Storage.AuditFile)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Postgres.URL = getEnv("DATABASE_URL", cfg.Postgres.URL)

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	cfg.Loadgen.Enabled = os.Getenv("ENABLE_LOADGEN") == "true"
	cfg.Loadgen.Mode = getEnv("LOADGEN_MODE", cfg.Loadgen.Mode)

	if list := os.Getenv("INSTRUMENTS"); list != "" {
		ins, err := ParseInstruments(list)
		if err != nil {
			return Config{}, err
		}
		cfg.Instruments = ins
	}

	return cfg, nil
}

// ParseInstruments reads a comma-separated list of
// "ID:kind:tickSize:lotSize[:minQty[:maxQty]]" entries, e.g.
// "IRON_SWORD:item:0.01:1,GUILD:equity:0.05:10:10:100000".
func ParseInstruments(list string) ([]market.Instrument, error) {
	var out []market.Instrument
	seen := make(map[string]bool)
	for _, entry := range splitList(list) {
		parts := strings.Split(entry, ":")
		if len(parts) < 4 || len(parts) > 6 {
			return nil, fmt.Errorf("instrument %q: want ID:kind:tick:lot[:min[:max]]", entry)
		}
		kind, err := market.ParseKind(parts[1])
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", entry, err)
		}
		tick, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("instrument %q: tick size: %w", entry, err)
		}
		lot, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("instrument %q: lot size: %w", entry, err)
		}
		in, err := market.NewInstrument(parts[0], kind, tick, lot)
		if err != nil {
			return nil, err
		}
		if len(parts) > 4 {
			if in.MinQty, err = strconv.ParseInt(parts[4], 10, 64); err != nil {
				return nil, fmt.Errorf("instrument %q: min qty: %w", entry, err)
			}
		}
		if len(parts) > 5 {
			if in.MaxQty, err = strconv.ParseInt(parts[5], 10, 64); err != nil {
				return nil, fmt.Errorf("instrument %q: max qty: %w", entry, err)
			}
		}
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("instrument %q: %w", entry, err)
		}
		if seen[in.ID] {
			return nil, fmt.Errorf("instrument %s listed twice", in.ID)
		}
		seen[in.ID] = true
		out = append(out, in)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("INSTRUMENTS is set but lists no instruments")
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
