// Command cortex is the CLI front-end over the store, consolidate, dream,
// contextdoc, and rpc packages: a cobra root command with persistent flags,
// a thin per-verb dispatch, and a signal-aware MCP-mode entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/consolidate"
	"github.com/cortexmem/cortex/internal/llm"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/skills"
	"github.com/cortexmem/cortex/internal/store"
)

// Version is set at release time; left as a plain constant here since this
// repo has no build-time ldflags pipeline of its own.
const Version = "0.1.0"

var (
	flagDir     string
	flagJSON    bool
	flagCompact bool
	flagGlobal  bool
	flagMicro   bool
	flagType    string
	flagQuery   string
	flagLimit   int
)

const (
	exitSuccess          = 0
	exitValidation       = 2
	exitStoreUnavailable = 3
	exitLLMError         = 4
	exitLockContention   = 5
)

var rootCmd = &cobra.Command{
	Use:     "cortex",
	Short:   "Repo-local cognitive memory for AI coding agents",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", ".cortex", "project cortex directory")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON instead of plain text")
}

func main() {
	logging.Init(logging.Config{
		Level:  os.Getenv("CORTEX_LOG_LEVEL"),
		Format: os.Getenv("CORTEX_LOG_FORMAT"),
	})
	Execute()
}

// Execute runs the root command, translating returned errors into the
// exit codes above rather than cobra's default always-1 behavior.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch err.(type) {
	case *store.ValidationError:
		return exitValidation
	case *store.StoreUnavailableError, *store.IncompatibleSchemaError:
		return exitStoreUnavailable
	case *store.LockContentionError:
		return exitLockContention
	case *llm.AuthError, *consolidate.LlmProtocolError:
		return exitLLMError
	default:
		return exitValidation
	}
}

// openStore opens the project store at --dir.
func openStore() (*store.Store, error) {
	return store.Open(flagDir)
}

// loadConfig loads .cortex/config.toml under --dir.
func loadConfig() (*config.Config, error) {
	return config.Load(flagDir)
}

// loadProvider constructs an llm.Provider from the environment, returning
// nil when no credentials are configured; callers degrade to micro
// pass semantics in that case rather than treating it as an error.
func loadProvider(cfg *config.Config) llm.Provider {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		p, err := llm.NewProvider(llm.Config{Provider: "anthropic", Model: cfg.Consolidation.Model})
		if err == nil {
			return p
		}
	}
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != "" && os.Getenv("AWS_REGION") != "" {
		p, err := llm.NewProvider(llm.Config{
			Provider:        "signed",
			Model:           cfg.Consolidation.Model,
			Region:          os.Getenv("AWS_REGION"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
		if err == nil {
			return p
		}
	}
	return nil
}

// skillsWriter constructs a skills.Writer rooted at the project/global
// skill directories implied by an open Store.
func skillsWriter(s *store.Store) *skills.Writer {
	return skills.NewWriter(s.SkillsDir(), s.GlobalSkillsDir())
}

// runWithSignals wraps a long-running, context-aware operation (mcp, sleep,
// dream) with SIGINT/SIGTERM cancellation.
func runWithSignals(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	err := fn(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
