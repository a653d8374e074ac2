// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/mindshot/internal/api/google/docs"
	"go.astrophena.name/mindshot/internal/api/google/gemini"
	"go.astrophena.name/mindshot/internal/api/google/serviceaccount"
	"go.astrophena.name/mindshot/internal/api/telegram"
	"go.astrophena.name/mindshot/internal/bot"
	"go.astrophena.name/mindshot/internal/cli"
	"go.astrophena.name/mindshot/internal/logger"
	"go.astrophena.name/mindshot/internal/registry"
	"go.astrophena.name/mindshot/internal/util/syncx"
	"go.astrophena.name/mindshot/internal/web"

	"github.com/joho/godotenv"
)

func main() { cli.Main(new(engine)) }

type engine struct {
	init syncx.Lazy[error] // main initialization

	// initialized by doInit
	bot       *bot.Bot
	tg        *telegram.Client
	geminic   *gemini.Client
	docsc     *docs.Client
	registry  *registry.Registry
	logStream logger.Streamer
	logf      logger.Logf
	mux       *http.ServeMux
	scrubber  *strings.Replacer

	// configuration, read-only after initialization
	addr         string
	mode         string
	prod         bool
	tgToken      string
	tgSecret     string
	geminiKey    string
	geminiModel  string
	keyFile      string
	registryPath string
	allowedUsers []int64
	host         string
	httpc        *http.Client
	me           telegram.User // obtained from Telegram Bot API
	stderr       io.Writer

	// for tests
	noServerStart bool
	ready         func() // see web.ListenAndServeConfig.Ready
}

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.StringVar(&e.addr, "addr", "localhost:3000", "Listen on `host:port`.")
	fs.StringVar(&e.mode, "mode", "polling", "Receive updates via `mode`: polling or webhook.")
	fs.BoolVar(&e.prod, "prod", false, "Run in production mode (enables authentication on debug endpoints).")
}

var (
	errNoHost      = errors.New("HOST environment variable is not set, it's required in webhook mode")
	errUnknownMode = errors.New("unknown mode")
)

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	// A .env file is optional.
	godotenv.Load()

	// Load configuration from environment variables.
	e.tgToken = cmp.Or(e.tgToken, env.Getenv("TELEGRAM_TOKEN"))
	e.tgSecret = cmp.Or(e.tgSecret, env.Getenv("TELEGRAM_SECRET"))
	e.geminiKey = cmp.Or(e.geminiKey, env.Getenv("GEMINI_KEY"))
	e.geminiModel = cmp.Or(e.geminiModel, env.Getenv("GEMINI_MODEL"))
	e.keyFile = cmp.Or(e.keyFile, env.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY"), "credentials.json")
	e.registryPath = cmp.Or(e.registryPath, env.Getenv("REGISTRY_PATH"), "user_docs.json")
	e.host = cmp.Or(e.host, env.Getenv("HOST"))
	if len(e.allowedUsers) == 0 {
		users, err := parseAllowedUsers(env.Getenv("ALLOWED_USERS"))
		if err != nil {
			return err
		}
		e.allowedUsers = users
	}

	if e.tgToken == "" {
		return fmt.Errorf("%w: TELEGRAM_TOKEN environment variable is not set", cli.ErrInvalidArgs)
	}
	if e.geminiKey == "" {
		return fmt.Errorf("%w: GEMINI_KEY environment variable is not set", cli.ErrInvalidArgs)
	}

	e.stderr = env.Stderr

	// Initialize internal state.
	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return err
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	switch e.mode {
	case "webhook":
		if e.host == "" {
			return errNoHost
		}
		if err := e.tg.SetWebhook(ctx, "https://"+e.host+"/telegram", e.tgSecret); err != nil {
			return err
		}
		e.logf("Webhook set to https://%s/telegram.", e.host)
	case "polling":
		go func() {
			if err := e.bot.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logf("Polling stopped: %v", err)
			}
		}()
	default:
		return fmt.Errorf("%w %q: want polling or webhook", errUnknownMode, e.mode)
	}

	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:      e.addr,
		Mux:       e.mux,
		Logf:      e.logf,
		DebugAuth: e.debugAuth,
		Ready:     e.ready,
	})
}

func parseAllowedUsers(s string) ([]int64, error) {
	var users []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid user ID %q in ALLOWED_USERS", cli.ErrInvalidArgs, part)
		}
		users = append(users, id)
	}
	return users, nil
}

func (e *engine) doInit(ctx context.Context) error {
	if e.httpc == nil {
		e.httpc = &http.Client{
			// Audio transcription can take a while.
			Timeout: 90 * time.Second,
		}
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}

	const logLineLimit = 300
	e.logStream = logger.NewStreamer(logLineLimit)
	e.logf = log.New(io.MultiWriter(e.stderr, &timestampWriter{e.logStream}), "", 0).Printf

	var scrubPairs []string
	for _, val := range []string{
		e.tgToken,
		e.tgSecret,
		e.geminiKey,
	} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	if len(scrubPairs) > 0 {
		e.scrubber = strings.NewReplacer(scrubPairs...)
	}

	key, err := serviceaccount.LoadKey(e.keyFile)
	if err != nil {
		return fmt.Errorf("loading service account key: %w", err)
	}

	e.tg = &telegram.Client{
		Token:      e.tgToken,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber,
	}
	e.geminic = &gemini.Client{
		APIKey:     e.geminiKey,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber,
	}
	e.docsc = &docs.Client{
		Key:        key,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber,
	}

	e.registry, err = registry.Open(e.registryPath)
	if err != nil {
		return err
	}

	me, err := e.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	e.me = me
	e.logf("Running as @%s (ID %d) in %s mode.", me.Username, me.ID, e.mode)

	e.bot = bot.New(bot.Opts{
		Telegram:     e.tg,
		Gemini:       e.geminic,
		Docs:         e.docsc,
		Registry:     e.registry,
		AllowedUsers: e.allowedUsers,
		Secret:       e.tgSecret,
		Model:        e.geminiModel,
		Logf:         e.logf,
	})

	e.initRoutes()

	return nil
}

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	e.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Bot is running!")
	})
	e.mux.HandleFunc("POST /telegram", e.bot.HandleWebhook)

	health := web.Health(e.mux)
	health.RegisterFunc("bot", func() (status string, ok bool) {
		return fmt.Sprintf("running as @%s in %s mode", e.me.Username, e.mode), true
	})

	e.mux.HandleFunc("GET /debug/log", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			e.logStream.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, line := range e.logStream.Lines() {
			io.WriteString(w, line)
		}
	})
}

// debugAuth guards debug endpoints in production mode: they are only
// reachable with the webhook secret passed as a bearer token.
func (e *engine) debugAuth(r *http.Request) bool {
	if !e.prod {
		return true
	}
	return e.tgSecret != "" && r.Header.Get("Authorization") == "Bearer "+e.tgSecret
}

// timestampWriter is an io.Writer that prefixes each line with the current date and time.
type timestampWriter struct {
	w io.Writer
}

func (tw *timestampWriter) Write(p []byte) (n int, err error) {
	lines := bytes.SplitAfter(p, []byte{'\n'})

	for _, line := range lines {
		if len(line) > 0 {
			timestamp := time.Now().Format(time.DateTime + "\t")
			_, err := tw.w.Write([]byte(timestamp))
			if err != nil {
				return n, err
			}
			nn, err := tw.w.Write(line)
			n += nn
			if err != nil {
				return n, err
			}
		}
	}

	return n, nil
}
