package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/braintree/manners"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/maneframe/qbbillbridge/bridge"
	"github.com/maneframe/qbbillbridge/qbo"
	"github.com/maneframe/qbbillbridge/token"
)

const description = "QuickBooks token and bill bridge"
const version = "0.2.0 October 2026"
const usage = " <options>" + "\n\n  " + description

// Opts are the command line options. Each may also be set by the
// environment variable named in its env tag, or from a .env file.
type Opts struct {
	Addr           string   `short:"n" long:"address" env:"HOST" description:"network address to run on" default:"0.0.0.0"`
	Port           string   `short:"p" long:"port" env:"PORT" description:"port to run on" default:"3000"`
	ClientID       string   `long:"client-id" env:"QB_CLIENT_ID" description:"Intuit app client id (required)"`
	ClientSecret   string   `long:"client-secret" env:"QB_CLIENT_SECRET" description:"Intuit app client secret (required)"`
	Redirect       string   `short:"r" long:"redirect" env:"QB_REDIRECT_URI" description:"oauth2 redirect address" default:"http://localhost:3000/auth/qb/callback"`
	Scopes         []string `short:"o" long:"scopes" env:"QB_SCOPES" env-delim:" " description:"oauth2 scopes" default:"com.intuit.quickbooks.accounting"`
	Environment    string   `short:"e" long:"environment" env:"QB_ENVIRONMENT" description:"QuickBooks environment" choice:"sandbox" choice:"production" default:"sandbox"`
	RealmID        string   `long:"realm-id" env:"QB_REALM_ID" description:"QuickBooks company id, otherwise taken from the oauth callback"`
	ExpenseAccount string   `long:"expense-account" env:"QB_EXPENSE_ACCOUNT_ID" description:"expense account id bills are booked to (required)"`
	MinorVersion   string   `long:"minor-version" env:"QB_MINOR_VERSION" description:"accounting api minor version" default:"75"`
	RefreshToken   string   `long:"refresh-token" env:"QB_REFRESH_TOKEN" description:"saved refresh token to start with"`
	ExpiryMargin   int      `long:"expiry-margin" env:"QB_EXPIRY_MARGIN_SECS" description:"seconds before access token expiry to refresh" default:"60"`
	RefreshCheck   int      `short:"m" long:"refresh-check" env:"QB_REFRESH_CHECK_MINS" description:"minutes between refresh token expiry checks, 0 to disable" default:"0"`
	Timeout        int      `long:"timeout" env:"QB_HTTP_TIMEOUT_SECS" description:"timeout in seconds for calls to Intuit" default:"10"`
	LogLevel       string   `long:"log-level" env:"LOG_LEVEL" description:"log level" default:"info"`
	LogFormat      string   `long:"log-format" env:"LOG_FORMAT" description:"log format" choice:"text" choice:"json" default:"text"`
	LogFile        string   `long:"log-file" env:"LOG_FILE" description:"log to this file, rotated, rather than stdout"`
}

// parseOptions parses args into Opts, checking the settings without
// defaults have been provided
func parseOptions(args []string) (*Opts, *flags.Parser, error) {
	var options Opts
	parser := flags.NewParser(&options, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = fmt.Sprintf("%s : %s", usage, version)

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, parser, err
	}

	var missing []string
	if options.ClientID == "" {
		missing = append(missing, "client-id (QB_CLIENT_ID)")
	}
	if options.ClientSecret == "" {
		missing = append(missing, "client-secret (QB_CLIENT_SECRET)")
	}
	if options.ExpenseAccount == "" {
		missing = append(missing, "expense-account (QB_EXPENSE_ACCOUNT_ID)")
	}
	if len(missing) > 0 {
		return nil, parser, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if options.Timeout < 1 {
		return nil, parser, errors.New("timeout must be at least 1 second")
	}
	return &options, parser, nil
}

// setupLogging configures the standard logrus logger
func setupLogging(options *Opts) error {
	level, err := log.ParseLevel(options.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if options.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if options.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   options.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	log.SetOutput(out)
	return nil
}

// newRouter registers the routes. gorilla mux is used because "/" in
// http.NewServeMux is a catch-all pattern.
func newRouter(ts *token.Token, bh *bridge.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", bh.HandleRoot).Methods(http.MethodGet)
	r.HandleFunc("/__ping", bh.HandlePing).Methods(http.MethodGet)

	auth := r.PathPrefix("/auth/qb").Subrouter()
	auth.HandleFunc("/start", ts.HandleStart).Methods(http.MethodGet)
	auth.HandleFunc("/callback", ts.HandleCallback).Methods(http.MethodGet)
	auth.HandleFunc("/refresh", ts.HandleRefresh).Methods(http.MethodGet)
	auth.HandleFunc("/status", ts.HandleStatus).Methods(http.MethodGet)
	auth.HandleFunc("/disconnect", ts.HandleDisconnect).Methods(http.MethodPost)

	qb := r.PathPrefix("/qb").Subrouter()
	qb.HandleFunc("/vendors", bh.HandleVendors).Methods(http.MethodGet)
	qb.HandleFunc("/accounts", bh.HandleAccounts).Methods(http.MethodGet)
	qb.HandleFunc("/bills", bh.HandleBills).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func main() {

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn(".env file could not be loaded")
	}

	options, parser, err := parseOptions(os.Args[1:])
	if err != nil {
		var flagError *flags.Error
		if errors.As(err, &flagError) && flagError.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n\n", err)
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	if err := setupLogging(options); err != nil {
		log.Fatalf("logging setup error: %s", err)
	}

	timeout := time.Duration(options.Timeout) * time.Second
	ts, err := token.NewToken(token.Config{
		Redirect:     options.Redirect,
		ClientID:     options.ClientID,
		ClientSecret: options.ClientSecret,
		Scopes:       options.Scopes,
		RealmID:      options.RealmID,
		RefreshToken: options.RefreshToken,
		ExpirySecs:   options.ExpiryMargin,
		HTTPTimeout:  timeout,
	})
	if err != nil {
		log.Fatalf("new token error: %s", err)
	}

	baseURL, err := qbo.BaseURL(options.Environment)
	if err != nil {
		log.Fatal(err)
	}
	client := qbo.NewClient(baseURL, options.MinorVersion, ts, timeout)
	bh := bridge.NewHandler(client, options.ExpenseAccount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if options.RefreshCheck > 0 {
		if options.RefreshCheck < 20 {
			log.Warn("it is inadvisable to check refresh token expiry more often than every 20 minutes in production")
		}
		ts.Keepalive(ctx, time.Duration(options.RefreshCheck)*time.Minute)
	}

	// wrap the router in a recovery handler and logging handler
	logger := log.StandardLogger()
	hdl := handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger),
		handlers.PrintRecoveryStack(true),
	)(handlers.LoggingHandler(logger.Writer(), newRouter(ts, bh)))

	addr := options.Addr + ":" + options.Port
	server := manners.NewWithServer(&http.Server{
		Addr:         addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		Handler:      hdl,
	})

	// catch signals
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go listenForShutdown(ch, server, cancel)

	log.WithFields(log.Fields{
		"address":     addr,
		"environment": options.Environment,
		"realm_id":    ts.Realm(),
		"connected":   ts.Connected(),
	}).Info("serving")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %s", err)
	}
	log.Info("server stopped")
}

func listenForShutdown(ch <-chan os.Signal, server *manners.GracefulServer, cancel context.CancelFunc) {
	<-ch
	log.Info("closing the server")
	cancel()
	server.Close()
}
