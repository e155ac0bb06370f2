package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/fleetnav/navshare/internal/log"
	"github.com/fleetnav/navshare/pkg/auth"
	"github.com/fleetnav/navshare/pkg/nav"
	"github.com/fleetnav/navshare/pkg/store"
)

const defaultPort = 8000

const (
	EnvClientID     = "NAVSHARE_CLIENT_ID"
	EnvClientSecret = "NAVSHARE_CLIENT_SECRET"
	EnvRedirectURI  = "NAVSHARE_REDIRECT_URI"
	EnvHost         = "NAVSHARE_HOST"
	EnvPort         = "NAVSHARE_PORT"
	EnvSessionKey   = "NAVSHARE_SESSION_KEY"
	EnvStore        = "NAVSHARE_STORE"
	EnvKeyringPath  = "NAVSHARE_KEYRING_PATH"
	EnvVerbose      = "NAVSHARE_VERBOSE"
)

type serverConfig struct {
	host        string
	port        int
	verbose     bool
	redirectURI string
	storeType   string
	keyring     store.KeyringConfig
}

var config = &serverConfig{}

func init() {
	flag.StringVar(&config.host, "host", "localhost", "Server `hostname`")
	flag.IntVar(&config.port, "port", defaultPort, "`Port` to listen on")
	flag.BoolVar(&config.verbose, "verbose", false, "Enable verbose logging")
	flag.StringVar(&config.redirectURI, "redirect-uri", "", "OAuth redirect `URI` registered with Tesla. Must match byte for byte, trailing slash included.")
	flag.StringVar(&config.storeType, "store", "keyring", "Credential store `type`: keyring or memory")
	flag.StringVar(&config.keyring.Path, "keyring-path", "", "`Directory` for file-backed keyring storage")
	flag.Var(store.BackendFlag{Config: &config.keyring}, "keyring-type", "Keyring backend type")
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "A server that sends destinations to a Tesla's navigation system.")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "OAuth client credentials are read from $%s and $%s.\n", EnvClientID, EnvClientSecret)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
}

// readFromEnvironment applies environment variables to unset options.
func readFromEnvironment() error {
	if config.host == "localhost" {
		if host, ok := os.LookupEnv(EnvHost); ok {
			config.host = host
		}
	}
	if config.port == defaultPort {
		if port, ok := os.LookupEnv(EnvPort); ok {
			var err error
			config.port, err = strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid port: %s", port)
			}
		}
	}
	if config.redirectURI == "" {
		config.redirectURI = os.Getenv(EnvRedirectURI)
	}
	if config.keyring.Path == "" {
		config.keyring.Path = os.Getenv(EnvKeyringPath)
	}
	if storeType, ok := os.LookupEnv(EnvStore); ok && config.storeType == "keyring" {
		config.storeType = storeType
	}
	if !config.verbose {
		if verbose, ok := os.LookupEnv(EnvVerbose); ok {
			config.verbose = verbose != "false" && verbose != "0"
		}
	}
	return nil
}

func sessionKey() []byte {
	if key := os.Getenv(EnvSessionKey); key != "" {
		return []byte(key)
	}
	// Sessions only remember which name the browser entered, so an
	// ephemeral key costs no more than a re-login after restart.
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	log.Warning("$%s not set; sessions will not survive restarts", EnvSessionKey)
	return key
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if err := readFromEnvironment(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if config.verbose {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelInfo)
	}

	clientID := os.Getenv(EnvClientID)
	clientSecret := os.Getenv(EnvClientSecret)
	if clientID == "" || clientSecret == "" {
		fmt.Fprintf(os.Stderr, "Set $%s and $%s\n", EnvClientID, EnvClientSecret)
		os.Exit(1)
	}
	if config.redirectURI == "" {
		config.redirectURI = fmt.Sprintf("http://%s:%d/auth/callback", config.host, config.port)
	}

	var credentials store.CredentialStore
	switch config.storeType {
	case "memory":
		credentials = store.NewMemory()
	case "keyring":
		credentials = store.NewKeyring(config.keyring)
	default:
		fmt.Fprintf(os.Stderr, "Unknown credential store type %q\n", config.storeType)
		os.Exit(1)
	}

	authManager := auth.NewManager(auth.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  config.redirectURI,
	}, credentials)
	navService := nav.NewService(credentials)

	server := NewServer(authManager, navService, sessionKey())
	addr := fmt.Sprintf("%s:%d", config.host, config.port)
	log.Info("Listening on %s", addr)
	log.Error("Server stopped: %s", http.ListenAndServe(addr, server))
	os.Exit(1)
}
