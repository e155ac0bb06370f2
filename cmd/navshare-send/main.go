// Command-line trigger for sending a destination to a previously connected
// vehicle.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetnav/navshare/internal/log"
	"github.com/fleetnav/navshare/pkg/nav"
	"github.com/fleetnav/navshare/pkg/store"
)

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: %s -user name destination...\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Wakes the user's vehicle and sends the destination to its navigation")
	fmt.Fprintln(w, "system, using credentials stored in the system keyring by navshare-server.")
	fmt.Fprintln(w, "")
	flag.PrintDefaults()
}

func main() {
	returnCode := 1
	defer func() {
		os.Exit(returnCode)
	}()

	var user string
	var verbose bool
	keyringConfig := store.KeyringConfig{}
	flag.StringVar(&user, "user", "", "User `name` the vehicle was connected under")
	flag.StringVar(&keyringConfig.Path, "keyring-path", "", "`Directory` for file-backed keyring storage")
	flag.Var(store.BackendFlag{Config: &keyringConfig}, "keyring-type", "Keyring backend type")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Usage = usage
	flag.Parse()

	if verbose {
		log.SetLevel(log.LevelDebug)
	}

	destination := strings.Join(flag.Args(), " ")
	if user == "" || destination == "" {
		usage()
		return
	}

	service := nav.NewService(store.NewKeyring(keyringConfig))
	fmt.Printf("Waking vehicle...\n")
	result, err := service.HandleNavigationRequest(context.Background(), user, destination)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return
	}

	fmt.Println(result.Message)
	returnCode = 0
}
