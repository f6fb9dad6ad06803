// Command lcn is a dev CLI for lincon maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/linconhq/lincon/internal/config"
	"github.com/linconhq/lincon/internal/logging"
	"github.com/linconhq/lincon/internal/poster"
	"github.com/linconhq/lincon/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "login":
		runLogin()
	case "check-session":
		runCheckSession()
	case "post":
		runPost(os.Args[2:])
	case "config-path":
		path, err := config.ConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(path)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: lcn <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  login                      Log in to LinkedIn and persist the session")
	fmt.Println("  check-session              Verify the persisted session against the live site")
	fmt.Println("  post <caption> <img>...    Publish a test carousel immediately")
	fmt.Println("  config-path                Print the config file location")
}

func newClient() (*poster.Client, *config.Config) {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Warn("could not load config, using defaults")
		cfg = config.Default()
	}

	dataDir := cfg.Storage.DataDir
	sessions := session.NewStore(session.DefaultPath(dataDir))

	client := poster.New(sessions, cfg.LinkedIn.Headless,
		time.Duration(cfg.LinkedIn.ChallengeGraceSeconds)*time.Second,
		filepath.Join(dataDir, "screenshots"),
		logging.ForComponent(logger, "poster"))

	if err := client.Initialize(context.Background()); err != nil {
		logger.WithError(err).Fatal("browser init failed")
	}

	return client, cfg
}

func runLogin() {
	client, cfg := newClient()
	defer client.Close()

	if err := client.Login(context.Background(), cfg.LinkedIn.Email, cfg.LinkedIn.Password); err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}
	fmt.Println("Logged in, session saved.")
}

func runCheckSession() {
	client, _ := newClient()
	defer client.Close()

	if client.CheckSession(context.Background()) {
		fmt.Println("Session valid.")
		return
	}
	fmt.Println("Session invalid - run: lcn login")
	os.Exit(1)
}

func runPost(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: lcn post <caption> <image>...")
		os.Exit(1)
	}

	client, _ := newClient()
	defer client.Close()

	res := client.PostCarousel(context.Background(), args[0], args[1:], time.Time{})
	if !res.Success {
		fmt.Fprintln(os.Stderr, "post failed:", res.Error)
		os.Exit(1)
	}
	fmt.Println("Posted.")
	if res.PostURL != "" {
		fmt.Println("URL:", res.PostURL)
	}
}
