// Command testbrowser exercises the browser layer end to end against a real Chrome:
// launch or attach, health check, optional navigation, and a scripted evaluation.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neboloop/chatdriver/internal/browser"
	"github.com/neboloop/chatdriver/internal/logging"
)

func main() {
	fmt.Println("=== Browser Test ===")

	// Parse args
	driver := browser.DriverChromedp
	url := ""
	if len(os.Args) >= 2 {
		driver = os.Args[1]
	}
	if len(os.Args) >= 3 {
		url = os.Args[2]
	}

	logger := logging.New(logging.Options{Verbose: true})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dir, err := os.MkdirTemp("", "testbrowser")
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	fmt.Println("\n1. Ensuring daemon...")
	daemon := browser.NewDaemon(browser.DaemonOptions{
		Spec: browser.LaunchSpec{
			CDPPort:     browser.DefaultCDPPort,
			UserDataDir: filepath.Join(dir, "user-data"),
			Headless:    true,
		},
		Descriptors: browser.NewDescriptorStore(filepath.Join(dir, "browser_cdp.json")),
		Logger:      logger,
	})
	if err := daemon.Ensure(ctx); err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   Status: %+v\n", daemon.Status(ctx))

	fmt.Printf("\n2. Connecting with %s...\n", driver)
	connector, err := browser.NewConnector(driver, logger)
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		os.Exit(1)
	}
	h, err := connector.Connect(ctx, daemon.Endpoint())
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		fmt.Println("\n5. Shutting down...")
		_ = h.Shutdown(context.Background())
		_ = daemon.Stop(context.Background())
	}()

	fmt.Println("\n3. Health check...")
	fmt.Printf("   Alive: %v\n", browser.IsAlive(ctx, h, browser.DefaultHealthTimeout))

	if url != "" {
		fmt.Printf("\n4. Navigating to %s...\n", url)
		if err := h.Navigate(ctx, url); err != nil {
			fmt.Printf("   ERROR: %v\n", err)
			return
		}
	} else {
		fmt.Println("\n4. Reading page...")
	}
	current, _ := h.URL(ctx)
	var title string
	if err := h.Evaluate(ctx, "document.title", &title); err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return
	}
	fmt.Printf("   URL: %s\n   Title: %q\n", current, title)
}
