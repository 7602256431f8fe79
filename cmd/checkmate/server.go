package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/checkmate-server/lobby/internal"
	"github.com/checkmate-server/lobby/internal/core"
)

func ServerCommand(cmd *cobra.Command, args []string) {
	config := loadConfig()

	// Bind the Controller to one top-level context so the deferred cleanup runs.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := &internal.Controller{Config: config}

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(controller, c)

	if err := controller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println("shut down")
}

// exitHandler drains the lobby on the first signal and hard exits on the second.
func exitHandler(controller *internal.Controller, c chan os.Signal) {
	<-c
	fmt.Println("no longer accepting players, waiting for running duels to finish...")
	controller.StopListening()

	<-c
	fmt.Println("hard exiting (killed)")
	os.Exit(1)
}

// loadConfig reads the configuration and changes to its directory so that any
// relative paths in the config file resolve.
func loadConfig() *core.Config {
	config, err := core.LoadConfig(ConfigFlag)
	if err != nil {
		fmt.Println("error loading config:", err)
		os.Exit(1)
	}
	fmt.Println("using configuration directory:", ConfigFlag)

	if err := os.Chdir(ConfigFlag); err != nil {
		fmt.Println("error changing to config directory:", err)
		os.Exit(1)
	}
	return config
}
