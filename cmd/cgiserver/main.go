/*
 * MIT License
 *
 * Copyright (c) 2024 The cgiserver authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Command cgiserver boots the server: parse the --config/-c flag via
// a spf13/cobra root command, load configuration, open the log,
// initialize the resource pack, open the listen socket, install the
// SIGINT/SIGTERM handler, then drive the configured concurrency
// strategy until interrupted. No other signals are blocked or masked.
// Bootstrap order follows spec.md §6.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arqtic/cgiserver/internal/handler"
	"github.com/arqtic/cgiserver/internal/listener"
	"github.com/arqtic/cgiserver/internal/metrics"
	"github.com/arqtic/cgiserver/internal/resources"
	"github.com/arqtic/cgiserver/internal/srvconfig"
	"github.com/arqtic/cgiserver/internal/srvlog"
	"github.com/arqtic/cgiserver/internal/strategy"
)

func main() {
	os.Exit(run())
}

// run builds the root command, the way nabbar-golib/cobra's SetFlagConfig
// wires a persistent --config/-c flag onto a spfcbr.Command, and executes
// it. exitCode is captured from RunE rather than returned by Execute
// itself, since cobra's own error path is for usage errors, not this
// program's own startup/runtime failures.
func run() int {
	exitCode := 0
	var configPath string

	root := &cobra.Command{
		Use:           "cgiserver",
		Short:         "concurrent HTTP/CGI server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = serve(configPath)
			if exitCode != 0 {
				return fmt.Errorf("exit code %d", exitCode)
			}
			return nil
		},
	}
	defaultConfig := "server.conf"
	if exe, err := os.Executable(); err == nil {
		defaultConfig = filepath.Join(filepath.Dir(exe), "server.conf")
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to the server configuration file")

	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 1
		}
		fmt.Fprintf(os.Stderr, "cgiserver: %v\n", err)
	}

	return exitCode
}

// serve runs the bootstrap sequence spec.md §6 describes against the
// configuration found at configPath, driving the selected strategy
// until an interrupt is received.
func serve(configPath string) int {
	cfg, err := srvconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cgiserver: configuration error: %v\n", err)
		return 1
	}

	log, err := srvlog.Open(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cgiserver: unable to open log: %v\n", err)
		return 1
	}
	defer log.Close()

	pack, err := resources.New(cfg.MaxClients)
	if err != nil {
		log.Errorf("resource init failed: %v", err)
		return 1
	}

	ln, err := listener.Open(cfg.Port, log)
	if err != nil {
		log.Errorf("listen socket open failed: %v", err)
		return 1
	}
	defer ln.Close()

	h := &handler.Handler{Config: cfg, Log: log}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchSignals(ctx, cancel, log, ln, pack)

	watcher, err := srvconfig.Watch(configPath, func() {
		log.Infof("configuration file %s changed on disk; restart to apply", configPath)
	})
	if err != nil {
		log.Warnf("configuration watch not started: %v", err)
	} else {
		defer watcher.Stop()
	}

	go metrics.Serve(ctx, cfg.MetricsAddr, log)

	driver := buildDriver(cfg, ln, h.Handle, pack, log)

	if err := driver.Run(ctx); err != nil {
		log.Errorf("strategy exited with error: %v", err)
		return 1
	}

	log.Infof("Server closed")

	return 0
}

// buildDriver selects the concurrency strategy per spec.md §4.2; Mode
// is validated by srvconfig, so the default case is unreachable in
// practice and exists only to satisfy the compiler.
func buildDriver(cfg *srvconfig.Config, ln *listener.Listener, handle strategy.HandleFunc, pack *resources.Pack, log *srvlog.Logger) strategy.Driver {
	switch cfg.Mode {
	case srvconfig.ModeReactive:
		return &strategy.Reactive{Listener: ln, Handle: handle, Pool: pack, Log: log}
	case srvconfig.ModePool:
		return &strategy.Pool{Listener: ln, Handle: handle, Res: pack, Log: log}
	default:
		return &strategy.Iterative{Listener: ln, Handle: handle, MaxClients: cfg.MaxClients, Log: log}
	}
}

// watchSignals installs the interrupt handler spec.md §5 describes:
// on SIGINT/SIGTERM, cancel every live connection handle under the
// pack's table lock, sleep briefly to let cancelled workers run their
// scoped cleanups, then close the listen socket so every strategy's
// blocked Accept call returns and its Run loop exits.
func watchSignals(ctx context.Context, cancel context.CancelFunc, log *srvlog.Logger, ln net.Listener, pack *resources.Pack) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sig:
			log.Infof("interrupt received, shutting down")
			pack.CancelAll()
			time.Sleep(2 * time.Second)
			_ = ln.Close()
			cancel()
		case <-ctx.Done():
		}
	}()
}
