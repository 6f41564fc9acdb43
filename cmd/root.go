// Package cmd implements commands for the stack-router executable.
package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yearn/stack-router/cmd/api"
	"github.com/yearn/stack-router/cmd/migrate"
	"github.com/yearn/stack-router/cmd/tx"
	"github.com/yearn/stack-router/log"
)

var rootCmd = &cobra.Command{
	Use:   "stack-router",
	Short: "Withdrawal stack router for Yearn V3 vaults",
}

// Execute spawns the main entry point after handing the config file.
func Execute() {
	// Debug hook. If we receive SIGUSR1, dump all goroutines.
	go dumpGoroutinesOnSignal(syscall.SIGUSR1)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	for _, f := range []func(*cobra.Command){
		api.Register,
		migrate.Register,
		tx.Register,
	} {
		f(rootCmd)
	}
}

// Starts listening for the specified signals, and logs a dump of all
// goroutines when the process receives one of those signals.
func dumpGoroutinesOnSignal(signals ...os.Signal) {
	logger := log.NewDefaultLogger("toplevel")
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	for range c {
		b := bytes.NewBufferString("")
		_ = pprof.Lookup("goroutine").WriteTo(b, 1)
		logger.Warn("USER-REQUESTED DUMP: all goroutines", "goroutines_all", b.String())

		b = bytes.NewBufferString("")
		_ = pprof.Lookup("mutex").WriteTo(b, 1)
		logger.Warn("USER-REQUESTED DUMP: holders of contended mutexes", "goroutines_mutex", b.String())
	}
}
