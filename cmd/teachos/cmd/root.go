// Package cmd is the cobra command tree for teachos, the userspace-facing
// driver around the kernel package: boot a disk image, run a scripted
// workload against it, check it, and report frame, swap and process
// statistics. Grounded on
// the retrieved corpus's cobra root command layout (apex/log cli handler
// wired in init, persistent flags on rootCmd, one file per subcommand).
package cmd

import (
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

var (
	diskPath string
	nblocks  int
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "teachos",
	Short: "Boot and drive the teachos teaching kernel",
}

// Execute adds all child commands and runs the selected one. Called once
// from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihandler.Default)

	rootCmd.PersistentFlags().StringVar(&diskPath, "disk", "teachos.img", "path to the disk image")
	rootCmd.PersistentFlags().IntVar(&nblocks, "blocks", 65536, "disk image size in blocks; a shorter image is extended to this size")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cobra.OnInitialize(func() {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	})
}
