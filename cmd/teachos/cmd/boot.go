package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"teachos/kernel"
)

// initcode is the tiny inline bootstrap program the first process starts
// running, standing in for the assembly-generated initcode the teacher's
// kernel maps at the fixed bootstrap address. It has no instruction stream
// evaluator behind it in this kernel (spec.md §1), so its bytes are never
// actually executed — only its presence as mapped, non-empty code matters.
var initcode = []byte{0x90, 0x90, 0x90, 0x90}

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot the kernel against a disk image, formatting it if new",
	RunE: func(c *cobra.Command, args []string) error {
		disk, fresh, err := kernel.OpenDisk(diskPath, nblocks)
		if err != nil {
			return err
		}
		k, kerr := kernel.Boot(disk, fresh, initcode)
		if kerr != 0 {
			return fmt.Errorf("boot failed: errno %d", kerr)
		}
		fmt.Printf("booted %s (fresh=%v), init pid=%d\n", diskPath, fresh, k.Init.Pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootCmd)
}
