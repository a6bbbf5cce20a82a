package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"teachos/kernel"
	"teachos/mem"
	"teachos/proc"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Boot a disk image and report core map, swap, and process table occupancy",
	RunE: func(c *cobra.Command, args []string) error {
		disk, fresh, err := kernel.OpenDisk(diskPath, nblocks)
		if err != nil {
			return err
		}
		if _, kerr := kernel.Boot(disk, fresh, initcode); kerr != 0 {
			return fmt.Errorf("boot failed: errno %d", kerr)
		}

		st := mem.Phys.Stats()
		fmt.Printf("frames: %d/%d used (%d free)\n", st.FramesUsed, st.FramesTotal, st.FramesFree)
		fmt.Printf("swap:   %d/%d used\n", st.SwapUsed, st.SwapTotal)

		fmt.Printf("procs:\n")
		for _, p := range proc.Snapshot() {
			fmt.Printf("  pid=%-4d %-9s %s\n", p.Pid, p.State, p.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
