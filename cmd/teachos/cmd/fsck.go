package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"teachos/block"
	"teachos/fs"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Open a disk image, replaying any committed-but-uninstalled journal entries",
	RunE: func(c *cobra.Command, args []string) error {
		disk, err := block.OpenFileDisk(diskPath, nblocks)
		if err != nil {
			return err
		}
		fsys, ferr := fs.Boot(disk)
		if ferr != 0 {
			return fmt.Errorf("fsck failed: errno %d", ferr)
		}
		sb := fsys.Superblock()
		fmt.Printf("%s: %d blocks, bmap@%d inodes@%d swap@%d log@%d\n",
			diskPath, sb.Nblocks, sb.Bmapstart, sb.Inodestart, sb.Swapstart, sb.Logstart)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}
