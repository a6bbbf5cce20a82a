package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"teachos/defs"
	"teachos/kernel"
	"teachos/proc"
	"teachos/trap"
)

// step is one line of a scripted workload, the JSON-driven stand-in for the
// end-to-end scenarios spec.md §8 describes in prose (S1-S6): a sequence of
// syscalls issued against a chosen process, run straight through
// trap.HandleSyscall the same way kernel_test.go drives it.
type step struct {
	Op   string `json:"op"`
	Pid  int    `json:"pid"`            // process issuing this step; 0 means init
	Path string `json:"path,omitempty"`
	Mode string `json:"mode,omitempty"` // "r", "w", "rw", "rwc"
	Fd   int    `json:"fd,omitempty"`
	Data string `json:"data,omitempty"`
	N    int    `json:"n,omitempty"`
	Want *int   `json:"want,omitempty"` // if set, the step fails the run on mismatch
}

var scriptPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot a disk image and replay a JSON-scripted syscall workload against it",
	RunE: func(c *cobra.Command, args []string) error {
		raw, err := os.ReadFile(scriptPath)
		if err != nil {
			return err
		}
		var steps []step
		if err := json.Unmarshal(raw, &steps); err != nil {
			return fmt.Errorf("parsing %s: %w", scriptPath, err)
		}

		disk, fresh, err := kernel.OpenDisk(diskPath, nblocks)
		if err != nil {
			return err
		}
		k, kerr := kernel.Boot(disk, fresh, initcode)
		if kerr != 0 {
			return fmt.Errorf("boot failed: errno %d", kerr)
		}

		for i, s := range steps {
			pid := s.Pid
			if pid == 0 {
				pid = k.Init.Pid
			}
			p := proc.Find(pid)
			if p == nil {
				return fmt.Errorf("step %d: no such process pid=%d", i, pid)
			}

			sc, err := decodeStep(s)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			ret := trap.HandleSyscall(k.Fs, p, sc)
			fmt.Printf("step %d: %s -> %d\n", i, s.Op, ret)
			if s.Want != nil && ret != *s.Want {
				return fmt.Errorf("step %d: %s returned %d, want %d", i, s.Op, ret, *s.Want)
			}
		}
		return nil
	},
}

func decodeStep(s step) (trap.Syscall_t, error) {
	sc := trap.Syscall_t{Fd: s.Fd, N: s.N, Status: s.N, Buf: []byte(s.Data)}
	switch s.Op {
	case "fork":
		sc.No = defs.SYS_FORK
	case "exit":
		sc.No = defs.SYS_EXIT
	case "wait":
		sc.No = defs.SYS_WAIT
	case "kill":
		sc.No = defs.SYS_KILL
		sc.Pid = s.N
	case "getpid":
		sc.No = defs.SYS_GETPID
	case "open":
		sc.No = defs.SYS_OPEN
		sc.Path = s.Path
		sc.Mode = parseMode(s.Mode)
	case "close":
		sc.No = defs.SYS_CLOSE
	case "read":
		sc.No = defs.SYS_READ
		sc.Buf = make([]byte, s.N)
	case "write":
		sc.No = defs.SYS_WRITE
	case "pipe":
		sc.No = defs.SYS_PIPE
		sc.Buf = make([]byte, 8)
	case "dup":
		sc.No = defs.SYS_DUP
	case "fstat":
		sc.No = defs.SYS_FSTAT
	case "sbrk":
		sc.No = defs.SYS_SBRK
	case "sleep":
		sc.No = defs.SYS_SLEEP
	case "uptime":
		sc.No = defs.SYS_UPTIME
	case "crashn":
		sc.No = defs.SYS_CRASHN
	case "exec":
		sc.No = defs.SYS_EXEC
		sc.Path = s.Path
	default:
		return sc, fmt.Errorf("unknown op %q", s.Op)
	}
	return sc, nil
}

func parseMode(m string) defs.Omode_t {
	switch m {
	case "w":
		return defs.O_WRONLY
	case "rw":
		return defs.O_RDWR
	case "rwc":
		return defs.O_RDWR | defs.O_CREATE
	default:
		return defs.O_RDONLY
	}
}

func init() {
	runCmd.Flags().StringVar(&scriptPath, "script", "", "path to a JSON array of syscall steps")
	runCmd.MarkFlagRequired("script")
	rootCmd.AddCommand(runCmd)
}
