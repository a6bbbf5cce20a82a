package proc

import (
	"testing"

	"teachos/defs"
	"teachos/mem"
	"teachos/vm"
)

func resetPtable() {
	mem.Phys = mem.NewPhys()
	Ptable = newPtable()
	initPid = 0
}

func mkRunning(t *testing.T, name string) *Proc_t {
	p, err := Allocproc(name)
	if err != 0 {
		t.Fatalf("allocproc: %d", err)
	}
	p.Vs = vm.Vspaceinit()
	vm.Register(p.Vs)
	Ptable.mu.Lock()
	p.State = RUNNING
	Ptable.mu.Unlock()
	return p
}

func TestAllocprocAssignsDistinctPids(t *testing.T) {
	resetPtable()
	a, err := Allocproc("a")
	if err != 0 {
		t.Fatal(err)
	}
	b, err := Allocproc("b")
	if err != 0 {
		t.Fatal(err)
	}
	if a.Pid == b.Pid {
		t.Fatal("expected distinct pids")
	}
	if a.State != EMBRYO || b.State != EMBRYO {
		t.Fatal("allocproc must start EMBRYO")
	}
}

func TestAllocprocFullTable(t *testing.T) {
	resetPtable()
	for i := 0; i < defs.NPROC; i++ {
		if _, err := Allocproc("p"); err != 0 {
			t.Fatalf("unexpected failure at %d: %d", i, err)
		}
	}
	if _, err := Allocproc("overflow"); err != -defs.EAGAIN {
		t.Fatalf("expected EAGAIN once full, got %d", err)
	}
}

func TestForkSharesVspaceAndZeroesChildRax(t *testing.T) {
	resetPtable()
	parent := mkRunning(t, "parent")
	parent.Tf.Rax = 99

	reg := &vm.Region_t{Kind: vm.RegionHeap, Base: 0x1000, Size: defs.PGSIZE}
	parent.Vs.Vregionaddmap(reg, reg.Base, reg.Size, true, true)

	childPid, err := Fork(parent)
	if err != 0 {
		t.Fatalf("fork: %d", err)
	}
	child := find(childPid)
	if child == nil {
		t.Fatal("child missing from table")
	}
	if child.Tf.Rax != 0 {
		t.Fatal("child's trap frame rax must be zeroed")
	}
	if child.ParentPid != parent.Pid {
		t.Fatal("child not parented")
	}
	if child.State != RUNNABLE {
		t.Fatal("fork must leave child RUNNABLE")
	}

	pvpi, _ := parent.Vs.Lookup(reg.Base)
	cvpi, ok := child.Vs.Lookup(reg.Base)
	if !ok || cvpi.Frame != pvpi.Frame {
		t.Fatal("fork must cow-share the parent's frames")
	}
}

func TestExitWakesWaitingParent(t *testing.T) {
	resetPtable()
	parent := mkRunning(t, "parent")
	child := mkRunning(t, "child")
	child.ParentPid = parent.Pid

	done := make(chan struct{})
	var gotPid, gotStatus int
	go func() {
		gotPid, gotStatus, _ = Wait(parent)
		close(done)
	}()

	Ptable.mu.Lock()
	for parent.State != SLEEPING {
		Ptable.mu.Unlock()
		Ptable.mu.Lock()
	}
	Ptable.mu.Unlock()

	Exit(nil, child, 7)

	<-done
	if gotPid != child.Pid || gotStatus != 7 {
		t.Fatalf("wait returned (%d,%d), want (%d,7)", gotPid, gotStatus, child.Pid)
	}
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	resetPtable()
	init := mkRunning(t, "init")
	initPid = init.Pid

	parent := mkRunning(t, "parent")
	grandchild := mkRunning(t, "grandchild")
	grandchild.ParentPid = parent.Pid

	Exit(nil, parent, 0)

	if grandchild.ParentPid != init.Pid {
		t.Fatalf("exit must reparent orphans to init, got parent pid %d", grandchild.ParentPid)
	}
}

func TestWaitReturnsImmediatelyOnExistingZombie(t *testing.T) {
	resetPtable()
	parent := mkRunning(t, "parent")
	child, err := Allocproc("child")
	if err != 0 {
		t.Fatal(err)
	}
	Ptable.mu.Lock()
	child.ParentPid = parent.Pid
	child.State = ZOMBIE
	child.ExitStatus = 5
	Ptable.mu.Unlock()

	pid, status, err := Wait(parent)
	if err != 0 {
		t.Fatalf("wait: %d", err)
	}
	if pid != child.Pid || status != 5 {
		t.Fatalf("wait returned (%d,%d), want (%d,5)", pid, status, child.Pid)
	}
	if find(child.Pid) != nil {
		t.Fatal("freeproc should have cleared the zombie's slot")
	}
}

func TestWaitNoChildrenReturnsECHILD(t *testing.T) {
	resetPtable()
	parent := mkRunning(t, "lonely")
	if _, _, err := Wait(parent); err != -defs.ECHILD {
		t.Fatalf("expected ECHILD, got %d", err)
	}
}

func TestKillWakesSleeper(t *testing.T) {
	resetPtable()
	p := mkRunning(t, "sleeper")
	awake := make(chan struct{})
	go func() {
		Ptable.mu.Lock()
		Sleep(p, "some-chan", &Ptable.mu)
		Ptable.mu.Unlock()
		close(awake)
	}()

	Ptable.mu.Lock()
	for p.State != SLEEPING {
		Ptable.mu.Unlock()
		Ptable.mu.Lock()
	}
	Ptable.mu.Unlock()

	if err := Kill(p.Pid); err != 0 {
		t.Fatalf("kill: %d", err)
	}
	<-awake
	if !p.Killed {
		t.Fatal("kill must set the killed flag")
	}
}

func TestFindAndSnapshotSeeLiveProcesses(t *testing.T) {
	resetPtable()
	a := mkRunning(t, "alpha")
	b := mkRunning(t, "beta")

	if got := Find(a.Pid); got != a {
		t.Fatalf("Find(%d) = %v, want %v", a.Pid, got, a)
	}
	if got := Find(999999); got != nil {
		t.Fatalf("Find of unknown pid should be nil, got %v", got)
	}

	snap := Snapshot()
	seen := map[int]string{}
	for _, pi := range snap {
		seen[pi.Pid] = pi.Name
	}
	if seen[a.Pid] != "alpha" || seen[b.Pid] != "beta" {
		t.Fatalf("snapshot missing expected processes: %v", seen)
	}
}

func TestResetDiscardsPriorProcesses(t *testing.T) {
	resetPtable()
	a := mkRunning(t, "doomed")

	Reset()

	if Find(a.Pid) != nil {
		t.Fatal("Reset should discard all prior process table entries")
	}
	if len(Snapshot()) != 0 {
		t.Fatal("Reset should leave an empty table")
	}
}
