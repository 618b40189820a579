package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/models"
	memModels "github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

func TestUserInit(t *testing.T) {
	table := newTestTable(t, 16, 8)
	p, err := table.UserInit(initCode)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if p.PID != 1 || p.State != models.StateRunnable {
		t.Errorf("Expected PID 1 RUNNABLE, got %d %s", p.PID, p.State)
	}
	if p.Priority != models.DefaultPriority || p.VRuntime != 0 {
		t.Errorf("Expected default priority and zero vruntime, got %d and %d", p.Priority, p.VRuntime)
	}

	code := make([]byte, len(initCode))
	if err := table.mem.CopyIn(p.PageTable, 0, code); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !bytes.Equal(code, initCode) {
		t.Errorf("Expected init code at address 0, got %v", code)
	}
}

func TestFork_InheritsSchedulingState(t *testing.T) {
	table := newTestTable(t, 32, 16)
	parent := spawn(t, table, 1)[0]

	if err := table.Grow(parent, 2*memModels.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_ = table.SetPriority(parent.PID, 5)
	parent.VRuntime = 4242
	parent.Runtime = 3000

	child, err := table.Fork(parent)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if child.Priority != 5 || child.Weight != models.Weights[5] {
		t.Errorf("Expected priority 5 and weight %d, got %d and %d", models.Weights[5], child.Priority, child.Weight)
	}
	if child.VRuntime != 4242 || child.Runtime != 0 {
		t.Errorf("Expected vruntime 4242 and runtime 0, got %d and %d", child.VRuntime, child.Runtime)
	}
	if child.Size != parent.Size || child.Parent != parent {
		t.Errorf("Expected size %d with parent %d, got %d", parent.Size, parent.PID, child.Size)
	}

	code := make([]byte, len(initCode))
	if err := table.mem.CopyIn(child.PageTable, 0, code); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !bytes.Equal(code, initCode) {
		t.Errorf("Expected duplicated code, got %v", code)
	}
}

func TestFork_FailureReleasesSlot(t *testing.T) {
	table := newTestTable(t, 4, 2)
	parent := spawn(t, table, 1)[0]
	if err := table.Grow(parent, 2*memModels.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	child, err := table.Fork(parent)
	if !errors.Is(err, memModels.ErrOutOfMemory) {
		t.Fatalf("Expected ErrOutOfMemory, got: %v", err)
	}
	if child != nil || len(table.Procs()) != 1 {
		t.Errorf("Expected only the parent in the table, got %+v", table.Procs())
	}
	if parent.Size != 3*memModels.PageSize {
		t.Errorf("Expected parent size %d, got %d", 3*memModels.PageSize, parent.Size)
	}
}

func TestGrow_OutOfMemoryKeepsSize(t *testing.T) {
	table := newTestTable(t, 8, 3)
	p := spawn(t, table, 1)[0]

	err := table.Grow(p, 20*memModels.PageSize)
	if !errors.Is(err, memModels.ErrOutOfMemory) {
		t.Fatalf("Expected ErrOutOfMemory, got: %v", err)
	}
	if p.Size != memModels.PageSize {
		t.Errorf("Expected size %d, got %d", memModels.PageSize, p.Size)
	}

	if err := table.Grow(p, memModels.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := table.Grow(p, -memModels.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p.Size != memModels.PageSize {
		t.Errorf("Expected size %d, got %d", memModels.PageSize, p.Size)
	}
	if err := table.Grow(p, -2*memModels.PageSize); err == nil {
		t.Error("Expected error shrinking below zero, got nil")
	}
}

func TestExitAndWait(t *testing.T) {
	table := newTestTable(t, 32, 16)
	init := spawn(t, table, 1)[0]
	freeBefore := table.mem.Stats().FreePages

	child, err := table.Fork(init)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	grandchild, err := table.Fork(child)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := table.Wait(init); !errors.Is(err, models.ErrWouldBlock) {
		t.Fatalf("Expected ErrWouldBlock, got: %v", err)
	}
	if init.State != models.StateSleeping {
		t.Errorf("Expected init SLEEPING, got %s", init.State)
	}

	if err := table.Exit(child); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if child.State != models.StateZombie {
		t.Errorf("Expected ZOMBIE, got %s", child.State)
	}
	if init.State != models.StateRunnable {
		t.Errorf("Expected init woken up, got %s", init.State)
	}
	if grandchild.Parent != init {
		t.Errorf("Expected grandchild reparented to init")
	}

	childPID := child.PID
	pid, err := table.Wait(init)
	if err != nil || pid != childPID {
		t.Fatalf("Expected to reap %d, got %d (%v)", childPID, pid, err)
	}
	if table.Lookup(childPID) != nil {
		t.Errorf("Expected process %d to be released", childPID)
	}

	_ = table.Exit(grandchild)
	if _, err := table.Wait(init); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := table.Wait(init); !errors.Is(err, models.ErrNoChildren) {
		t.Errorf("Expected ErrNoChildren, got: %v", err)
	}

	if got := table.mem.Stats().FreePages; got != freeBefore {
		t.Errorf("Expected %d free pages after reaping, got %d", freeBefore, got)
	}
	if err := table.Exit(init); !errors.Is(err, models.ErrInitExiting) {
		t.Errorf("Expected ErrInitExiting, got: %v", err)
	}
}

func TestProcTable_Full(t *testing.T) {
	table := newTestTable(t, 256, 64)
	init := spawn(t, table, 1)[0]

	for i := 1; i < models.NProc; i++ {
		if _, err := table.Fork(init); err != nil {
			t.Fatalf("Expected no error on fork %d, got: %v", i, err)
		}
	}
	if _, err := table.Fork(init); !errors.Is(err, models.ErrProcTableFull) {
		t.Errorf("Expected ErrProcTableFull, got: %v", err)
	}
}

func TestSimSwitcher_KilledProcessExits(t *testing.T) {
	table := newTestTable(t, 16, 8)
	procs := spawn(t, table, 2)
	victim := procs[1]
	procs[0].VRuntime = 1 << 20

	if err := table.Kill(victim.PID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sw := &SimSwitcher{Table: table, TickInterval: time.Millisecond}
	table.DispatchOnce(context.Background(), 0, sw)

	if victim.State != models.StateZombie {
		t.Errorf("Expected ZOMBIE, got %s", victim.State)
	}
}

func TestRun_WorkloadIsReaped(t *testing.T) {
	table := newTestTable(t, 16, 64)
	spawn(t, table, 4)

	sw := &SimSwitcher{
		Table:        table,
		TickInterval: time.Millisecond,
		Program:      WorkloadProgram(1000, 2, 6),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for cpu := 0; cpu < 2; cpu++ {
		go table.Run(ctx, cpu, sw)
	}

	deadline := time.After(10 * time.Second)
	for len(table.Procs()) > 1 {
		select {
		case <-deadline:
			t.Fatalf("Expected every child to be reaped, got %+v", table.Procs())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if table.Procs()[0].PID != 1 {
		t.Errorf("Expected only init to remain, got %+v", table.Procs())
	}
}

func TestGrow_BeyondKernBaseKeepsSize(t *testing.T) {
	table := newTestTable(t, 16, 8)
	p := spawn(t, table, 1)[0]
	freeBefore := table.mem.Stats().FreePages

	kernBase := uint64(memModels.KernBase)
	for _, n := range []uint64{kernBase, kernBase - memModels.PageSize, 1<<32 - memModels.PageSize, 1<<32 + memModels.PageSize} {
		err := table.Grow(p, int(n))
		if !errors.Is(err, memModels.ErrOutOfMemory) {
			t.Errorf("Expected ErrOutOfMemory growing 0x%x bytes, got: %v", n, err)
		}
		if p.Size != memModels.PageSize {
			t.Errorf("Expected size %d, got %d", memModels.PageSize, p.Size)
		}
	}
	if got := table.mem.Stats().FreePages; got != freeBefore {
		t.Errorf("Expected %d free pages, got %d", freeBefore, got)
	}
}

func TestKill_InitIsRejected(t *testing.T) {
	table := newTestTable(t, 16, 8)
	procs := spawn(t, table, 2)
	init, child := procs[0], procs[1]

	if err := table.Kill(init.PID); !errors.Is(err, models.ErrKillInit) {
		t.Fatalf("Expected ErrKillInit, got: %v", err)
	}
	if table.IsKilled(init) {
		t.Error("Expected init to stay unmarked")
	}

	// Init sigue recogiendo hijos después del intento.
	if err := table.Exit(child); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	sw := &SimSwitcher{Table: table, TickInterval: time.Millisecond, Program: WorkloadProgram(1000, 0, 1000)}
	for round := 0; round < 5 && len(table.Procs()) > 1; round++ {
		table.DispatchOnce(context.Background(), 0, sw)
	}
	if len(table.Procs()) != 1 {
		t.Errorf("Expected the zombie child to be reaped, got %+v", table.Procs())
	}
}
