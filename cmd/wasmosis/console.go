package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/wippyai/wasmosis/kernel"
	"github.com/wippyai/wasmosis/runtime"
)

// Console function table entries.
const (
	consoleWrite = iota // write(sendbuf) -> box u32 bytes written
	consolePrint        // print(box) -> null
)

const consoleArena = 4096

var consoleClass = kernel.NewClass("console")

// console is a native module that lets guests write to the host's stdout.
// Each guest gets its own console handle so output can be attributed.
type console struct {
	module *kernel.Module
	out    io.Writer
	mu     sync.Mutex
}

func newConsole(rt *runtime.Runtime, out io.Writer) (*console, error) {
	m, err := rt.NewNative("console", consoleArena)
	if err != nil {
		return nil, err
	}
	return &console{module: m, out: out}, nil
}

// grant creates a console handle bound to guest and places it in the
// guest's table. The console keeps its own slot.
func (c *console) grant(guest *kernel.Module) (kernel.Cap, error) {
	h, err := c.module.HandleCreate(consoleClass, guest.Name(), []kernel.Func{
		consoleWrite: kernel.NewFunc(1, c.write),
		consolePrint: kernel.NewFunc(1, c.print),
	})
	if err != nil {
		return kernel.Null, err
	}
	return c.module.Kernel().Grant(c.module, h, guest)
}

func (c *console) name(inv *kernel.Invocation) string {
	v, err := c.module.HandleUserData(inv.Handle, consoleClass)
	if err != nil {
		return "?"
	}
	return v.(string)
}

// write drains the sendbuf argument through the console arena.
func (c *console) write(_ context.Context, inv *kernel.Invocation) (kernel.Cap, error) {
	name := c.name(inv)

	c.mu.Lock()
	defer c.mu.Unlock()

	var buf []byte
	for {
		n, err := c.module.SendBufRead(inv.Arg(0), 0, consoleArena)
		if err != nil {
			return kernel.Null, err
		}
		if n == 0 {
			break
		}
		chunk, err := c.module.Memory().Read(0, n)
		if err != nil {
			return kernel.Null, err
		}
		buf = append(buf, chunk...)
	}

	if _, err := fmt.Fprintf(c.out, "[%s] %s\n", name, buf); err != nil {
		return kernel.Null, err
	}
	return c.module.BoxU32(uint32(len(buf)))
}

func (c *console) print(_ context.Context, inv *kernel.Invocation) (kernel.Cap, error) {
	v, err := c.module.Unbox(inv.Arg(0))
	if err != nil {
		return kernel.Null, err
	}
	name := c.name(inv)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = fmt.Fprintf(c.out, "[%s] %s\n", name, v)
	return kernel.Null, err
}
