package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"l3engine/pkg/engine"
	"l3engine/pkg/util"
)

const (
	PROMPT = "> "
)

type ReplHandler = func(args []string) string

type Repl struct {
	// Map from Command to Command Handler
	CommandHandlerMap map[string]ReplHandler
	// Engine being inspected
	Engine *engine.Engine
	// Writer
	Writer *bufio.Writer
	// Scanner
	Scanner *bufio.Scanner
}

// Initialize our REPL
func CreateREPL(e *engine.Engine, in io.Reader, out io.Writer) *Repl {
	r := &Repl{
		CommandHandlerMap: make(map[string]ReplHandler),
		Engine:            e,
		Writer:            bufio.NewWriter(out),
		Scanner:           bufio.NewScanner(in),
	}
	r.RegisterCommandHandler("info", r.handleInfo)
	r.RegisterCommandHandler("stats", r.handleStats)
	r.RegisterCommandHandler("pool", r.handlePool)
	r.RegisterCommandHandler("echo", r.handleEcho)
	r.RegisterCommandHandler("help", r.handleHelp)
	return r
}

// Register a single command to the map
func (r *Repl) RegisterCommandHandler(command string, handler ReplHandler) {
	r.CommandHandlerMap[command] = handler
}

// Helper function to write a result
func (r *Repl) WriteOutput(output string, prompt bool) {
	r.Writer.WriteString(output)
	if prompt {
		r.Writer.WriteString(PROMPT)
	}
	r.Writer.Flush()
}

// Read commands until "exit" or end of input
func (r *Repl) StartREPL() {
	r.WriteOutput("", true)
	for r.Scanner.Scan() {
		// Split
		tokens := strings.Fields(r.Scanner.Text())
		if len(tokens) == 0 {
			r.WriteOutput("", true)
			continue
		}
		if tokens[0] == "exit" {
			break
		}
		// Get handler
		handler, ok := r.CommandHandlerMap[tokens[0]]
		if !ok {
			// No handler
			r.WriteOutput("Command not supported. Type help to see the supported commands\n", true)
			continue
		}
		// Handle
		r.WriteOutput(handler(tokens), true)
	}
	if e := r.Scanner.Err(); e != nil {
		r.WriteOutput("REPL terminating: "+e.Error()+"\n", false)
	}
}

// ---------- Handler Functions ----------

// Handle "info" command
func (r *Repl) handleInfo(args []string) string {
	cfg := r.Engine.Config()
	mac := "-"
	if cfg.LocalMAC != "" {
		mac = cfg.LocalMAC.String()
	}
	echo := "off"
	if cfg.EchoReply {
		echo = "on"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-6s %-15s %-17s %s\n", "----", "--", "---", "----"))
	b.WriteString(fmt.Sprintf("%-6s %-15s %-17s %s\n", "PORT", "IP", "MAC", "ECHO"))
	b.WriteString(fmt.Sprintf("%-6s %-15s %-17s %s\n", "----", "--", "---", "----"))
	b.WriteString(fmt.Sprintf("%-6s %-15s %-17s %s\n", r.Engine.Port().Name(), util.FormatIPv4(cfg.LocalIP), mac, echo))
	b.WriteString(fmt.Sprintf("workers %d, burst %d, rings %d\n", cfg.Workers, cfg.BurstSize, cfg.RingSize))
	return b.String()
}

// Handle "stats" command
func (r *Repl) handleStats(args []string) string {
	return r.Engine.Stats().String()
}

// Handle "pool" command
func (r *Repl) handlePool(args []string) string {
	p := r.Engine.Pool()
	rx, tx := r.Engine.Queued()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-10s %-6s %-6s %-6s %s\n", "POOL", "SIZE", "FREE", "USED", "ROOM"))
	b.WriteString(fmt.Sprintf("%-10s %-6d %-6d %-6d %d\n", p.Name(), p.Size(), p.Available(), p.InUse(), p.DataRoom()))
	b.WriteString(fmt.Sprintf("rx ring %d, tx ring %d queued\n", rx, tx))
	return b.String()
}

// Handle "echo" command
func (r *Repl) handleEcho(args []string) string {
	return strings.Join(args[1:], " ") + "\n"
}

// Handle "help" command
func (r *Repl) handleHelp(args []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "-------", "-----------"))
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "Command", "Description"))
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "-------", "-----------"))
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "echo", "Command Test"))
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "info", "About me"))
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "stats", "Packet counters"))
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "pool", "Buffer pool and ring usage"))
	b.WriteString(fmt.Sprintf("%-7s %-15s\n", "exit", "Leave the console"))
	return b.String()
}
