package host

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lv2jack/host/internal/plugindb"
)

// runConsole is the generic console control surface: an interactive prompt
// on stdin standing in for a plugin-provided UI. Each command that changes
// a control goes through the UI->plugin ring like any widget callback
// would; the prompt never touches realtime state directly. EOF on stdin
// ends the prompt without shutting the host down (the host may be running
// non-interactively under a pipe).
func (c *Controller) runConsole(done <-chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("> type 'help' for commands")

	for scanner.Scan() {
		select {
		case <-done:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "help":
			fmt.Print(consoleHelp)

		case "controls":
			c.printControls()

		case "presets":
			for _, p := range c.descr.Presets {
				fmt.Printf("<%s> %s\n", p.URI, p.Name)
			}

		case "preset":
			if len(fields) != 2 {
				fmt.Println("usage: preset <uri>")
				continue
			}
			if err := c.ApplyPreset(fields[1]); err != nil {
				fmt.Fprintf(os.Stderr, "preset failed: %v\n", err)
			}

		case "set":
			if len(fields) != 3 {
				fmt.Println("usage: set <symbol> <value>")
				continue
			}
			value, err := strconv.ParseFloat(fields[2], 32)
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad value %q: %v\n", fields[2], err)
				continue
			}
			if err := c.SetControl(fields[1], float32(value)); err != nil {
				fmt.Fprintf(os.Stderr, "set failed: %v\n", err)
			}

		case "exit", "quit":
			c.postExit()
			return

		default:
			fmt.Printf("unknown command %q, type 'help'\n", fields[0])
		}
	}
}

const consoleHelp = `commands:
  controls            print current control values
  set <symbol> <val>  change a control input
  presets             list the plugin's presets
  preset <uri>        apply a preset
  exit                shut down
`

func (c *Controller) printControls() {
	for _, p := range c.portTbl.All() {
		if p.Kind != plugindb.KindControlScalar {
			continue
		}
		fmt.Printf("%s = %f\n", p.Symbol, p.ScalarValue)
	}
}
