// Command relocdump drives the analyzer and relocator against a byte
// buffer in isolation, with no real process behind it: "relocate"
// simulates a destination address and prints what would be written
// there.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/gopherhook/reloc/analyzer"
	"github.com/gopherhook/reloc/reloc"
)

func main() {
	app := cli.NewApp()
	app.Name = "relocdump"
	app.Usage = "analyze and relocate a raw x86/x64 byte buffer in isolation"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "analyze",
			Usage:     "decode a buffer and print the instruction cross-reference graph",
			ArgsUsage: "<file-or-hex>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "min-bytes", Value: 5, Usage: "minimum bytes to analyze"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return cli.NewExitError("missing input", 1)
				}
				return runAnalyze(c.Args().First(), c.Int("min-bytes"))
			},
		},
		{
			Name:      "relocate",
			Usage:     "relocate a buffer against a simulated destination address",
			ArgsUsage: "<file-or-hex> --dest-addr ADDR",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "min-bytes", Value: 5, Usage: "minimum bytes to analyze"},
				cli.StringFlag{Name: "dest-addr", Usage: "destination base address (hex)", Required: true},
				cli.StringFlag{Name: "source-addr", Value: "0", Usage: "source base address (hex)"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					return cli.NewExitError("missing input", 1)
				}
				destAddr, err := strconv.ParseUint(strings.TrimPrefix(c.String("dest-addr"), "0x"), 16, 64)
				if err != nil {
					return cli.NewExitError(fmt.Sprintf("invalid --dest-addr: %v", err), 1)
				}
				srcAddr, err := strconv.ParseUint(strings.TrimPrefix(c.String("source-addr"), "0x"), 16, 64)
				if err != nil {
					return cli.NewExitError(fmt.Sprintf("invalid --source-addr: %v", err), 1)
				}
				return runRelocate(c.Args().First(), c.Int("min-bytes"), srcAddr, destAddr)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func newLogger(run uuid.UUID) logrus.FieldLogger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log.WithField("run", run.String())
}

func readBuffer(arg string) ([]byte, error) {
	if data, err := os.ReadFile(arg); err == nil {
		return data, nil
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(arg), " ", "")
	return hex.DecodeString(cleaned)
}

func runAnalyze(arg string, minBytes int) error {
	buf, err := readBuffer(arg)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("reading input: %v", err), 1)
	}

	run := uuid.New()
	log := newLogger(run)

	instructions, bytesRead, err := analyzer.Analyze(buf, 0, minBytes, len(buf), log)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("analyze: %v", err), 1)
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Printf("analyzed %d instructions (%d bytes)\n", len(instructions), bytesRead)
	for i, inst := range instructions {
		line := fmt.Sprintf("  [%2d] +0x%02x  %-8s external=%-5v internal=%-5v outgoing=%d",
			i, inst.AddressOffset, inst.Decoded.Inst.Op.String(), inst.HasExternalTarget, inst.IsInternalTarget, inst.Outgoing)
		if inst.IsInternalTarget {
			color.New(color.FgGreen).Println(line)
		} else {
			fmt.Println(line)
		}
	}
	return nil
}

func runRelocate(arg string, minBytes int, sourceAddr, destAddr uint64) error {
	buf, err := readBuffer(arg)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("reading input: %v", err), 1)
	}

	run := uuid.New()
	log := newLogger(run)

	instructions, bytesRead, err := analyzer.Analyze(buf, sourceAddr, minBytes, len(buf), log)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("analyze: %v", err), 1)
	}

	dest := make([]byte, bytesRead*3+jumpHeadroom)
	ctx := reloc.NewContext(buf[:bytesRead], sourceAddr, dest, destAddr, instructions, log)
	if err := reloc.BuildTrampoline(ctx); err != nil {
		return cli.NewExitError(fmt.Sprintf("relocate: %v", err), 1)
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Printf("relocated %d bytes -> %d bytes\n", ctx.BytesRead, ctx.BytesWritten)
	dump := color.New(color.FgYellow)
	for i, b := range ctx.Dest[:ctx.BytesWritten] {
		dump.Printf("%02X ", b)
		if (i+1)%16 == 0 {
			fmt.Println()
		}
	}
	fmt.Println()

	fmt.Println("translation map:")
	for _, item := range ctx.TranslationMap {
		fmt.Printf("  src+0x%02x -> dst+0x%02x\n", item.SourceOffset, item.DestinationOffset)
	}
	return nil
}

// jumpHeadroom leaves room for worst-case branch enlargement (a single
// 2-byte short branch can expand to a 9-byte synthesized sequence).
const jumpHeadroom = 16
