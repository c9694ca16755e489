// flashctl exercises the flash driver against a simulated STM32F4 part
// backed by an image file, so erase/program/copy sequences can be tried
// and inspected without hardware.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sigurn/crc16"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-stm32flash/devmap"
	"github.com/moffa90/go-stm32flash/flash"
	"github.com/moffa90/go-stm32flash/geometry"
	"github.com/moffa90/go-stm32flash/simflash"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// stderrLogger adapts the standard log package to the driver's logging
// interface. Debug output is gated by --verbose.
type stderrLogger struct {
	verbose bool
}

func (l *stderrLogger) Debug(msg string, kv ...interface{}) {
	if l.verbose {
		log.Println("DEBUG", msg, kv)
	}
}

func (l *stderrLogger) Info(msg string, kv ...interface{})  { log.Println("INFO ", msg, kv) }
func (l *stderrLogger) Error(msg string, kv ...interface{}) { log.Println("ERROR", msg, kv) }

// session ties a driver to the simulated device and the image file its
// flash content is loaded from and saved back to.
type session struct {
	drv   *flash.Driver
	dev   *simflash.Device
	image string
}

func openSession(layoutStr, image string, timeout time.Duration, verbose bool) (*session, error) {
	layout, err := geometry.ParseLayout(layoutStr)
	if err != nil {
		return nil, err
	}

	dev, err := simflash.New(layout)
	if err != nil {
		return nil, err
	}

	if image != "" {
		img, err := os.ReadFile(image)
		if err == nil {
			if err := dev.LoadImage(img); err != nil {
				return nil, fmt.Errorf("load image %s: %w", image, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	drv, err := flash.Open(dev, layout, devmap.AllRegions(),
		flash.WithLogger(&stderrLogger{verbose: verbose}),
		flash.WithBusyTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}

	return &session{drv: drv, dev: dev, image: image}, nil
}

// save writes the flash content back to the image file after a mutating
// command.
func (s *session) save() error {
	if s.image == "" {
		return nil
	}
	return os.WriteFile(s.image, s.dev.Image(), 0o644)
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseWidth(s string) (flash.Width, error) {
	switch strings.ToLower(s) {
	case "byte", "1":
		return flash.Byte, nil
	case "half", "halfword", "2":
		return flash.HalfWord, nil
	case "word", "4":
		return flash.Word, nil
	case "double", "doubleword", "8":
		return flash.DoubleWord, nil
	default:
		return 0, fmt.Errorf("unknown width %q (byte, half, word, double)", s)
	}
}

func hexDump(data []byte, base uint32) {
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		var hexPart, asciiPart strings.Builder
		for i := off; i < end; i++ {
			fmt.Fprintf(&hexPart, "%02x ", data[i])
			if data[i] >= 0x20 && data[i] < 0x7F {
				asciiPart.WriteByte(data[i])
			} else {
				asciiPart.WriteByte('.')
			}
		}
		fmt.Printf("%08x  %-48s %s\n", base+uint32(off), hexPart.String(), asciiPart.String())
	}
}

func main() {
	log.SetFlags(0)

	var (
		layoutStr string
		image     string
		timeout   time.Duration
		verbose   bool
	)

	root := &cobra.Command{
		Use:   "flashctl",
		Short: "STM32F4 flash driver workbench over a simulated part",
		Long: "Erase, program, read and copy flash sectors on a simulated STM32F4 part.\n" +
			"Flash content persists in the file given with --image.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&layoutStr, "layout", "1m-single", "flash layout: 1m-single, 1m-dual or 2m-dual")
	root.PersistentFlags().StringVar(&image, "image", "", "flash image file to load and save")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "busy-wait timeout per operation")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug detail to stderr")

	open := func() (*session, error) {
		return openSession(layoutStr, image, timeout, verbose)
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Print the sector table of the selected layout",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			geo := s.drv.Geometry()
			fmt.Printf("layout %s, %d sectors, %#x..%#x\n",
				geo.Layout(), len(geo.Sectors()), geo.Base(), geo.End())
			for _, sec := range geo.Sectors() {
				fmt.Printf("  sector %2d  bank %d  %#010x..%#010x  %7d bytes\n",
					sec.Index, sec.Bank, sec.Start, sec.End, sec.Size())
			}
			return nil
		},
	}

	var eraseAddr string
	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase the sector containing an address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := parseAddr(eraseAddr)
			if err != nil {
				return err
			}
			s, err := open()
			if err != nil {
				return err
			}
			index, err := s.drv.SectorErase(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Printf("%s sector %d\n", green("erased"), index)
			return s.save()
		},
	}
	eraseCmd.Flags().StringVar(&eraseAddr, "addr", "", "address inside the sector to erase")
	_ = eraseCmd.MarkFlagRequired("addr")

	massEraseCmd := &cobra.Command{
		Use:   "mass-erase",
		Short: "Erase the whole flash array",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			if err := s.drv.MassErase(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(green("mass erase complete"))
			return s.save()
		},
	}

	var bankNum int
	bankEraseCmd := &cobra.Command{
		Use:   "bank-erase",
		Short: "Erase one bank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			if err := s.drv.BankErase(cmd.Context(), geometry.Bank(bankNum)); err != nil {
				return err
			}
			fmt.Printf("%s bank %d\n", green("erased"), bankNum)
			return s.save()
		},
	}
	bankEraseCmd.Flags().IntVar(&bankNum, "bank", 1, "bank to erase (1 or 2)")

	var progAddr, progValue, progWidth string
	programCmd := &cobra.Command{
		Use:   "program",
		Short: "Program one element at an address",
		Long: "Program one element at an address.\n" +
			"Stores narrow over already-written cells (old AND new); the sector\n" +
			"is implicitly erased only when the address is exactly its start.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := parseAddr(progAddr)
			if err != nil {
				return err
			}
			value, err := strconv.ParseUint(strings.TrimSpace(progValue), 0, 64)
			if err != nil {
				return fmt.Errorf("bad value %q: %w", progValue, err)
			}
			width, err := parseWidth(progWidth)
			if err != nil {
				return err
			}
			s, err := open()
			if err != nil {
				return err
			}
			if err := s.drv.Program(cmd.Context(), addr, value, width); err != nil {
				return err
			}
			fmt.Printf("%s %s at %#x\n", green("programmed"), width, addr)
			return s.save()
		},
	}
	programCmd.Flags().StringVar(&progAddr, "addr", "", "target address")
	programCmd.Flags().StringVar(&progValue, "value", "", "value to program")
	programCmd.Flags().StringVar(&progWidth, "width", "word", "element width: byte, half, word or double")
	_ = programCmd.MarkFlagRequired("addr")
	_ = programCmd.MarkFlagRequired("value")

	var readAddr string
	var readLen uint32
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Hex dump a flash range",
		RunE: func(_ *cobra.Command, _ []string) error {
			addr, err := parseAddr(readAddr)
			if err != nil {
				return err
			}
			s, err := open()
			if err != nil {
				return err
			}
			buf := make([]byte, readLen)
			if err := s.drv.Read(buf, addr); err != nil {
				return err
			}
			hexDump(buf, addr)
			return nil
		},
	}
	readCmd.Flags().StringVar(&readAddr, "addr", "", "start address")
	readCmd.Flags().Uint32Var(&readLen, "len", 64, "number of bytes")
	_ = readCmd.MarkFlagRequired("addr")

	var copyDst, copySrc string
	copyCmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy one sector's content over another",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dst, err := parseAddr(copyDst)
			if err != nil {
				return err
			}
			src, err := parseAddr(copySrc)
			if err != nil {
				return err
			}
			s, err := open()
			if err != nil {
				return err
			}
			if err := s.drv.CopySector(cmd.Context(), dst, src); err != nil {
				return err
			}
			fmt.Println(green("copy complete"))
			return s.save()
		},
	}
	copyCmd.Flags().StringVar(&copyDst, "dst", "", "destination sector address")
	copyCmd.Flags().StringVar(&copySrc, "src", "", "source address")
	_ = copyCmd.MarkFlagRequired("dst")
	_ = copyCmd.MarkFlagRequired("src")

	bankconfCmd := &cobra.Command{
		Use:   "bankconf",
		Short: "Read or write the bank organization option",
	}
	bankconfGet := &cobra.Command{
		Use:   "get",
		Short: "Print the current bank mode",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			mode, err := s.drv.BankConfig()
			if err != nil {
				return err
			}
			fmt.Printf("bank mode: %s\n", yellow(mode.String()))
			return nil
		},
	}
	var bankMode string
	bankconfSet := &cobra.Command{
		Use:   "set",
		Short: "Set the bank mode",
		RunE: func(_ *cobra.Command, _ []string) error {
			var mode flash.BankMode
			switch strings.ToLower(bankMode) {
			case "single":
				mode = flash.SingleBank
			case "dual":
				mode = flash.DualBank
			default:
				return fmt.Errorf("unknown mode %q (single or dual)", bankMode)
			}
			s, err := open()
			if err != nil {
				return err
			}
			if err := s.drv.SetBankConfig(mode); err != nil {
				return err
			}
			fmt.Printf("bank mode set to %s\n", yellow(mode.String()))
			return nil
		},
	}
	bankconfSet.Flags().StringVar(&bankMode, "mode", "", "single or dual")
	_ = bankconfSet.MarkFlagRequired("mode")
	bankconfCmd.AddCommand(bankconfGet, bankconfSet)

	var verifyAddr string
	var verifyLen uint32
	var verifyCRC string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Checksum a flash range with CRC-16/CCITT-FALSE",
		RunE: func(_ *cobra.Command, _ []string) error {
			addr, err := parseAddr(verifyAddr)
			if err != nil {
				return err
			}
			s, err := open()
			if err != nil {
				return err
			}
			buf := make([]byte, verifyLen)
			if err := s.drv.Read(buf, addr); err != nil {
				return err
			}
			sum := crc16.Checksum(buf, crc16.MakeTable(crc16.CRC16_CCITT_FALSE))
			fmt.Printf("crc16 %#x+%#x = %#04x\n", addr, verifyLen, sum)
			if verifyCRC != "" {
				want, err := strconv.ParseUint(strings.TrimSpace(verifyCRC), 0, 16)
				if err != nil {
					return fmt.Errorf("bad crc %q: %w", verifyCRC, err)
				}
				if uint16(want) != sum {
					return fmt.Errorf("%s: want %#04x, got %#04x", red("crc mismatch"), uint16(want), sum)
				}
				fmt.Println(green("crc match"))
			}
			return nil
		},
	}
	verifyCmd.Flags().StringVar(&verifyAddr, "addr", "", "start address")
	verifyCmd.Flags().Uint32Var(&verifyLen, "len", 64, "number of bytes")
	verifyCmd.Flags().StringVar(&verifyCRC, "crc", "", "expected checksum to compare against")
	_ = verifyCmd.MarkFlagRequired("addr")

	root.AddCommand(infoCmd, eraseCmd, massEraseCmd, bankEraseCmd,
		programCmd, readCmd, copyCmd, bankconfCmd, verifyCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}
