package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/azinc-flasher/internal/detect"
	"github.com/bigbag/azinc-flasher/internal/flasher"
	"github.com/bigbag/azinc-flasher/internal/image"
	"github.com/bigbag/azinc-flasher/internal/isp"
	"github.com/bigbag/azinc-flasher/internal/protocol"
	"github.com/bigbag/azinc-flasher/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	eepromFlag    string
	fusesFlag     string
	lockFlag      string
	eraseFlag     bool
	verifyFlag    bool
	signatureFlag bool

	regionFlag  string
	addressFlag uint16
	countFlag   int

	samplesFlag  int
	intervalFlag time.Duration

	probeFlag bool
)

func main() {
	defer glog.Flush()

	rootCmd := &cobra.Command{
		Use:   "azinc-flasher",
		Short: "Program and sample AzInc sensor boards",
		Long: `AzInc Flasher programs the controller of an AzInc sensor board over its
in-system programming bus and reads raw samples from the board's sensor.

The board is reached either through a USB-serial programming bridge
(--backend serial) or directly from host SPI, GPIO and I2C lines
(--backend periph).`,
		SilenceUsage: true,
	}
	addBackendFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	flag.CommandLine.Parse(nil)

	// Flash command
	flashCmd := &cobra.Command{
		Use:   "flash <flash.hex>",
		Short: "Write a flash image",
		Long: `Write an Intel HEX flash image to the target.

By default the chip is erased first, the signature is checked and every
written region is read back. An EEPROM image, fuses and lock bits can be
written in the same session.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	flashCmd.Flags().StringVar(&eepromFlag, "eeprom", "", "EEPROM image to write")
	flashCmd.Flags().StringVar(&fusesFlag, "fuses", "", "Fuses to write as low:high:ext (hex)")
	flashCmd.Flags().StringVar(&lockFlag, "lock", "", "Lock bits to write (hex)")
	flashCmd.Flags().BoolVar(&eraseFlag, "erase", true, "Erase chip before writing")
	flashCmd.Flags().BoolVar(&verifyFlag, "verify", true, "Verify after writing")
	flashCmd.Flags().BoolVar(&signatureFlag, "check-signature", true, "Refuse to write to an unexpected device")

	// Read command
	readCmd := &cobra.Command{
		Use:   "read <out.hex>",
		Short: "Dump flash or EEPROM to a hex file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}
	readCmd.Flags().StringVar(&regionFlag, "region", "flash", "Memory to read: flash or eeprom")
	readCmd.Flags().Uint16Var(&addressFlag, "address", 0, "Start address in words (flash) or bytes (eeprom)")
	readCmd.Flags().IntVar(&countFlag, "count", 0, "Units to read (0 reads to the end)")

	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase flash, EEPROM and lock bits",
		Args:  cobra.NoArgs,
		RunE:  runErase,
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show device info",
		Long:  "Read signature, fuses, lock bits and calibration of the target.",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	fusesCmd := &cobra.Command{
		Use:   "fuses [low high ext]",
		Short: "Read or write the fuses",
		Args:  cobra.RangeArgs(0, 3),
		RunE:  runFuses,
	}

	lockCmd := &cobra.Command{
		Use:   "lock [value]",
		Short: "Read or write the lock bits",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLock,
	}

	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Read raw sensor samples",
		Args:  cobra.NoArgs,
		RunE:  runSample,
	}
	sampleCmd.Flags().IntVarP(&samplesFlag, "count", "n", 1, "Number of samples (0 runs until interrupted)")
	sampleCmd.Flags().DurationVar(&intervalFlag, "interval", time.Second, "Delay between samples")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&probeFlag, "probe", false, "Only list ports with a responding bridge (only --port when set)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("azinc-flasher %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(flashCmd, readCmd, eraseCmd, infoCmd, fusesCmd, lockCmd, sampleCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		glog.Flush()
		os.Exit(1)
	}
}

func newBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func loadFile[T any](path string, load func(f *os.File) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	v, err := load(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func runFlash(cmd *cobra.Command, args []string) error {
	var img flasher.Image
	var err error

	img.Flash, err = loadFile(args[0], func(f *os.File) (*image.Flash, error) { return image.LoadFlash(f) })
	if err != nil {
		return fmt.Errorf("failed to read flash image: %w", err)
	}
	fmt.Printf("Flash:  %s (%d words at 0x%04X)\n", args[0], len(img.Flash.Words), img.Flash.Address)

	if eepromFlag != "" {
		img.EEPROM, err = loadFile(eepromFlag, func(f *os.File) (*image.EEPROM, error) { return image.LoadEEPROM(f) })
		if err != nil {
			return fmt.Errorf("failed to read EEPROM image: %w", err)
		}
		fmt.Printf("EEPROM: %s (%d bytes at 0x%04X)\n", eepromFlag, len(img.EEPROM.Data), img.EEPROM.Address)
	}

	if fusesFlag != "" {
		fuses, err := parseFuses(fusesFlag)
		if err != nil {
			return err
		}
		img.Fuses = &fuses
	}
	if lockFlag != "" {
		lock, err := parseByte(lockFlag)
		if err != nil {
			return fmt.Errorf("invalid lock bits: %w", err)
		}
		img.Lock = &lock
	}

	opts := flasher.Options{Erase: eraseFlag, Verify: verifyFlag}
	if signatureFlag {
		opts.Signature = flasher.SignatureATtiny24
	}

	conn, err := openBoard()
	if err != nil {
		return err
	}
	defer conn.Close()

	f := flasher.New(conn.Board)

	total := protocol.Flash.Pages(len(img.Flash.Words))
	if img.EEPROM != nil {
		total += protocol.EEPROM.Pages(len(img.EEPROM.Data))
	}
	bar := newBar(total, "Flashing")
	f.SetProgressCallback(func(current, total int) {
		bar.ChangeMax(total)
		bar.Set(current)
	})

	if err := f.Flash(img, opts); err != nil {
		return err
	}

	bar.Finish()
	fmt.Println("\nFlash complete!")
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	region, err := parseRegion(regionFlag)
	if err != nil {
		return err
	}
	count := countFlag
	if count == 0 {
		count = region.Units() - int(addressFlag)
	}

	conn, err := openBoard()
	if err != nil {
		return err
	}
	defer conn.Close()

	f := flasher.New(conn.Board)
	bar := newBar(region.Pages(count), "Reading")
	f.SetProgressCallback(func(current, total int) {
		bar.Set(current)
	})

	out, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer out.Close()

	var dumpErr error
	switch region.Kind {
	case protocol.KindFlash:
		fl, err := f.ReadFlash(addressFlag, count)
		if err != nil {
			return err
		}
		dumpErr = image.DumpFlash(out, fl)
	default:
		ee, err := f.ReadEEPROM(addressFlag, count)
		if err != nil {
			return err
		}
		dumpErr = image.DumpEEPROM(out, ee)
	}
	if err := dumpErr; err != nil {
		return fmt.Errorf("failed to write %s: %w", args[0], err)
	}

	bar.Finish()
	fmt.Printf("\nRead %d %s units into %s\n", count, region, args[0])
	return nil
}

func runErase(cmd *cobra.Command, args []string) error {
	conn, err := openBoard()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := flasher.New(conn.Board).Erase(); err != nil {
		return err
	}
	fmt.Println("Chip erased")
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	conn, err := openBoard()
	if err != nil {
		return err
	}
	defer conn.Close()

	info, err := flasher.New(conn.Board).Info()
	if err != nil {
		return err
	}

	if conn.Port != "" {
		fmt.Printf("  Port:        %s\n", conn.Port)
	}
	fmt.Printf("  Chip:        %s\n", flasher.ChipName(info.Signature))
	fmt.Printf("  Signature:   0x%06X\n", info.Signature)
	fmt.Printf("  Fuses:       %s\n", info.Fuses)
	fmt.Printf("  Lock:        0x%02X\n", info.Lock)
	fmt.Printf("  Calibration: 0x%04X\n", info.Calibration)
	return nil
}

func runFuses(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 3 {
		return fmt.Errorf("expected no arguments or low, high and ext fuses")
	}

	conn, err := openBoard()
	if err != nil {
		return err
	}
	defer conn.Close()

	f := flasher.New(conn.Board)
	if len(args) == 0 {
		info, err := f.Info()
		if err != nil {
			return err
		}
		fmt.Printf("Fuses: %s\n", info.Fuses)
		return nil
	}

	var bs [3]byte
	for i, a := range args {
		if bs[i], err = parseByte(a); err != nil {
			return fmt.Errorf("invalid fuse %q: %w", a, err)
		}
	}
	fuses := isp.Fuses{Low: bs[0], High: bs[1], Extended: bs[2]}
	if err := f.Flash(flasher.Image{Fuses: &fuses}, flasher.Options{Verify: true}); err != nil {
		return err
	}
	fmt.Printf("Fuses written: %s\n", fuses)
	return nil
}

func runLock(cmd *cobra.Command, args []string) error {
	conn, err := openBoard()
	if err != nil {
		return err
	}
	defer conn.Close()

	f := flasher.New(conn.Board)
	if len(args) == 0 {
		info, err := f.Info()
		if err != nil {
			return err
		}
		fmt.Printf("Lock: 0x%02X\n", info.Lock)
		return nil
	}

	lock, err := parseByte(args[0])
	if err != nil {
		return fmt.Errorf("invalid lock bits: %w", err)
	}
	if err := f.Flash(flasher.Image{Lock: &lock}, flasher.Options{}); err != nil {
		return err
	}
	fmt.Printf("Lock bits written: 0x%02X\n", lock)
	return nil
}

func runSample(cmd *cobra.Command, args []string) error {
	conn, err := openBoard()
	if err != nil {
		return err
	}
	defer conn.Close()

	b := conn.Board
	if err := b.StartSampling(); err != nil {
		return err
	}
	defer b.StopSampling()

	for i := 0; samplesFlag == 0 || i < samplesFlag; i++ {
		if i > 0 {
			time.Sleep(intervalFlag)
		}
		sample, err := b.ReadSample()
		if err != nil {
			return err
		}
		fmt.Printf("%s % X\n", time.Now().Format(time.TimeOnly), sample)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	if probeFlag && portFlag != "" {
		b, err := detect.OnPort(portFlag, baudFlag)
		if err != nil {
			return err
		}
		fmt.Printf("  %s (firmware %d)\n", b.Port, b.Version)
		return nil
	}

	if probeFlag {
		fmt.Println("Scanning for programming bridges...")
		bridges, err := detect.ListBridges(baudFlag)
		if err != nil {
			return err
		}
		if len(bridges) == 0 {
			fmt.Println("No bridges found")
			return nil
		}
		for _, b := range bridges {
			fmt.Printf("  %s (firmware %d)\n", b.Port, b.Version)
		}
		return nil
	}

	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	return nil
}
