// blackbox-parser decodes Betaflight/Cleanflight blackbox flight-data-recorder
// logs into CSV, GPX and event/statistics output.
//
// License: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/betaflight/blackbox-go/blackbox"
	"github.com/betaflight/blackbox-go/config"
	"github.com/betaflight/blackbox-go/export"
	"github.com/betaflight/blackbox-go/serialsource"
)

func findLogFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".bbl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func processFile(logger *charmlog.Logger, cfg config.Config, logPath, outputDir string, infoOnly bool) error {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return err
	}
	if outputDir == "" {
		outputDir = filepath.Dir(logPath)
	}
	stem := strings.TrimSuffix(filepath.Base(logPath), filepath.Ext(logPath))

	l, err := blackbox.Open(data)
	if err != nil {
		return err
	}
	defer l.Close()
	return decodeAndExport(logger, cfg, l, stem, outputDir, infoOnly)
}

// processSerial captures a full session from a live serial connection before
// decoding it, since Parse needs the session's complete byte range up front
// rather than a live, growing stream.
func processSerial(logger *charmlog.Logger, cfg config.Config, devicePath string, baud int, outputDir string, infoOnly bool) error {
	src, err := serialsource.Open(devicePath, baud)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	defer src.Close()

	logger.Info("capturing from serial port", "device", devicePath, "baud", baud)
	data, err := serialsource.ReadAll(context.Background(), src)
	if err != nil {
		return fmt.Errorf("reading serial port: %w", err)
	}
	logger.Info("serial capture complete", "bytes", len(data))

	if outputDir == "" {
		return fmt.Errorf("--output-dir is required when decoding from a serial port")
	}
	stem := strings.TrimSuffix(filepath.Base(devicePath), filepath.Ext(devicePath))

	// A serial capture is one session spanning the whole buffer; it may not
	// begin on the arming marker, so it must not go through the file path's
	// marker scan.
	l, err := blackbox.OpenStream(data)
	if err != nil {
		return err
	}
	defer l.Close()
	return decodeAndExport(logger, cfg, l, stem, outputDir, infoOnly)
}

func decodeAndExport(logger *charmlog.Logger, cfg config.Config, l *blackbox.Log, stem, outputDir string, infoOnly bool) error {
	l.Logger = logger

	if !infoOnly {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return err
		}
	}

	for session := 0; session < l.Count(); session++ {
		suffix := ""
		if l.Count() > 1 {
			suffix = fmt.Sprintf(".%02d", session+1)
		}

		var csvMain, csvGPS, csvSlow *export.FrameCSVWriter
		var gpx *export.GPXWriter
		var maxSpeed int64 // GPS_speed wire value, cm/s
		journal := export.NewEventJournal(logger)

		onMetadata := func(log *blackbox.Log) {
			if infoOnly {
				return
			}
			if cfg.WriteCSV {
				if fd, ok := log.FrameDefs['I']; ok {
					p := filepath.Join(outputDir, stem+suffix+".main.csv")
					if w, err := export.NewFrameCSVWriter(p, fd.FieldName); err == nil {
						csvMain = w
					} else {
						logger.Error("opening main csv", "err", err)
					}
				}
				if fd, ok := log.FrameDefs['G']; ok {
					p := filepath.Join(outputDir, stem+suffix+".gps.csv")
					if w, err := export.NewFrameCSVWriter(p, fd.FieldName); err == nil {
						csvGPS = w
					} else {
						logger.Error("opening gps csv", "err", err)
					}
				}
				if fd, ok := log.FrameDefs['S']; ok {
					p := filepath.Join(outputDir, stem+suffix+".slow.csv")
					if w, err := export.NewFrameCSVWriter(p, fd.FieldName); err == nil {
						csvSlow = w
					} else {
						logger.Error("opening slow csv", "err", err)
					}
				}
			}
			if cfg.WriteGPX {
				var start time.Time
				if log.Config.LogStartDateTime != 0 {
					start = time.Unix(log.Config.LogStartDateTime, 0).UTC()
				}
				gpx = export.NewGPXWriter(filepath.Join(outputDir, stem+suffix+".gpx"), start)
			}
		}

		onFrame := func(valid bool, fields []int64, frameType byte, fieldCount int, frameOffset, frameSize int) {
			switch frameType {
			case 'I', 'P':
				if csvMain != nil {
					if err := csvMain.WriteFrame(valid, fields[:fieldCount]); err != nil {
						logger.Error("writing main csv row", "err", err)
					}
				}
			case 'G':
				if csvGPS != nil {
					if err := csvGPS.WriteFrame(valid, fields[:fieldCount]); err != nil {
						logger.Error("writing gps csv row", "err", err)
					}
				}
				if valid && gpx != nil {
					writeGPXPoint(gpx, l, fields)
				}
				if valid && l.Fields.GPSSpeed >= 0 && fields[l.Fields.GPSSpeed] > maxSpeed {
					maxSpeed = fields[l.Fields.GPSSpeed]
				}
			case 'S':
				if csvSlow != nil {
					if err := csvSlow.WriteFrame(valid, fields[:fieldCount]); err != nil {
						logger.Error("writing slow csv row", "err", err)
					}
				}
			}
		}

		var onEvent blackbox.EventReadyFunc
		if cfg.WriteEvents {
			onEvent = journal.Record
		}

		ok, err := l.Parse(session, false, onMetadata, onFrame, onEvent)
		if err != nil {
			return fmt.Errorf("session %d: %w", session, err)
		}
		if !ok {
			logger.Warn("session failed to parse", "source", stem, "session", session)
		}

		if csvMain != nil {
			csvMain.Close()
		}
		if csvGPS != nil {
			csvGPS.Close()
		}
		if csvSlow != nil {
			csvSlow.Close()
		}
		if gpx != nil {
			gpx.Close()
		}

		if maxSpeed > 0 {
			unit := "km/h"
			if cfg.Units == config.UnitsImperial {
				unit = "mph"
			}
			logger.Info("peak GPS speed", "session", session+1,
				"speed", fmt.Sprintf("%.1f %s", cfg.MetersPerSecondToDisplay(float64(maxSpeed)/100), unit))
		}

		if cfg.WriteStats {
			export.PrintStats(os.Stdout, l)
		}
	}

	return nil
}

// altitudeUnitFactor converts the logged GPS altitude to meters. Betaflight
// changed the logged unit from centimeters to decimeters in 4.0.0.RC1.
func altitudeUnitFactor(firmwareVersion string) float32 {
	major, _, _ := strings.Cut(firmwareVersion, ".")
	if n, err := strconv.Atoi(major); err == nil && n >= 4 {
		return 0.1
	}
	return 0.01
}

// writeGPXPoint feeds one decoded GPS frame to the track writer, converting
// the wire-scaled lat/lon/altitude fields the header's semantic indexes
// identify.
func writeGPXPoint(gpx *export.GPXWriter, l *blackbox.Log, fields []int64) {
	fi := l.Fields
	if fi.GPSCoord[0] < 0 || fi.GPSCoord[1] < 0 {
		return
	}
	lat := int32(fields[fi.GPSCoord[0]])
	lon := int32(fields[fi.GPSCoord[1]])
	var alt float32
	if fi.GPSAltitude >= 0 {
		alt = float32(fields[fi.GPSAltitude]) * altitudeUnitFactor(l.Config.FirmwareVersion)
	}
	microseconds := int64(-1)
	if fi.GPSTime >= 0 {
		microseconds = fields[fi.GPSTime]
	}
	if err := gpx.AddPoint(microseconds, lat, lon, alt); err != nil {
		return
	}
}

func run() int {
	fs := pflag.NewFlagSet("blackbox-parser", pflag.ContinueOnError)
	configFile := fs.StringP("config-file", "c", "", "YAML configuration file with CLI defaults")
	outputDir := fs.StringP("output-dir", "o", "", "Directory for output files (default: same as input)")
	allIn := fs.StringP("all-in", "a", "", "Recursively process all .bbl files in DIR")
	info := fs.BoolP("info", "i", false, "Print session statistics only, skip writing output files")
	noCSV := fs.Bool("no-csv", false, "Skip CSV export")
	noGPX := fs.Bool("no-gpx", false, "Skip GPX export")
	noEvents := fs.Bool("no-events", false, "Skip event journal output")
	debug := fs.BoolP("debug", "d", false, "Enable debug-level logging")
	serialDevice := fs.String("serial", "", "Capture a session from this serial device path instead of a file")
	baudRate := fs.Int("baud", 115200, "Baud rate for --serial")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: blackbox-parser [options] <file.bbl>\n\n")
		fmt.Fprintf(os.Stderr, "Decode Betaflight/Cleanflight blackbox logs into CSV, GPX,\n")
		fmt.Fprintf(os.Stderr, "event journal and statistics output.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return 1
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{ReportTimestamp: false})
	if *debug {
		logger.SetLevel(charmlog.DebugLevel)
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			logger.Error("loading config file", "err", err)
			return 1
		}
		cfg = loaded
	}
	if *outputDir == "" {
		*outputDir = cfg.OutputDir
	}
	if *noCSV {
		cfg.WriteCSV = false
	}
	if *noGPX {
		cfg.WriteGPX = false
	}
	if *noEvents {
		cfg.WriteEvents = false
	}

	if *serialDevice != "" {
		if err := processSerial(logger, cfg, *serialDevice, *baudRate, *outputDir, *info); err != nil {
			logger.Error("processing serial capture", "device", *serialDevice, "err", err)
			return 1
		}
		return 0
	}

	if *allIn != "" {
		files, err := findLogFiles(*allIn)
		if err != nil {
			logger.Error("scanning directory", "err", err)
			return 1
		}
		if len(files) == 0 {
			logger.Warn("no .bbl files found", "dir", *allIn)
			return 1
		}
		for _, f := range files {
			if err := processFile(logger, cfg, f, *outputDir, *info); err != nil {
				logger.Error("processing file", "file", f, "err", err)
			}
		}
		return 0
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return 1
	}

	if err := processFile(logger, cfg, fs.Arg(0), *outputDir, *info); err != nil {
		logger.Error("processing file", "err", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
