// Command signal-recorder acquires frames from a serial port, a TCP client
// or the built-in generator and optionally records them to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/signal.recorder/internal/config"
	"github.com/banshee-data/signal.recorder/internal/events"
	"github.com/banshee-data/signal.recorder/internal/pipeline"
	"github.com/banshee-data/signal.recorder/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a .json or .yaml configuration file")
	sourceKind  = flag.String("source", "", "Data source: serial, socket or fake")
	serialPort  = flag.String("port", "", "Serial port (serial source)")
	baudRate    = flag.Int("baud", 0, "Serial baud rate")
	listenHost  = flag.String("host", "", "Listen host (socket source)")
	listenPort  = flag.Int("listen-port", 0, "Listen port (socket source)")
	waveform    = flag.String("waveform", "", "Waveform: sine, square, triangle, sawtooth or random (fake source)")
	channels    = flag.Int("channels", 0, "Active channels 1-8 (fake source)")
	frequency   = flag.Float64("frequency", 0, "Sample frequency in Hz (fake source)")
	recordFmt   = flag.String("record", "", "Record in this format (csv, json, binary, parquet); empty disables recording")
	recordDir   = flag.String("dir", "", "Recording directory")
	segment     = flag.Duration("segment", -1, "Segment rotation period; 0 disables rotation")
	catalogPath = flag.String("catalog", "", "Path to the sqlite recording catalog")
	runFor      = flag.Duration("duration", 0, "Stop after this long; 0 runs until interrupted")
	interval    = flag.Duration("interval", time.Second, "Summary print interval")
	send        = flag.String("send", "", "Message to send once the serial source is running")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	applyFlags(cfg)

	p, err := pipeline.New(pipeline.Options{Config: cfg})
	if err != nil {
		log.Fatalf("failed to create pipeline: %v", err)
	}
	defer p.Close()

	if *listPorts {
		ports, err := p.ListSerialPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, name := range ports {
			fmt.Println(name)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	id, ch, err := p.Subscribe(0)
	if err != nil {
		log.Fatalf("failed to subscribe: %v", err)
	}
	defer p.Unsubscribe(id)

	if *recordFmt != "" {
		name, err := p.StartConfiguredRecording()
		if err != nil {
			log.Fatalf("failed to start recording: %v", err)
		}
		log.Printf("recording to %s", name)
	}

	if err := p.StartConfiguredAcquisition(); err != nil {
		log.Fatalf("failed to start acquisition: %v", err)
	}
	log.Printf("%s started", version.String())

	run(ctx, p, ch)

	if *recordFmt != "" {
		status := p.RecordingStatus()
		if err := p.StopRecording(); err != nil {
			log.Printf("failed to stop recording: %v", err)
		}
		log.Printf("recorded %d frame(s) in %d segment(s)", status.FramesWritten, status.Segments)
	}
	p.StopAcquisition()
	stats := p.Stats()
	log.Printf("read %d byte(s): %d packet(s), %d checksum error(s), %d diagnostic byte(s)",
		stats.BytesRead, stats.Packets, stats.ChecksumErrors, stats.DiagnosticBytes)
}

// run prints notifications and a periodic summary until ctx is done.
func run(ctx context.Context, p *pipeline.Pipeline, ch <-chan events.Event) {
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sent := *send == ""
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case events.KindStatus:
				log.Printf("status: %s", ev.Text)
				if !sent && ev.Text == "setup successful" {
					if err := p.SendMessage([]byte(*send)); err != nil {
						log.Printf("send failed: %v", err)
					}
					sent = true
				}
			case events.KindDiagnostic:
				log.Printf("device: %s", ev.Text)
			case events.KindRecordingFile:
				log.Printf("recording to %s", ev.Text)
			}
		case <-ticker.C:
			frames := p.FetchBuffer()
			flags := p.FetchQuality()
			if len(frames) == 0 {
				log.Printf("no frames, quality %v", flags)
				continue
			}
			last := frames[len(frames)-1]
			log.Printf("%d frame(s), last %v, quality %v", len(frames), last, flags)
		}
	}
}

// applyFlags copies explicitly set flags over the configuration.
func applyFlags(cfg *config.Config) {
	src := cfg.Source
	if src == nil {
		src = &config.SourceConfig{}
	}
	serial := func() *config.SerialConfig {
		if src.Serial == nil {
			src.Serial = &config.SerialConfig{}
		}
		return src.Serial
	}
	socket := func() *config.SocketConfig {
		if src.Socket == nil {
			src.Socket = &config.SocketConfig{}
		}
		return src.Socket
	}
	fake := func() *config.FakeConfig {
		if src.Fake == nil {
			src.Fake = &config.FakeConfig{}
		}
		return src.Fake
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			src.Kind = *sourceKind
		case "port":
			serial().Port = *serialPort
		case "baud":
			serial().BaudRate = *baudRate
		case "host":
			socket().Host = *listenHost
		case "listen-port":
			socket().Port = *listenPort
		case "waveform":
			fake().Waveform = *waveform
		case "channels":
			fake().Channels = *channels
		case "frequency":
			fake().Frequency = *frequency
		case "record":
			cfg.RecordingFormat = recordFmt
		case "dir":
			cfg.RecordingDirectory = recordDir
		case "segment":
			d := segment.String()
			cfg.SegmentDuration = &d
		case "catalog":
			cfg.CatalogPath = catalogPath
		}
	})
	cfg.Source = src

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(2)
	}
}
