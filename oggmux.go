// Copyright 2020-2022 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package oggmux

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"oggmux/pkg/codec"
	"oggmux/pkg/config"
	"oggmux/pkg/log"
	"oggmux/pkg/mux"
	"oggmux/pkg/packetdump"
	"oggmux/pkg/twopass"
)

// Options command line options.
type Options struct {
	ConfigPath string
	Input      string // Capture basename, without .meta or .mdat.
	Output     string // "-" for stdout.
	Duration   int64  // Milliseconds, zero to use the configured duration.
	TwoPass    bool

	// Print stored logs instead of muxing.
	Logs      bool
	LogRun    uint64 // Zero for the latest run.
	LogStream string // Stream serial in hex, empty for all streams.
	LogLevel  log.Level
}

// Run .
func Run() error {
	configFlag := flag.String("config", "", "path to oggmux.yaml")
	inFlag := flag.String("in", "", "capture basename, reads <in>.meta and <in>.mdat")
	outFlag := flag.String("o", "", "output file, '-' for stdout")
	durationFlag := flag.Int64("duration", 0, "expected duration in milliseconds")
	twoPassFlag := flag.Bool("twopass", false, "two-pass mode")
	logsFlag := flag.Bool("logs", false, "print the logs stored in the log database and exit")
	runFlag := flag.Uint64("run", 0, "run to print logs of, zero for the latest")
	streamFlag := flag.String("stream", "", "only print logs of the stream with this serial, in hex")
	levelFlag := flag.String("level", "info", "most verbose level to print: error, warning, info or debug")
	flag.Parse()

	if !*logsFlag && (*inFlag == "" || *outFlag == "") {
		flag.Usage()
		return nil
	}

	level, err := log.ParseLevel(*levelFlag)
	if err != nil {
		return err
	}

	opts := Options{
		Input:     *inFlag,
		Output:    *outFlag,
		Duration:  *durationFlag,
		TwoPass:   *twoPassFlag,
		Logs:      *logsFlag,
		LogRun:    *runFlag,
		LogStream: *streamFlag,
		LogLevel:  level,
	}
	if *configFlag != "" {
		configPath, err := filepath.Abs(*configFlag)
		if err != nil {
			return fmt.Errorf("could not get absolute path of oggmux.yaml: %w", err)
		}
		opts.ConfigPath = configPath
	}

	wg := &sync.WaitGroup{}
	app, err := newApp(opts, wg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.Logs {
		err := app.printLogs(ctx, os.Stdout)
		cancel()
		wg.Wait()
		return err
	}

	app.startLogging(ctx)

	fatal := make(chan error, 1)
	go func() { fatal <- app.run() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-fatal:
		if err != nil {
			app.Logger.Error().Src("app").Msgf("fatal error: %v", err)
		}
	case signal := <-stop:
		app.Logger.Info().Src("app").Msgf("received %v, stopping", signal)
		err = fmt.Errorf("interrupted: %v", signal) //nolint:goerr113
	}

	// Let the printer catch up.
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	return err
}

// App is the main application struct.
type App struct {
	WG     *sync.WaitGroup
	Logger *log.Logger
	logDB  *log.DB

	Config config.Config
	Opts   Options

	logOut io.Writer
}

func newApp(opts Options, wg *sync.WaitGroup) (*App, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.ReadConfig(opts.ConfigPath)
	} else {
		cfg, err = config.NewConfig("", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get config: %w", err)
	}

	app := &App{
		WG:     wg,
		Logger: log.NewLogger(wg),
		Config: *cfg,
		Opts:   opts,
		logOut: os.Stderr,
	}
	if cfg.LogDB != "" {
		app.logDB = log.NewDB(cfg.LogDB, wg)
	}
	return app, nil
}

// startLogging prints logs to stderr, the output may be stdout.
func (app *App) startLogging(ctx context.Context) {
	app.Logger.Start(ctx)
	go app.Logger.LogToWriter(ctx, app.logOut, log.LevelInfo)

	if app.logDB == nil {
		time.Sleep(10 * time.Millisecond)
		return
	}
	if err := app.logDB.Init(ctx, app.Opts.Input, app.Opts.Output); err != nil {
		// Continue even if log database is corrupt.
		time.Sleep(10 * time.Millisecond)
		app.Logger.Error().Src("app").Msgf("could not initialize log database: %v", err)
		return
	}
	go app.logDB.SaveLogs(ctx, app.Logger)
	time.Sleep(10 * time.Millisecond)
}

// ErrNoLogDB no log database is configured.
var ErrNoLogDB = errors.New("no log database configured, set logDB in oggmux.yaml")

// printLogs prints the stored logs of a run, most often
// used to review the index advisories of a finished run.
func (app *App) printLogs(ctx context.Context, w io.Writer) error {
	if app.logDB == nil {
		return ErrNoLogDB
	}
	if err := app.logDB.Open(ctx); err != nil {
		return err
	}

	q := log.Query{
		Run:    app.Opts.LogRun,
		Levels: log.LevelsUpTo(app.Opts.LogLevel),
	}
	if app.Opts.LogStream != "" {
		serial, err := strconv.ParseUint(app.Opts.LogStream, 16, 32)
		if err != nil {
			return fmt.Errorf("parse stream serial: %w", err)
		}
		q.Streams = []string{fmt.Sprintf("%08x", serial)}
	}

	run, logs, err := app.logDB.Query(q)
	if err != nil {
		return fmt.Errorf("query logs: %w", err)
	}

	start := time.Unix(0, int64(run.Start)*1000).Format(time.RFC3339)
	fmt.Fprintf(w, "run %d, %s, %s -> %s\n", run.ID, start, run.Input, run.Output)
	for _, l := range logs {
		fmt.Fprintln(w, l)
	}
	return nil
}

// ErrNoStreams capture has no streams.
var ErrNoStreams = errors.New("capture has no streams")

// capture is an opened packet capture.
type capture struct {
	header   *packetdump.Header
	infos    []codec.Info
	packets  []packetdump.Packet
	mdat     *os.File
	mdatSize int64
}

func openCapture(basename string) (*capture, error) {
	meta, err := os.Open(basename + ".meta")
	if err != nil {
		return nil, fmt.Errorf("open meta: %w", err)
	}
	defer meta.Close()

	stat, err := meta.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat meta: %w", err)
	}

	reader, header, err := packetdump.NewReader(meta, int(stat.Size()))
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	if len(header.Streams) == 0 {
		return nil, ErrNoStreams
	}

	packets, err := reader.ReadAllPackets()
	if err != nil {
		return nil, fmt.Errorf("read packets: %w", err)
	}

	var infos []codec.Info
	for i, stream := range header.Streams {
		if len(stream.Headers) == 0 {
			return nil, fmt.Errorf("stream %d: %w", i, mux.ErrNoHeaders)
		}
		info, err := codec.Probe(stream.Headers[0])
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		infos = append(infos, *info)
	}

	mdat, err := os.Open(basename + ".mdat")
	if err != nil {
		return nil, fmt.Errorf("open mdat: %w", err)
	}
	mdatStat, err := mdat.Stat()
	if err != nil {
		mdat.Close()
		return nil, fmt.Errorf("stat mdat: %w", err)
	}

	return &capture{
		header:   header,
		infos:    infos,
		packets:  packets,
		mdat:     mdat,
		mdatSize: mdatStat.Size(),
	}, nil
}

func (app *App) run() error {
	c, err := openCapture(app.Opts.Input)
	if err != nil {
		return err
	}
	defer c.mdat.Close()

	if !app.Opts.TwoPass {
		return app.muxOutput(c, 0, nil)
	}

	scratch, cleanup, err := app.openScratch()
	if err != nil {
		return err
	}
	defer cleanup()

	pf := twopass.New(scratch)

	app.Logger.Info().Src("app").Msg("first pass")
	if err := app.mux(c, io.Discard, 1, pf); err != nil {
		return fmt.Errorf("first pass: %w", err)
	}

	app.Logger.Info().Src("app").Msg("second pass")
	return app.muxOutput(c, 2, pf)
}

// openScratch opens the two-pass file, a temporary file if none is configured.
func (app *App) openScratch() (*os.File, func(), error) {
	if app.Config.TwoPassFile != "" {
		file, err := os.Create(app.Config.TwoPassFile)
		if err != nil {
			return nil, nil, fmt.Errorf("create two-pass file: %w", err)
		}
		return file, func() { file.Close() }, nil
	}

	file, err := os.CreateTemp("", "oggmux-twopass-*.log")
	if err != nil {
		return nil, nil, fmt.Errorf("create two-pass file: %w", err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(file.Name())
	}
	return file, cleanup, nil
}

func (app *App) muxOutput(c *capture, pass int, pf *twopass.File) error {
	if app.Opts.Output == "-" {
		return app.mux(c, os.Stdout, pass, pf)
	}

	out, err := os.Create(app.Opts.Output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	return app.mux(c, out, pass, pf)
}

func (app *App) duration(c *capture) int64 {
	switch {
	case app.Opts.Duration != 0:
		return app.Opts.Duration
	case app.Config.Duration != 0:
		return app.Config.Duration
	}
	return c.header.Duration
}

func (app *App) muxConfig(c *capture, pass int) mux.Config {
	return mux.Config{
		Skeleton:             !app.Config.NoSkeleton,
		Skeleton3:            app.Config.Skeleton3,
		IndexInterval:        app.Config.IndexInterval,
		VideoIndexReserve:    app.Config.VideoIndexReserve,
		AudioIndexReserve:    app.Config.AudioIndexReserve,
		SubtitleIndexReserve: app.Config.SubtitleIndexReserve,
		FlushThreshold:       app.Config.FlushThreshold,
		Duration:             app.duration(c),
		Pass:                 pass,
	}
}

// mux muxes the capture once. When pf is set the video frame sizes are
// recorded in the first pass and verified in the second.
func (app *App) mux(c *capture, w io.Writer, pass int, pf *twopass.File) error {
	session := mux.NewSession(w, app.muxConfig(c, pass), app.Logger)

	streams := make([]*mux.Stream, len(c.infos))
	for i, info := range c.infos {
		stream, err := session.AddStream(info, c.header.Streams[i].Headers)
		if err != nil {
			return fmt.Errorf("add stream %d: %w", i, err)
		}
		streams[i] = stream
	}
	if err := session.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	rate := &rateLog{}
	switch pass {
	case 1:
		if err := pf.BeginFirstPass(rate); err != nil {
			return err
		}
	case 2:
		if err := pf.BeginSecondPass(); err != nil {
			return err
		}
	}

	for _, p := range c.packets {
		if int(p.Stream) >= len(streams) {
			return fmt.Errorf("%w: %d", packetdump.ErrUnknownStream, p.Stream)
		}
		stream := streams[p.Stream]

		packet, err := packetdump.ReadPacket(c.mdat, c.mdatSize, p)
		if err != nil {
			return err
		}

		if stream.Info().Kind == codec.KindVideo {
			if err := app.rateControl(pf, pass, rate, len(packet.Data)); err != nil {
				return err
			}
		}

		if err := stream.WritePacket(packet); err != nil {
			return err
		}
		if err := session.Flush(false); err != nil {
			return err
		}
	}

	if pass == 1 {
		if err := pf.EndFirstPass(rate); err != nil {
			return err
		}
	}

	reports, err := session.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if pass == 1 {
		return nil
	}

	for _, st := range session.Stats() {
		app.Logger.Info().Src("app").Stream(st.Serial).
			Msgf("%v: %d packets, %d bytes, %d kbit/s", st.Kind, st.Packets, st.BytesOut, st.Kbps)
	}
	for _, r := range reports {
		app.Logger.Debug().Src("index").Stream(r.Serial).
			Msgf("%d/%d keypoints, %d/%d bytes", r.Written, r.Selected, r.BytesNeeded, r.Reserved)
	}
	return nil
}

func (app *App) rateControl(pf *twopass.File, pass int, rate *rateLog, size int) error {
	switch pass {
	case 1:
		rate.frameOut(size)
		return pf.FrameOut(rate)
	case 2:
		rate.nextFrame()
		if err := pf.FrameIn(rate); err != nil {
			return err
		}
		if err := rate.check(size); err != nil {
			app.Logger.Warn().Src("app").Msgf("two-pass: %v", err)
		}
	}
	return nil
}
